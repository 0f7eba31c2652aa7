package objtree

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reconMarkup = `<?xml version="1.0" encoding="UTF-8"?>
<object class="com.ibm.itim.scheduling.ScheduledMessage">
  <class name="com.ibm.itim.scheduling.ScheduledMessage">
    <object name="message" class="com.ibm.itim.remoteservices.ejb.mediation.ServiceProviderReconciliationMessageObject">
      <class name="com.ibm.itim.remoteservices.ejb.mediation.ServiceProviderReconciliationMessageObject">
        <special-object name="serviceDN" class="java.lang.String" value="erglobalid=123,ou=services,dc=x"/>
        <primitive name="hour" class="int" value="2"/>
        <primitive name="minute" class="int" value="15"/>
      </class>
    </object>
  </class>
</object>
`

func TestDecode_Structure(t *testing.T) {
	root, err := Decode([]byte(reconMarkup))
	require.NoError(t, err)

	want := &Node{
		Type:       TypeObject,
		Attributes: map[string]string{"class": "com.ibm.itim.scheduling.ScheduledMessage"},
		Children: []*Node{{
			Type:       TypeClass,
			Attributes: map[string]string{"name": "com.ibm.itim.scheduling.ScheduledMessage"},
			Children: []*Node{{
				Type: TypeObject,
				Attributes: map[string]string{
					"name":  "message",
					"class": "com.ibm.itim.remoteservices.ejb.mediation.ServiceProviderReconciliationMessageObject",
				},
				Children: []*Node{{
					Type:       TypeClass,
					Attributes: map[string]string{"name": "com.ibm.itim.remoteservices.ejb.mediation.ServiceProviderReconciliationMessageObject"},
					Children: []*Node{
						{Type: TypeSpecialObject, Attributes: map[string]string{"name": "serviceDN", "class": "java.lang.String", "value": "erglobalid=123,ou=services,dc=x"}},
						{Type: TypePrimitive, Attributes: map[string]string{"name": "hour", "class": "int", "value": "2"}},
						{Type: TypePrimitive, Attributes: map[string]string{"name": "minute", "class": "int", "value": "15"}},
					},
				}},
			}},
		}},
	}

	if diff := cmp.Diff(want, root); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestNode_Navigation(t *testing.T) {
	root, err := Decode([]byte(reconMarkup))
	require.NoError(t, err)

	assert.Same(t, root, root.Find(TypeObject))

	class := root.Find(TypeClass)
	require.NotNil(t, class)
	objects := class.ChildrenOfType(TypeObject)
	require.Len(t, objects, 1)
	assert.Equal(t, "message", objects[0].Attr("name"))

	specials := root.FindAll(TypeSpecialObject)
	require.Len(t, specials, 1)
	assert.Equal(t, "serviceDN", specials[0].Attr("name"))

	assert.Len(t, root.FindAll(TypeObject), 1, "FindAll excludes the receiver")
	assert.Nil(t, root.Find("missing"))

	var nilNode *Node
	assert.Equal(t, "", nilNode.Attr("name"))
	assert.Nil(t, nilNode.Find(TypeObject))
}

func TestDecode_ForeignCharsetDeclaration(t *testing.T) {
	root, err := Decode([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><object class="a"/>`))
	require.NoError(t, err)
	assert.Equal(t, "a", root.Attr("class"))
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "declaration only", raw: `<?xml version="1.0"?>`},
		{name: "mismatched end tag", raw: `<?xml version="1.0"?><object><class></object></class>`},
		{name: "unclosed", raw: `<?xml version="1.0"?><object><class>`},
		{name: "two roots", raw: `<?xml version="1.0"?><object/><object/>`},
		{name: "bad attribute", raw: "<?xml version=\"1.0\"?>\n<object class=unquoted/>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, root)
			assert.True(t, errors.Is(err, ErrMalformed))

			var merr *MalformedMarkupError
			require.ErrorAs(t, err, &merr)
			assert.GreaterOrEqual(t, merr.Line, 1)
		})
	}
}
