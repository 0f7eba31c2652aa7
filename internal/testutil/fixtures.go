package testutil

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"html"
	"strings"
)

// Class names of the scheduled message types
const (
	EnvelopeClass       = "com.ibm.itim.scheduling.ScheduledMessage"
	ReconClass          = "com.ibm.itim.remoteservices.ejb.mediation.ServiceProviderReconciliationMessageObject"
	ReconBaseClass      = "com.ibm.itim.remoteservices.ejb.reconciliation.ReconciliationMessageObject"
	LifecycleRuleClass  = "com.ibm.itim.orchestration.lifecycle.LifecycleRuleMessageObject"
	WorkflowResumeClass = "com.ibm.itim.workflow.engine.WorkflowResumeMessageObject"
)

// EncodePayload gzips and base64-encodes raw bytes the way the identity
// manager stores scheduled messages
func EncodePayload(raw []byte) string {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, _ = w.Write(raw)
	_ = w.Close()
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// EncodeZlibPayload is EncodePayload with a zlib header instead of gzip
func EncodeZlibPayload(raw []byte) string {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(raw)
	_ = w.Close()
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// =============================================================================
// Markup payloads
// =============================================================================

// MarkupField is one primitive or special-object element
type MarkupField struct {
	Element string // "primitive" or "special-object"
	Name    string
	Class   string
	Value   string
}

// Primitive returns an int primitive element
func Primitive(name, value string) MarkupField {
	return MarkupField{Element: "primitive", Name: name, Class: "int", Value: value}
}

// Special returns a java.lang.String special-object element
func Special(name, value string) MarkupField {
	return MarkupField{Element: "special-object", Name: name, Class: "java.lang.String", Value: value}
}

// MarkupObject renders an object element with a single class element
func MarkupObject(name, class string, fields ...MarkupField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<object name=%q class=%q>\n  <class name=%q>\n", name, class, class)
	for _, f := range fields {
		fmt.Fprintf(&b, "    <%s name=\"%s\" class=\"%s\" value=\"%s\"/>\n",
			f.Element, html.EscapeString(f.Name), html.EscapeString(f.Class), html.EscapeString(f.Value))
	}
	b.WriteString("  </class>\n</object>")
	return b.String()
}

// MarkupEnvelope wraps message objects in the scheduler envelope
func MarkupEnvelope(bodies ...string) []byte {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(&b, "<object class=%q>\n<class name=%q>\n", EnvelopeClass, EnvelopeClass)
	for _, body := range bodies {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString("</class>\n</object>\n")
	return []byte(b.String())
}

// MarkupDocument returns a document whose root is the given object
func MarkupDocument(object string) []byte {
	return []byte("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n" + object + "\n")
}

// ReconMarkup returns a markup recon message for a service DN
func ReconMarkup(serviceDN string) []byte {
	return MarkupEnvelope(MarkupObject("message", ReconClass,
		Special("serviceDN", serviceDN),
		Primitive("dayOfWeek", "0"),
		Primitive("hour", "2"),
		Primitive("minute", "15"),
	))
}

// =============================================================================
// Object graph payloads
// =============================================================================

// ReconClasses returns the reconciliation class pair, subclass first
func ReconClasses() *JClass {
	base := Serializable(ReconBaseClass, StringField("serviceDN"), JField{Name: "reconUnit", Type: 'I'})
	sub := Serializable(ReconClass, JField{Name: "requester", Type: 'L', Sig: "Ljava/lang/String;"})
	sub.Super = base
	return sub
}

// LifecycleRuleClasses returns the lifecycle rule message class
func LifecycleRuleClasses() *JClass {
	return Serializable(LifecycleRuleClass,
		JField{Name: "lifecycleRuleID", Type: 'J'},
		JField{Name: "ruleType", Type: 'I'},
		StringField("categoryName"),
		StringField("policyDN"),
		StringField("profileName"),
	)
}

// Envelope wraps a message body in the scheduler envelope object
func Envelope(body any) *JObject {
	cls := Serializable(EnvelopeClass, JField{Name: "retries", Type: 'I'}, ObjectField("message"))
	return &JObject{Class: cls, Values: map[string]any{"message": body}}
}

// ReconGraph returns a serialized enveloped recon message
func ReconGraph(serviceDN string, reconUnit int) []byte {
	return EncodeJava(Envelope(&JObject{Class: ReconClasses(), Values: map[string]any{
		"serviceDN": serviceDN,
		"reconUnit": reconUnit,
		"requester": "itim manager",
	}}))
}

// LifecycleGraph returns a serialized enveloped lifecycle rule message
func LifecycleGraph(ruleID int64, ruleType int, policyDN, category, profile string) []byte {
	values := map[string]any{"lifecycleRuleID": ruleID, "ruleType": ruleType}
	if policyDN != "" {
		values["policyDN"] = policyDN
	}
	if category != "" {
		values["categoryName"] = category
	}
	if profile != "" {
		values["profileName"] = profile
	}
	return EncodeJava(Envelope(&JObject{Class: LifecycleRuleClasses(), Values: values}))
}
