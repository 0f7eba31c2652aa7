// Package classify maps decoded scheduled messages onto the job kinds the
// audit reports on, resolving directory references along the way.
package classify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/livinlefevreloca/msgaudit/internal/directory"
	"github.com/livinlefevreloca/msgaudit/internal/javaser"
	"github.com/livinlefevreloca/msgaudit/internal/objtree"
)

// Field names read from recognized message bodies
const (
	fieldServiceDN    = "serviceDN"
	fieldPolicyDN     = "policyDN"
	fieldCategoryName = "categoryName"
	fieldProfileName  = "profileName"
	fieldRuleType     = "ruleType"
	fieldRuleID       = "lifecycleRuleID"
)

// Classifier turns decoded payloads into messages. It holds no mutable
// state, so one instance may be shared by concurrent workers.
type Classifier struct {
	config Config
}

// New creates a classifier
func New(config Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{config: config}, nil
}

// body is the format-neutral view of one message object
type body struct {
	class  string
	fields []Detail
	text   string

	lookup func(name string) (string, bool)
}

func (b body) str(name string) (string, bool) {
	return b.lookup(name)
}

func (b body) integer(name string) (int64, bool) {
	s, ok := b.lookup(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

// Classify maps a decoded payload onto a message. It only fails when the
// resolver reports a lookup failure; unrecognized shapes become KindUnknown.
func (c *Classifier) Classify(ctx context.Context, in Input, r directory.Resolver) (Message, error) {
	var (
		candidates []body
		unknown    Message
	)

	switch v := in.(type) {
	case TreeInput:
		candidates = c.treeBodies(v.Root)
		unknown = unknownTree(candidates, v.Root)
	case GraphInput:
		candidates = c.graphBodies(v.Root)
		unknown = Message{Kind: KindUnknown, Label: candidates[0].text}
	default:
		return Message{}, fmt.Errorf("unsupported classifier input %T", in)
	}

	for _, b := range candidates {
		var (
			msg Message
			err error
		)
		switch b.class {
		case c.config.ReconciliationClass:
			msg, err = c.reconciliation(ctx, b, r)
		case c.config.LifecycleRuleClass:
			msg, err = c.lifecycleRule(ctx, b, r)
		default:
			continue
		}
		if err != nil {
			return Message{}, err
		}
		msg.Format = in.Format()
		return msg, nil
	}

	unknown.Format = in.Format()
	return unknown, nil
}

func (c *Classifier) recognized(class string) bool {
	return class == c.config.ReconciliationClass || class == c.config.LifecycleRuleClass
}

func (c *Classifier) reconciliation(ctx context.Context, b body, r directory.Resolver) (Message, error) {
	msg := Message{
		Kind:   KindReconciliation,
		Label:  LabelRecon,
		Detail: b.fields,
	}

	dn, _ := b.str(fieldServiceDN)
	dn = strings.TrimSpace(dn)
	if dn == "" {
		// Nothing to resolve; not evidence of a stale reference
		msg.Label = LabelBadRecon
		msg.Fallback = "(no " + fieldServiceDN + ")"
		return msg, nil
	}

	name, found, err := r.ResolveName(ctx, dn)
	if err != nil {
		return Message{}, fmt.Errorf("failed to resolve service %q: %w", dn, err)
	}
	if !found {
		msg.Label = LabelBadRecon
		msg.Fallback = dn
		msg.Cleanup = true
		return msg, nil
	}

	msg.ResolvedName = &name
	return msg, nil
}

func (c *Classifier) lifecycleRule(ctx context.Context, b body, r directory.Resolver) (Message, error) {
	ruleID, _ := b.str(fieldRuleID)
	ruleType, hasType := b.integer(fieldRuleType)

	msg := Message{
		Kind:  KindLifecycleRule,
		Label: LabelUnknown,
		Rule:  RuleUnknown,
		Detail: []Detail{
			{Name: DetailRuleID, Value: strings.TrimSpace(ruleID)},
			{Name: DetailRuleType, Value: strconv.FormatInt(ruleType, 10)},
		},
	}
	if !hasType {
		msg.Detail[1].Value = ""
		return msg, nil
	}

	switch ruleType {
	case c.config.RulePolicy:
		msg.Rule = RulePolicy
		msg.Label = LabelRecertification

		dn, _ := b.str(fieldPolicyDN)
		dn = strings.TrimSpace(dn)
		if dn == "" {
			return msg, nil
		}
		msg.Fallback = dn

		name, found, err := r.ResolveName(ctx, dn)
		if err != nil {
			return Message{}, fmt.Errorf("failed to resolve policy %q: %w", dn, err)
		}
		if !found {
			msg.Cleanup = true
			return msg, nil
		}
		msg.Label = name
		msg.ResolvedName = &name

	case c.config.RuleCategory:
		msg.Rule = RuleCategory
		setNamed(&msg, b, fieldCategoryName)

	case c.config.RuleProfile:
		msg.Rule = RuleProfile
		setNamed(&msg, b, fieldProfileName)
	}

	return msg, nil
}

// setNamed labels a category or profile rule by the named field, leaving
// the label Unknown when the field is absent or blank
func setNamed(m *Message, b body, field string) {
	name, _ := b.str(field)
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	m.Label = name
	m.ResolvedName = &name
}

// =============================================================================
// Markup form
// =============================================================================

// treeBodies returns the message body candidates of a markup document: the
// first object if its class is recognized, otherwise the objects nested in
// its first class element
func (c *Classifier) treeBodies(root *objtree.Node) []body {
	first := root.Find(objtree.TypeObject)
	if first == nil {
		return nil
	}
	if c.recognized(first.Attr("class")) {
		return []body{treeBody(first)}
	}

	var out []body
	if class := first.Find(objtree.TypeClass); class != nil {
		for _, obj := range class.ChildrenOfType(objtree.TypeObject) {
			out = append(out, treeBody(obj))
		}
	}
	if len(out) == 0 {
		out = append(out, treeBody(first))
	}
	return out
}

func treeBody(obj *objtree.Node) body {
	var fields []Detail
	for _, class := range obj.ChildrenOfType(objtree.TypeClass) {
		for _, v := range class.Children {
			if v.Type == objtree.TypePrimitive || v.Type == objtree.TypeSpecialObject {
				fields = append(fields, Detail{Name: v.Attr("name"), Value: v.Attr("value")})
			}
		}
	}

	return body{
		class:  obj.Attr("class"),
		fields: fields,
		text:   fmt.Sprintf("%s(%s):", obj.Attr("name"), obj.Attr("class")),
		lookup: func(name string) (string, bool) {
			for _, f := range fields {
				if f.Name == name {
					return f.Value, true
				}
			}
			// Values may sit deeper than the object's own class elements
			for _, typ := range []string{objtree.TypeSpecialObject, objtree.TypePrimitive} {
				for _, n := range obj.FindAll(typ) {
					if n.Attr("name") == name {
						return n.Attr("value"), true
					}
				}
			}
			return "", false
		},
	}
}

func unknownTree(candidates []body, root *objtree.Node) Message {
	if len(candidates) == 0 {
		return Message{Kind: KindUnknown, Label: "<" + root.Type + ">"}
	}

	labels := make([]string, len(candidates))
	var detail []Detail
	for i, b := range candidates {
		labels[i] = b.text
		detail = append(detail, b.fields...)
	}
	return Message{Kind: KindUnknown, Label: strings.Join(labels, " "), Detail: detail}
}

// =============================================================================
// Object graph form
// =============================================================================

// graphBodies returns the root object, or the envelope's message body when
// the root itself is not a recognized message
func (c *Classifier) graphBodies(root *javaser.Object) []body {
	obj := root
	if !c.recognized(root.ClassName()) && c.config.EnvelopeField != "" {
		if inner, ok := root.ObjectField(c.config.EnvelopeField); ok {
			obj = inner
		}
	}
	return []body{graphBody(obj)}
}

func graphBody(obj *javaser.Object) body {
	names := obj.FieldNames()
	fields := make([]Detail, 0, len(names))
	for _, name := range names {
		v, _ := obj.Field(name)
		fields = append(fields, Detail{Name: name, Value: javaser.FormatScalar(v)})
	}

	return body{
		class:  obj.ClassName(),
		fields: fields,
		text:   obj.String(),
		lookup: func(name string) (string, bool) {
			v, ok := obj.Field(name)
			if !ok || v == nil {
				return "", false
			}
			return javaser.FormatScalar(v), true
		},
	}
}
