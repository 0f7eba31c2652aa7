package classify

import (
	"fmt"
	"strings"

	"github.com/livinlefevreloca/msgaudit/internal/javaser"
	"github.com/livinlefevreloca/msgaudit/internal/objtree"
	"github.com/livinlefevreloca/msgaudit/internal/payload"
)

// Kind is the semantic job type of a scheduled message
type Kind int

const (
	KindUnknown Kind = iota
	KindReconciliation
	KindLifecycleRule
)

// String returns a human-readable representation of the kind
func (k Kind) String() string {
	switch k {
	case KindReconciliation:
		return "reconciliation"
	case KindLifecycleRule:
		return "lifecycle_rule"
	default:
		return "unknown"
	}
}

// Rule is the variant of a lifecycle rule message
type Rule int

const (
	RuleNone Rule = iota // not a lifecycle rule
	RulePolicy
	RuleCategory
	RuleProfile
	RuleUnknown
)

// String returns a human-readable representation of the rule variant
func (r Rule) String() string {
	switch r {
	case RulePolicy:
		return "policy"
	case RuleCategory:
		return "category"
	case RuleProfile:
		return "profile"
	case RuleUnknown:
		return "unknown"
	default:
		return "none"
	}
}

// Labels used in the digest
const (
	LabelRecon           = "Recon"
	LabelBadRecon        = "Bad recon"
	LabelRecertification = "Recertification"
	LabelUnknown         = "Unknown"
)

// Detail is one extracted name=value pair
type Detail struct {
	Name  string
	Value string
}

// Message is the classification of one decoded record
type Message struct {
	Kind   Kind
	Rule   Rule
	Format payload.Format

	// Label is the display label; ResolvedName is nil when the referenced
	// directory entry was not found, in which case Fallback is shown
	Label        string
	ResolvedName *string
	Fallback     string

	Detail []Detail

	// Cleanup is set when the record references a directory entry that
	// no longer exists
	Cleanup bool
}

// Summary renders the label and resolution for the digest
func (m Message) Summary() string {
	switch m.Kind {
	case KindReconciliation:
		s := fmt.Sprintf("%s for %s", m.Label, m.Subject())
		if unit := m.DetailValue(DetailReconUnit); m.Format == payload.GraphForm && unit != "" {
			s += " every " + unit
		}
		return s
	case KindLifecycleRule:
		return fmt.Sprintf("%s lifecycle rule #%s", m.Label, m.DetailValue(DetailRuleID))
	}
	return m.Label
}

// Subject returns the resolved name, or the fallback when unresolved
func (m Message) Subject() string {
	if m.ResolvedName != nil {
		return *m.ResolvedName
	}
	return m.Fallback
}

// DetailValue returns the value of the named detail or the empty string
func (m Message) DetailValue(name string) string {
	for _, d := range m.Detail {
		if d.Name == name {
			return d.Value
		}
	}
	return ""
}

// DetailString renders details as space-separated name=value pairs
func (m Message) DetailString() string {
	parts := make([]string, len(m.Detail))
	for i, d := range m.Detail {
		parts[i] = d.Name + "=" + d.Value
	}
	return strings.Join(parts, " ")
}

// Detail names attached by the classifier
const (
	DetailRuleID    = "ruleId"
	DetailRuleType  = "ruleType"
	DetailReconUnit = "reconUnit"
)

// Input is a decoded payload in one of the two closed forms
type Input interface {
	Format() payload.Format
	isInput()
}

// TreeInput is a decoded markup payload
type TreeInput struct {
	Root *objtree.Node
}

// Format implements Input
func (TreeInput) Format() payload.Format { return payload.TreeForm }
func (TreeInput) isInput()               {}

// GraphInput is a decoded object-graph payload
type GraphInput struct {
	Root *javaser.Object
}

// Format implements Input
func (GraphInput) Format() payload.Format { return payload.GraphForm }
func (GraphInput) isInput()               {}

// Decode runs the decoder matching the payload's format
func Decode(d payload.Decoded) (Input, error) {
	switch d.Format {
	case payload.TreeForm:
		root, err := objtree.Decode(d.Raw)
		if err != nil {
			return nil, err
		}
		return TreeInput{Root: root}, nil
	default:
		root, err := javaser.DecodeObject(d.Raw)
		if err != nil {
			return nil, err
		}
		return GraphInput{Root: root}, nil
	}
}
