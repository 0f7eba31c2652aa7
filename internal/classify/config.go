package classify

import "fmt"

// Config names the message classes and rule discriminants to recognize
type Config struct {
	ReconciliationClass string `toml:"reconciliation_class"`
	LifecycleRuleClass  string `toml:"lifecycle_rule_class"`

	// Field of the scheduler envelope holding the message body
	EnvelopeField string `toml:"envelope_field"`

	RulePolicy   int64 `toml:"rule_type_policy"`
	RuleCategory int64 `toml:"rule_type_category"`
	RuleProfile  int64 `toml:"rule_type_profile"`
}

// DefaultConfig returns the class names used by the identity manager
func DefaultConfig() Config {
	return Config{
		ReconciliationClass: "com.ibm.itim.remoteservices.ejb.mediation.ServiceProviderReconciliationMessageObject",
		LifecycleRuleClass:  "com.ibm.itim.orchestration.lifecycle.LifecycleRuleMessageObject",
		EnvelopeField:       "message",
		RulePolicy:          1,
		RuleCategory:        2,
		RuleProfile:         3,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.ReconciliationClass == "" {
		return fmt.Errorf("classifier reconciliation_class must be specified")
	}
	if c.LifecycleRuleClass == "" {
		return fmt.Errorf("classifier lifecycle_rule_class must be specified")
	}
	if c.RulePolicy == c.RuleCategory || c.RulePolicy == c.RuleProfile || c.RuleCategory == c.RuleProfile {
		return fmt.Errorf("classifier rule types must be distinct (policy=%d, category=%d, profile=%d)",
			c.RulePolicy, c.RuleCategory, c.RuleProfile)
	}
	return nil
}
