package directory

import (
	"fmt"
	"os"
	"time"
)

// Directory kinds
const (
	KindLDAP = "ldap"
	KindYAML = "yaml"
)

// Config holds directory connection configuration
type Config struct {
	Kind               string        `toml:"kind"`
	URL                string        `toml:"url"`
	BindDN             string        `toml:"bind_dn"`
	BindPassword       string        `toml:"bind_password"`
	BindPasswordEnv    string        `toml:"bind_password_env"`
	StartTLS           bool          `toml:"start_tls"`
	InsecureSkipVerify bool          `toml:"insecure_skip_verify"`
	Timeout            time.Duration `toml:"timeout"`
	YAMLPath           string        `toml:"yaml_path"`
	NameAttributes     []string      `toml:"name_attributes"`
}

// DefaultConfig returns directory defaults
func DefaultConfig() Config {
	return Config{
		Kind:           KindLDAP,
		URL:            "ldap://localhost:389",
		Timeout:        30 * time.Second,
		NameAttributes: DefaultNameAttributes(),
	}
}

// DefaultNameAttributes are tried in order when turning an entry into a
// display name: services, then policies, then the common name
func DefaultNameAttributes() []string {
	return []string{"erservicename", "erpolicyitemname", "cn"}
}

// password returns the bind password, preferring the environment variable
func (c Config) password() string {
	if c.BindPasswordEnv != "" {
		if v, ok := os.LookupEnv(c.BindPasswordEnv); ok {
			return v
		}
	}
	return c.BindPassword
}

// Validate checks the configuration for the selected kind
func (c Config) Validate() error {
	switch c.Kind {
	case KindLDAP:
		if c.URL == "" {
			return fmt.Errorf("directory url must be specified for kind %q", c.Kind)
		}
	case KindYAML:
		if c.YAMLPath == "" {
			return fmt.Errorf("directory yaml_path must be specified for kind %q", c.Kind)
		}
	default:
		return fmt.Errorf("unsupported directory kind: %s (must be ldap or yaml)", c.Kind)
	}
	if len(c.NameAttributes) == 0 {
		return fmt.Errorf("directory name_attributes must not be empty")
	}
	return nil
}

// Open connects to the configured directory
func Open(cfg Config) (Directory, error) {
	switch cfg.Kind {
	case KindLDAP:
		d, err := DialLDAP(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	case KindYAML:
		m, err := LoadYAML(cfg.YAMLPath)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported directory kind: %s", cfg.Kind)
}
