package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// LDAP looks up entries on an LDAP server with base-scope searches
type LDAP struct {
	mu   sync.Mutex
	conn *ldap.Conn
	url  string
}

// DialLDAP connects and binds to an LDAP server
func DialLDAP(cfg Config) (*LDAP, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	conn, err := ldap.DialURL(cfg.URL, ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
	}
	if cfg.Timeout > 0 {
		conn.SetTimeout(cfg.Timeout)
	}

	if cfg.StartTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to start TLS with %s: %w", cfg.URL, err)
		}
	}

	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.password()); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to bind to %s as %s: %w", cfg.URL, cfg.BindDN, err)
		}
	}

	return &LDAP{conn: conn, url: cfg.URL}, nil
}

// Lookup implements Directory
func (l *LDAP) Lookup(ctx context.Context, dn string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dn = strings.TrimSpace(dn)
	if dn == "" {
		return nil, ErrNotFound
	}

	timeLimit := 0
	if deadline, ok := ctx.Deadline(); ok {
		timeLimit = max(1, int(time.Until(deadline).Seconds()))
	}

	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1,
		timeLimit,
		false,
		"(objectClass=*)",
		nil,
		nil,
	)

	l.mu.Lock()
	res, err := l.conn.Search(req)
	l.mu.Unlock()

	if err != nil {
		// A DN that does not parse cannot name an existing entry
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) ||
			ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidDNSyntax) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ldap lookup of %q on %s failed: %w", dn, l.url, err)
	}
	if len(res.Entries) == 0 {
		return nil, ErrNotFound
	}

	found := res.Entries[0]
	attrs := make(map[string][]string, len(found.Attributes))
	for _, a := range found.Attributes {
		attrs[a.Name] = a.Values
	}

	return &Entry{DN: found.DN, Attributes: normalizeAttributes(attrs)}, nil
}

// Close implements Directory
func (l *LDAP) Close() error {
	return l.conn.Close()
}

// String returns the server URL
func (l *LDAP) String() string {
	return l.url
}
