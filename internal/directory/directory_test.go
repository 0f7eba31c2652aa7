package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func svcEntry() *Entry {
	return &Entry{
		DN:         "CN=Svc1,DC=X",
		Attributes: map[string][]string{"erServiceName": {"SVC One"}, "objectClass": {"erServiceItem"}},
	}
}

// failingDirectory reports a connectivity failure on every lookup
type failingDirectory struct {
	mu    sync.Mutex
	calls int
}

func (f *failingDirectory) Lookup(_ context.Context, _ string) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, errors.New("connection reset")
}

func (f *failingDirectory) Close() error { return nil }

func TestNormalizeDN(t *testing.T) {
	assert.Equal(t, "cn=foo,dc=x", NormalizeDN("  CN=Foo,DC=X "))
	assert.Equal(t, NormalizeDN("cn=foo"), NormalizeDN("CN=FOO"))
}

func TestMemory_Lookup(t *testing.T) {
	m := NewMemory(svcEntry())
	ctx := context.Background()

	e, err := m.Lookup(ctx, "cn=svc1,dc=x")
	require.NoError(t, err)
	v, ok := e.First("ERSERVICENAME")
	require.True(t, ok)
	assert.Equal(t, "SVC One", v)

	_, err = m.Lookup(ctx, "cn=other,dc=x")
	assert.True(t, IsNotFound(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Lookup(cancelled, "cn=svc1,dc=x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolver_CaseInsensitive(t *testing.T) {
	r := NewResolver(NewMemory(svcEntry()), nil)
	ctx := context.Background()

	upperName, upperFound, err := r.ResolveName(ctx, "CN=Svc1,DC=X")
	require.NoError(t, err)
	lowerName, lowerFound, err := r.ResolveName(ctx, "cn=svc1,dc=x")
	require.NoError(t, err)

	assert.True(t, upperFound)
	assert.Equal(t, upperFound, lowerFound)
	assert.Equal(t, upperName, lowerName)
	assert.Equal(t, "SVC One", lowerName)
}

func TestResolver_Miss(t *testing.T) {
	r := NewResolver(NewMemory(svcEntry()), nil)

	name, found, err := r.ResolveName(context.Background(), "cn=gone,dc=x")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, name)

	_, found, err = r.ResolveName(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolver_NameAttributeOrder(t *testing.T) {
	m := NewMemory(
		&Entry{DN: "cn=policy,dc=x", Attributes: map[string][]string{"erpolicyitemname": {"Quarterly"}, "cn": {"policy"}}},
		&Entry{DN: "cn=nameless,dc=x", Attributes: map[string][]string{"objectclass": {"top"}}},
	)
	r := NewResolver(m, []string{"erservicename", "erpolicyitemname", "cn"})
	ctx := context.Background()

	name, found, err := r.ResolveName(ctx, "cn=policy,dc=x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Quarterly", name)

	name, found, err = r.ResolveName(ctx, "CN=Nameless,DC=X")
	require.NoError(t, err)
	assert.True(t, found, "an existing entry is found even without a name attribute")
	assert.Equal(t, "cn=nameless,dc=x", name)
}

// blockingDirectory holds every lookup until release is closed
type blockingDirectory struct {
	release chan struct{}
	entry   *Entry
}

func (b *blockingDirectory) Lookup(_ context.Context, _ string) (*Entry, error) {
	<-b.release
	return b.entry, nil
}

func (b *blockingDirectory) Close() error { return nil }

func TestResolver_CallerDeadlineDoesNotFailOthers(t *testing.T) {
	dir := &blockingDirectory{release: make(chan struct{}), entry: svcEntry()}
	r := NewResolver(dir, nil)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	var name string
	var found bool
	var waitErr error
	go func() {
		defer close(done)
		name, found, waitErr = r.ResolveName(context.Background(), "cn=svc1,dc=x")
	}()

	_, _, err := r.ResolveName(short, "cn=svc1,dc=x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(dir.release)
	<-done
	require.NoError(t, waitErr)
	assert.True(t, found)
	assert.Equal(t, "SVC One", name)
	assert.Equal(t, 1, r.CacheLen())
}

func TestResolver_CachesHitsAndMisses(t *testing.T) {
	m := NewMemory(svcEntry())
	r := NewResolver(m, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := r.ResolveName(ctx, "cn=svc1,dc=x")
		require.NoError(t, err)
		_, _, err = r.ResolveName(ctx, "CN=GONE,DC=X")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, m.Lookups())
	assert.Equal(t, 2, r.CacheLen())
}

func TestResolver_ConcurrentLookups(t *testing.T) {
	m := NewMemory(svcEntry())
	r := NewResolver(m, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, found, err := r.ResolveName(context.Background(), "cn=SVC1,dc=x")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "SVC One", name)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Lookups(), 32)
	assert.Equal(t, 1, r.CacheLen())
}

func TestResolver_ErrorsAreNotCached(t *testing.T) {
	f := &failingDirectory{}
	r := NewResolver(f, nil)

	for i := 0; i < 2; i++ {
		_, _, err := r.ResolveName(context.Background(), "cn=svc1,dc=x")
		require.Error(t, err)
		assert.False(t, IsNotFound(err))
	}
	assert.Equal(t, 2, f.calls)
	assert.Equal(t, 0, r.CacheLen())
}

func TestParseYAML(t *testing.T) {
	doc := `
entries:
  - dn: "erglobalid=1,ou=services,dc=x"
    attributes:
      erServiceName: ["HR Feed"]
  - dn: "erglobalid=2,ou=policies,dc=x"
    attributes:
      erpolicyitemname: ["Annual Recert"]
`
	m, err := ParseYAML([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	e, err := m.Lookup(context.Background(), "ERGLOBALID=1,OU=SERVICES,DC=X")
	require.NoError(t, err)
	v, _ := e.First("erservicename")
	assert.Equal(t, "HR Feed", v)
}

func TestParseYAML_Errors(t *testing.T) {
	_, err := ParseYAML([]byte("entries: [ {attributes: {cn: [x]}} ]"))
	assert.Error(t, err)

	_, err = ParseYAML([]byte("entries: : :"))
	assert.Error(t, err)
}

func TestLoadYAMLAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entries:\n  - dn: cn=a\n    attributes:\n      cn: [A]\n"), 0644))

	cfg := DefaultConfig()
	cfg.Kind = KindYAML
	cfg.YAMLPath = path
	require.NoError(t, cfg.Validate())

	dir, err := Open(cfg)
	require.NoError(t, err)
	defer dir.Close()

	e, err := dir.Lookup(context.Background(), "CN=A")
	require.NoError(t, err)
	assert.Equal(t, "cn=a", e.DN)

	_, err = LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "ldap without url", mutate: func(c *Config) { c.URL = "" }, wantErr: true},
		{name: "yaml without path", mutate: func(c *Config) { c.Kind = KindYAML }, wantErr: true},
		{name: "unknown kind", mutate: func(c *Config) { c.Kind = "ad" }, wantErr: true},
		{name: "no name attributes", mutate: func(c *Config) { c.NameAttributes = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_PasswordFromEnv(t *testing.T) {
	t.Setenv("MSGAUDIT_TEST_LDAP_PW", "from-env")
	cfg := Config{BindPassword: "from-file", BindPasswordEnv: "MSGAUDIT_TEST_LDAP_PW"}
	assert.Equal(t, "from-env", cfg.password())

	cfg.BindPasswordEnv = "MSGAUDIT_TEST_UNSET_VAR"
	assert.Equal(t, "from-file", cfg.password())
}
