package directory

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Resolver turns a DN into a display name
type Resolver interface {
	ResolveName(ctx context.Context, dn string) (string, bool, error)
}

type cached struct {
	name  string
	found bool
}

// NameResolver adapts a Directory to Resolver. DNs are folded at this
// boundary so every comparison downstream is case-insensitive. Hits and
// misses are cached for the resolver's lifetime; lookup errors are not.
type NameResolver struct {
	dir   Directory
	attrs []string

	mu     sync.RWMutex
	cache  map[string]cached
	flight singleflight.Group
}

// NewResolver creates a resolver reading the first non-empty value among
// nameAttrs. An empty list selects DefaultNameAttributes.
func NewResolver(dir Directory, nameAttrs []string) *NameResolver {
	if len(nameAttrs) == 0 {
		nameAttrs = DefaultNameAttributes()
	}
	return &NameResolver{
		dir:   dir,
		attrs: nameAttrs,
		cache: make(map[string]cached),
	}
}

// ResolveName implements Resolver. Only a missing entry is reported as not
// found; an entry without any of the name attributes resolves to its DN.
//
// The lookup itself runs detached from ctx so that one caller's deadline
// does not fail other callers waiting on the same DN. A caller whose ctx
// ends first gets ctx.Err() while the lookup completes and is cached.
func (r *NameResolver) ResolveName(ctx context.Context, dn string) (string, bool, error) {
	key := NormalizeDN(dn)
	if key == "" {
		return "", false, nil
	}

	r.mu.RLock()
	c, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return c.name, c.found, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	lookupCtx := context.WithoutCancel(ctx)
	ch := r.flight.DoChan(key, func() (any, error) {
		entry, err := r.dir.Lookup(lookupCtx, strings.TrimSpace(dn))
		if err != nil && !IsNotFound(err) {
			return nil, err
		}

		var res cached
		if err == nil {
			res.name, res.found = r.displayName(entry, dn), true
		}

		r.mu.Lock()
		r.cache[key] = res
		r.mu.Unlock()
		return res, nil
	})

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return "", false, out.Err
		}
		res := out.Val.(cached)
		return res.name, res.found, nil
	}
}

// displayName returns the first non-empty name attribute, or the DN
func (r *NameResolver) displayName(e *Entry, dn string) string {
	for _, attr := range r.attrs {
		if v, ok := e.First(attr); ok && v != "" {
			return v
		}
	}
	if e.DN != "" {
		return e.DN
	}
	return strings.TrimSpace(dn)
}

// CacheLen returns the number of cached DNs
func (r *NameResolver) CacheLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
