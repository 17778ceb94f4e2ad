package cache

// Scoped is a view of a Cache whose keys live under a scope, so several
// workspaces can share one store without reading each other's entries.
type Scoped struct {
	cache  *Cache
	prefix string
}

// Scope returns a view of c whose keys are prefixed with scope.
func (c *Cache) Scope(scope string) *Scoped {
	return &Scoped{cache: c, prefix: scope + ":"}
}

// Key returns the store key used for key.
func (s *Scoped) Key(key string) string {
	return s.prefix + key
}

func (s *Scoped) Get(key string, v any) bool { return s.cache.Get(s.Key(key), v) }

func (s *Scoped) Set(key string, v any) { s.cache.Set(s.Key(key), v) }

func (s *Scoped) Invalidate(key string) bool { return s.cache.Invalidate(s.Key(key)) }
