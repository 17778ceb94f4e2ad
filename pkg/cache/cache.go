package cache

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// ErrNotFound is returned by a Store when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one stored payload.
type Entry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	WrittenAt time.Time       `json:"written_at"`
}

// Store persists cache entries. Implementations report storage failures as errors;
// the Cache turns them into misses and no-ops.
type Store interface {
	Load(key string) (Entry, error)
	Save(entry Entry) error
	Delete(key string) (bool, error)
	Clear() error
}

// Cache is an expiring key/value cache with a fixed time-to-live.
// Storage failures never reach callers.
type Cache struct {
	store  Store
	ttl    time.Duration
	clock  clock.PassiveClock
	logger *logrus.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock sets the clock used to stamp and expire entries.
func WithClock(c clock.PassiveClock) Option {
	return func(ca *Cache) {
		if c != nil {
			ca.clock = c
		}
	}
}

// New creates a cache over store with the given time-to-live.
func New(store Store, ttl time.Duration, logger *logrus.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Cache{
		store:  store,
		ttl:    ttl,
		clock:  clock.RealClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get decodes the payload stored under key into v. It returns false when the
// entry is missing, older than the TTL, or unreadable.
func (c *Cache) Get(key string, v any) bool {
	entry, err := c.store.Load(key)
	if errors.Is(err, ErrNotFound) {
		lookupsTotal.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		c.logger.Warnf("Cache read failed for %s: %v", key, err)
		return false
	}

	if c.clock.Since(entry.WrittenAt) > c.ttl {
		lookupsTotal.WithLabelValues("expired").Inc()
		c.logger.Debugf("Cache entry %s expired", key)
		return false
	}

	if err := json.Unmarshal(entry.Payload, v); err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		c.logger.Warnf("Cache entry %s is corrupt: %v", key, err)
		return false
	}
	lookupsTotal.WithLabelValues("hit").Inc()
	c.logger.Debugf("Cache hit for %s", key)
	return true
}

// Set stores v under key, replacing any previous entry.
func (c *Cache) Set(key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Warnf("Cache write skipped for %s: %v", key, err)
		return
	}
	entry := Entry{Key: key, Payload: payload, WrittenAt: c.clock.Now().UTC()}
	if err := c.store.Save(entry); err != nil {
		c.logger.Warnf("Cache write failed for %s: %v", key, err)
	}
}

// Invalidate removes the entry for key and reports whether one existed.
func (c *Cache) Invalidate(key string) bool {
	removed, err := c.store.Delete(key)
	if err != nil {
		c.logger.Warnf("Cache invalidate failed for %s: %v", key, err)
		return false
	}
	return removed
}

// Clear removes every entry.
func (c *Cache) Clear() {
	if err := c.store.Clear(); err != nil {
		c.logger.Warnf("Cache clear failed: %v", err)
	}
}
