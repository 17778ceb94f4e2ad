package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/datalytyx/databricks-maintenance/pkg/config"
	"github.com/datalytyx/databricks-maintenance/pkg/utils"
)

// SQLiteFileName is the database file of the sqlite backend inside the cache directory.
const SQLiteFileName = "cache.db"

// NewStore opens the store selected by cfg.Backend.
func NewStore(cfg config.CacheConfig) (Store, error) {
	dir := utils.ExpandHome(cfg.Directory)
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileStore(dir)
	case config.BackendSQLite:
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
		return NewSQLiteStore(filepath.Join(dir, SQLiteFileName))
	case config.BackendMemory:
		return NewMemoryStore(cfg.MaxEntries)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// NewFromConfig builds the cache described by cfg. When the configured store
// cannot be opened the cache falls back to memory.
func NewFromConfig(cfg config.CacheConfig, logger *logrus.Logger, opts ...Option) *Cache {
	store, err := NewStore(cfg)
	if err != nil {
		if logger != nil {
			logger.Warnf("Falling back to in-memory cache: %v", err)
		}
		store, _ = NewMemoryStore(cfg.MaxEntries)
	}
	return New(store, cfg.TTLDuration(), logger, opts...)
}
