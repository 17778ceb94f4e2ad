package lifecycle

import (
	"context"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
)

// WorkspaceClient is the subset of the workspace API client the lifecycle engine needs.
// It exists to allow lightweight fakes in unit tests.
type WorkspaceClient interface {
	ListClusters(ctx context.Context) ([]databricks.Cluster, error)
	ListSparkVersions(ctx context.Context) ([]databricks.SparkVersion, error)
}

// DocumentFetcher returns the raw markup of a documentation page.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Cache is the expiring key/value cache. Implementations must fail open.
type Cache interface {
	Get(key string, v any) bool
	Set(key string, v any)
}

// Manager resolves the runtime catalog and deprecation knowledge for a workspace,
// classifies its clusters and recommends upgrade targets.
type Manager struct {
	client  WorkspaceClient
	fetcher DocumentFetcher
	cache   Cache
	clock   clock.PassiveClock
	logger  *logrus.Logger
	policy  Policy
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock sets the clock used for "now" in merge and classification.
func WithClock(c clock.PassiveClock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithPolicy replaces the default lifecycle policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// NewManager creates a lifecycle manager. A nil cache disables caching.
func NewManager(client WorkspaceClient, fetcher DocumentFetcher, cache Cache, logger *logrus.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if cache == nil {
		cache = noopCache{}
	}
	m := &Manager{
		client:  client,
		fetcher: fetcher,
		cache:   cache,
		clock:   clock.RealClock{},
		logger:  logger,
		policy:  DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the lifecycle policy in effect.
func (m *Manager) Policy() Policy {
	return m.policy
}

type noopCache struct{}

func (noopCache) Get(string, any) bool { return false }
func (noopCache) Set(string, any) {}
