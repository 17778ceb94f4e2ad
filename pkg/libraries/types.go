package libraries

import (
	"context"

	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
)

// Severity ranks how urgently a library should be updated.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// LibraryTypePyPI marks findings for Python packages.
const LibraryTypePyPI = "pypi"

const (
	reasonNewerVersion = "Newer version available"
	recommendLatest    = "latest"
)

// Finding is one library on a cluster that should be updated.
type Finding struct {
	LibraryName        string   `json:"library_name" yaml:"library_name"`
	Type               string   `json:"type" yaml:"type"`
	CurrentVersion     string   `json:"current_version" yaml:"current_version"`
	RecommendedVersion string   `json:"recommended_version" yaml:"recommended_version"`
	Reason             string   `json:"reason" yaml:"reason"`
	Severity           Severity `json:"severity" yaml:"severity"`
}

// LibraryLister reads installed libraries from a workspace.
type LibraryLister interface {
	ListLibraryStatuses(ctx context.Context, clusterID string) ([]databricks.LibraryStatus, error)
}

// VersionIndex resolves the latest published version of a package.
type VersionIndex interface {
	LatestVersion(ctx context.Context, pkg string) (string, error)
}

// Cache is the expiring cache consulted before index lookups.
type Cache interface {
	Get(key string, v any) bool
	Set(key string, v any)
}
