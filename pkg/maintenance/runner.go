package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
	"github.com/datalytyx/databricks-maintenance/pkg/libraries"
	"github.com/datalytyx/databricks-maintenance/pkg/lifecycle"
)

// ClusterLister lists the clusters of a workspace.
type ClusterLister interface {
	ListClusters(ctx context.Context) ([]databricks.Cluster, error)
}

// RuntimeAdvisor classifies cluster runtimes and recommends upgrades.
type RuntimeAdvisor interface {
	ClassifyClusters(ctx context.Context, threshold time.Time) ([]lifecycle.ClusterRuntimeStatus, error)
	RecommendUpgrades(ctx context.Context, statuses []lifecycle.ClusterRuntimeStatus) (map[string]lifecycle.RecommendationRecord, error)
}

// LibraryChecker finds outdated libraries on a cluster.
type LibraryChecker interface {
	CheckCluster(ctx context.Context, clusterID string) ([]libraries.Finding, error)
}

// ClusterLibraries is the library scan outcome of one cluster.
type ClusterLibraries struct {
	ClusterID   string
	ClusterName string
	Findings    []libraries.Finding
	// Err is set when the scan failed.
	Err error
}

// Results collects everything gathered by a maintenance run.
type Results struct {
	Clusters        []databricks.Cluster
	Statuses        []lifecycle.ClusterRuntimeStatus
	Recommendations map[string]lifecycle.RecommendationRecord
	Libraries       []ClusterLibraries

	RuntimeScan *ExecutionResult
	LibraryScan *ExecutionResult
}

// Runner gathers the data of a full maintenance report.
type Runner struct {
	*BaseExecutor
	clusters ClusterLister
	runtimes RuntimeAdvisor
	libs     LibraryChecker
	// maxLibraryClusters bounds how many clusters get a library scan.
	maxLibraryClusters int
}

// NewRunner creates a runner. libs may be nil to skip library scans.
func NewRunner(clusters ClusterLister, runtimes RuntimeAdvisor, libs LibraryChecker, maxLibraryClusters int, logger *logrus.Logger) *Runner {
	return &Runner{
		BaseExecutor:       NewBaseExecutor(logger),
		clusters:           clusters,
		runtimes:           runtimes,
		libs:               libs,
		maxLibraryClusters: maxLibraryClusters,
	}
}

// Run scans runtimes strictly, then scans libraries of the first clusters leniently.
// A zero threshold uses the configured soon-deprecated window.
func (r *Runner) Run(ctx context.Context, threshold time.Time) (*Results, error) {
	res := &Results{}

	runtimeSteps := []Executor{
		Step{Name: "list-clusters", Check: r.requireClusters, Run: func(ctx context.Context) error {
			clusters, err := r.clusters.ListClusters(ctx)
			if err != nil {
				return err
			}
			res.Clusters = clusters
			return nil
		}},
		Step{Name: "classify-runtimes", Check: r.requireRuntimes, Run: func(ctx context.Context) error {
			statuses, err := r.runtimes.ClassifyClusters(ctx, threshold)
			if err != nil {
				return err
			}
			res.Statuses = statuses
			return nil
		}},
		Step{
			Name:  "recommend-upgrades",
			Check: r.requireRuntimes,
			Done:  func() bool { return len(res.Statuses) == 0 },
			Run: func(ctx context.Context) error {
				recs, err := r.runtimes.RecommendUpgrades(ctx, res.Statuses)
				if err != nil {
					return err
				}
				res.Recommendations = recs
				return nil
			},
		},
	}

	scan, err := r.ExecuteSteps(ctx, runtimeSteps, ModeStrict)
	res.RuntimeScan = scan
	if err != nil {
		return res, fmt.Errorf("runtime scan failed: %w", err)
	}

	if r.libs == nil || r.maxLibraryClusters <= 0 {
		return res, nil
	}

	targets := res.Clusters
	if len(targets) > r.maxLibraryClusters {
		targets = targets[:r.maxLibraryClusters]
	}
	res.Libraries = make([]ClusterLibraries, len(targets))
	librarySteps := make([]Executor, 0, len(targets))
	for i, cl := range targets {
		res.Libraries[i] = ClusterLibraries{ClusterID: cl.ClusterID, ClusterName: cl.ClusterName}
		entry := &res.Libraries[i]
		librarySteps = append(librarySteps, Step{
			Name: "check-libraries/" + cl.ClusterID,
			Run: func(ctx context.Context) error {
				findings, err := r.libs.CheckCluster(ctx, entry.ClusterID)
				if err != nil {
					entry.Err = err
					return err
				}
				entry.Findings = findings
				return nil
			},
		})
	}

	// lenient mode only returns an error on cancellation
	res.LibraryScan, err = r.ExecuteSteps(ctx, librarySteps, ModeLenient)
	if err != nil {
		return res, fmt.Errorf("library scan interrupted: %w", err)
	}
	return res, nil
}

func (r *Runner) requireClusters(context.Context) error {
	if r.clusters == nil {
		return errors.New("no cluster lister configured")
	}
	return nil
}

func (r *Runner) requireRuntimes(context.Context) error {
	if r.runtimes == nil {
		return errors.New("no runtime advisor configured")
	}
	return nil
}
