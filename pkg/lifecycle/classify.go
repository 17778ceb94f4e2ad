package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
)

const (
	noteUnavailable       = "This runtime is no longer available for new cluster creation"
	noteDeprecatedDefault = "This runtime version is deprecated."

	// skippedLabel counts clusters left out of classification.
	skippedLabel = "skipped"
)

// Threshold returns the SOON_DEPRECATED boundary: months calendar months after now.
// The day is clamped to the end of the target month, so Nov 30 + 3 is Feb 28.
func Threshold(now time.Time, months int) time.Time {
	year, month, day := now.Date()
	hour, minute, sec := now.Clock()
	first := time.Date(year, month+time.Month(months), 1, hour, minute, sec, now.Nanosecond(), now.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

// ClassifyClusters returns the at-risk clusters of the workspace. A zero threshold
// uses the policy's look-ahead window.
func (m *Manager) ClassifyClusters(ctx context.Context, threshold time.Time) ([]ClusterRuntimeStatus, error) {
	now := m.clock.Now()
	if threshold.IsZero() {
		threshold = Threshold(now, m.policy.SoonDeprecatedMonths)
	}

	clusters, err := m.client.ListClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	knowledge, err := m.ResolveDeprecationKnowledge(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve deprecation knowledge: %w", err)
	}
	catalog, err := m.ListAvailableRuntimes(ctx)
	if err != nil {
		return nil, err
	}

	statuses, skipped := classify(clusters, knowledge, catalog, now, threshold, m.logger)
	for _, s := range statuses {
		clustersClassifiedTotal.WithLabelValues(string(s.Status)).Inc()
	}
	if skipped > 0 {
		clustersClassifiedTotal.WithLabelValues(skippedLabel).Add(float64(skipped))
	}
	if supported := len(clusters) - len(statuses) - skipped; supported > 0 {
		clustersClassifiedTotal.WithLabelValues(string(StatusSupported)).Add(float64(supported))
	}
	m.logger.Infof("Classified %d clusters, %d at risk", len(clusters), len(statuses))
	return statuses, nil
}

// Classify evaluates each cluster against the deprecation knowledge and the catalog
// and returns only the clusters that are not SUPPORTED, in input order.
func Classify(clusters []databricks.Cluster, knowledge Knowledge, catalog []RuntimeVersion,
	now, threshold time.Time, log logrus.FieldLogger) []ClusterRuntimeStatus {
	statuses, _ := classify(clusters, knowledge, catalog, now, threshold, log)
	return statuses
}

// classify also returns how many clusters were skipped for an unparseable
// runtime or deprecation date.
func classify(clusters []databricks.Cluster, knowledge Knowledge, catalog []RuntimeVersion,
	now, threshold time.Time, log logrus.FieldLogger) ([]ClusterRuntimeStatus, int) {
	available := availableVersions(catalog)
	var statuses []ClusterRuntimeStatus
	skipped := 0

	for _, cl := range clusters {
		v, ok := ParseVersion(cl.SparkVersion)
		if !ok {
			log.Debugf("Skipping cluster %s: cannot parse runtime %q", cl.ClusterID, cl.SparkVersion)
			skipped++
			continue
		}

		status := ClusterRuntimeStatus{
			ClusterID:      cl.ClusterID,
			ClusterName:    cl.ClusterName,
			CurrentRuntime: cl.SparkVersion,
		}

		if rec, found := knowledge[v]; found {
			date, hasDate, err := rec.Date()
			if err != nil {
				log.Warnf("Skipping cluster %s: %v", cl.ClusterID, err)
				skipped++
				continue
			}
			if hasDate {
				status.DeprecationDate = rec.DeprecationDate
				status.Source = rec.Source
				switch {
				case !date.After(now):
					status.Status = StatusDeprecated
					status.Note = rec.Note
					if status.Note == "" {
						status.Note = noteDeprecatedDefault
					}
				case !date.After(threshold):
					status.Status = StatusSoonDeprecated
					days := int(date.Sub(now).Hours() / 24)
					status.Note = fmt.Sprintf("This runtime will be deprecated in %d days.", days)
				default:
					continue
				}
				statuses = append(statuses, status)
				continue
			}
		}

		if !available[v] {
			status.Status = StatusDeprecated
			status.Source = SourceAvailabilityCheck
			status.Note = noteUnavailable
			statuses = append(statuses, status)
		}
	}
	return statuses, skipped
}
