package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
)

func TestClassifyBoundaries(t *testing.T) {
	now := date(2025, time.January, 10)
	threshold := Threshold(now, 3)
	require.Equal(t, date(2025, time.April, 10), threshold)

	knowledge := Knowledge{
		Version{7, 3}:  {Version: Version{7, 3}, DeprecationDate: "2025-01-10", Source: SourceHardcoded, Note: "DBR 7.3 LTS end of support"},
		Version{10, 4}: {Version: Version{10, 4}, DeprecationDate: "2025-04-10", Source: ScrapedSource("https://docs")},
		Version{11, 3}: {Version: Version{11, 3}, DeprecationDate: "2025-04-11", Source: SourceHardcoded},
		Version{9, 1}:  {Version: Version{9, 1}, DeprecationDate: "19.12.2024", Source: SourceHardcoded},
		Version{8, 4}:  {Version: Version{8, 4}, Source: ScrapedSource("https://docs")},
		Version{5, 5}:  {Version: Version{5, 5}, DeprecationDate: "2024-06-01", Source: SourceInference},
	}
	catalog := BuildCatalog(offerings("10.4 LTS", "11.3 LTS", "12.2 LTS", "9.1 LTS"))
	clusters := []databricks.Cluster{
		{ClusterID: "c-now", ClusterName: "etl", SparkVersion: "7.3.x-scala2.12"},
		{ClusterID: "c-threshold", ClusterName: "bi", SparkVersion: "10.4.x-scala2.12"},
		{ClusterID: "c-after", ClusterName: "ml", SparkVersion: "11.3.x-cpu-ml-scala2.12"},
		{ClusterID: "c-current", ClusterName: "new", SparkVersion: "12.2.x-scala2.12"},
		{ClusterID: "c-gone", ClusterName: "old", SparkVersion: "6.0.x-scala2.11"},
		{ClusterID: "c-custom", ClusterName: "img", SparkVersion: "custom-image"},
		{ClusterID: "c-baddate", ClusterName: "bad", SparkVersion: "9.1.x-scala2.12"},
		{ClusterID: "c-nodate", ClusterName: "nodate", SparkVersion: "8.4.x-scala2.12"},
		{ClusterID: "c-inferred", ClusterName: "ancient", SparkVersion: "5.5.x-scala2.11"},
	}

	statuses := Classify(clusters, knowledge, catalog, now, threshold, discardLogger())

	want := []ClusterRuntimeStatus{
		{ClusterID: "c-now", ClusterName: "etl", CurrentRuntime: "7.3.x-scala2.12", Status: StatusDeprecated,
			DeprecationDate: "2025-01-10", Note: "DBR 7.3 LTS end of support", Source: SourceHardcoded},
		{ClusterID: "c-threshold", ClusterName: "bi", CurrentRuntime: "10.4.x-scala2.12", Status: StatusSoonDeprecated,
			DeprecationDate: "2025-04-10", Note: "This runtime will be deprecated in 90 days.", Source: ScrapedSource("https://docs")},
		{ClusterID: "c-gone", ClusterName: "old", CurrentRuntime: "6.0.x-scala2.11", Status: StatusDeprecated,
			Note: noteUnavailable, Source: SourceAvailabilityCheck},
		{ClusterID: "c-nodate", ClusterName: "nodate", CurrentRuntime: "8.4.x-scala2.12", Status: StatusDeprecated,
			Note: noteUnavailable, Source: SourceAvailabilityCheck},
		{ClusterID: "c-inferred", ClusterName: "ancient", CurrentRuntime: "5.5.x-scala2.11", Status: StatusDeprecated,
			DeprecationDate: "2024-06-01", Note: noteDeprecatedDefault, Source: SourceInference},
	}
	assert.Equal(t, want, statuses)
}

func TestClassifyDaysRemainingUsesWallClock(t *testing.T) {
	now := time.Date(2025, time.January, 10, 18, 0, 0, 0, time.UTC)
	knowledge := Knowledge{Version{13, 3}: {Version: Version{13, 3}, DeprecationDate: "2025-01-20", Source: SourceHardcoded}}
	clusters := []databricks.Cluster{{ClusterID: "c1", SparkVersion: "13.3.x-scala2.12"}}

	statuses := Classify(clusters, knowledge, nil, now, Threshold(now, 3), discardLogger())
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusSoonDeprecated, statuses[0].Status)
	assert.Equal(t, "This runtime will be deprecated in 9 days.", statuses[0].Note)
}

func TestClassifyClustersDefaultsThreshold(t *testing.T) {
	clk := testingclock.NewFakeClock(date(2025, time.January, 10))
	ws := &fakeWorkspace{
		versions: offerings("13.3 LTS", "14.3 LTS"),
		clusters: []databricks.Cluster{
			{ClusterID: "soon", SparkVersion: "13.3.x-scala2.12"},
			{ClusterID: "later", SparkVersion: "14.3.x-scala2.12"},
		},
	}
	policy := Policy{
		KnownEndOfSupport: []DeprecationRecord{
			{Version: Version{13, 3}, DeprecationDate: "2025-03-01"},
			{Version: Version{14, 3}, DeprecationDate: "2025-06-01"},
		},
		InferenceCutoff:      Version{9, 1},
		SoonDeprecatedMonths: 3,
	}
	m := NewManager(ws, nil, nil, discardLogger(), WithClock(clk), WithPolicy(policy))

	statuses, err := m.ClassifyClusters(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "soon", statuses[0].ClusterID)

	statuses, err = m.ClassifyClusters(context.Background(), Threshold(clk.Now(), 6))
	require.NoError(t, err)
	assert.Len(t, statuses, 2, "an explicit threshold widens the window")
}

func TestClassifyClustersPropagatesAPIError(t *testing.T) {
	ws := &fakeWorkspace{clustersErr: errUpstream, versions: offerings("13.3 LTS")}
	m := NewManager(ws, nil, nil, discardLogger())

	_, err := m.ClassifyClusters(context.Background(), time.Time{})
	var apiErr *databricks.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "list clusters", apiErr.Operation)
}

func TestThresholdClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		months int
		want   time.Time
	}{
		{"mid month", date(2025, time.January, 10), 3, date(2025, time.April, 10)},
		{"nov 30 to february", date(2025, time.November, 30), 3, date(2026, time.February, 28)},
		{"jan 31 to february", date(2025, time.January, 31), 1, date(2025, time.February, 28)},
		{"jan 31 to leap february", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"jan 31 to april", date(2025, time.January, 31), 3, date(2025, time.April, 30)},
		{"aug 31 to november", date(2025, time.August, 31), 3, date(2025, time.November, 30)},
		{"year rollover", date(2025, time.December, 15), 3, date(2026, time.March, 15)},
		{"keeps wall clock", time.Date(2025, time.November, 30, 18, 30, 0, 0, time.UTC), 3,
			time.Date(2026, time.February, 28, 18, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Threshold(tt.now, tt.months))
		})
	}
}

func TestClassifyMonthEndWindow(t *testing.T) {
	now := date(2025, time.November, 30)
	knowledge := Knowledge{
		Version{13, 3}: {Version: Version{13, 3}, DeprecationDate: "2026-02-28", Source: SourceHardcoded},
		Version{14, 3}: {Version: Version{14, 3}, DeprecationDate: "2026-03-01", Source: SourceHardcoded},
	}
	catalog := BuildCatalog(offerings("13.3 LTS", "14.3 LTS"))
	clusters := []databricks.Cluster{
		{ClusterID: "last-day", SparkVersion: "13.3.x-scala2.12"},
		{ClusterID: "next-month", SparkVersion: "14.3.x-scala2.12"},
	}

	statuses := Classify(clusters, knowledge, catalog, now, Threshold(now, 3), discardLogger())
	require.Len(t, statuses, 1, "a runtime retired on Mar 1 is outside a three month window from Nov 30")
	assert.Equal(t, "last-day", statuses[0].ClusterID)
	assert.Equal(t, StatusSoonDeprecated, statuses[0].Status)
	assert.Equal(t, "This runtime will be deprecated in 90 days.", statuses[0].Note)
}

func TestClassifyClustersCountsSkipped(t *testing.T) {
	clk := testingclock.NewFakeClock(date(2025, time.January, 10))
	ws := &fakeWorkspace{
		versions: offerings("13.3 LTS", "14.3 LTS"),
		clusters: []databricks.Cluster{
			{ClusterID: "custom", SparkVersion: "custom-image"},
			{ClusterID: "bad-date", SparkVersion: "13.3.x-scala2.12"},
			{ClusterID: "healthy", SparkVersion: "14.3.x-scala2.12"},
		},
	}
	policy := Policy{
		KnownEndOfSupport:    []DeprecationRecord{{Version: Version{13, 3}, DeprecationDate: "soon"}},
		InferenceCutoff:      Version{9, 1},
		SoonDeprecatedMonths: 3,
	}
	m := NewManager(ws, nil, nil, discardLogger(), WithClock(clk), WithPolicy(policy))

	skippedBefore := testutil.ToFloat64(clustersClassifiedTotal.WithLabelValues(skippedLabel))
	supportedBefore := testutil.ToFloat64(clustersClassifiedTotal.WithLabelValues(string(StatusSupported)))

	statuses, err := m.ClassifyClusters(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, statuses)
	assert.Equal(t, 2.0, testutil.ToFloat64(clustersClassifiedTotal.WithLabelValues(skippedLabel))-skippedBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(clustersClassifiedTotal.WithLabelValues(string(StatusSupported)))-supportedBefore)
}
