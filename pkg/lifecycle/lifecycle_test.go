package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
)

// fakeWorkspace serves a fixed cluster list and runtime catalog and counts calls.
type fakeWorkspace struct {
	clusters      []databricks.Cluster
	versions      []databricks.SparkVersion
	clustersErr   error
	versionsErr   error
	versionsCalls int
	clustersCalls int
}

func (f *fakeWorkspace) ListClusters(context.Context) ([]databricks.Cluster, error) {
	f.clustersCalls++
	if f.clustersErr != nil {
		return nil, f.clustersErr
	}
	return f.clusters, nil
}

func (f *fakeWorkspace) ListSparkVersions(context.Context) ([]databricks.SparkVersion, error) {
	f.versionsCalls++
	if f.versionsErr != nil {
		return nil, f.versionsErr
	}
	return f.versions, nil
}

// fakeFetcher returns canned pages; URLs without a page fail.
type fakeFetcher struct {
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: connection refused", url)
	}
	return []byte(page), nil
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func offerings(names ...string) []databricks.SparkVersion {
	out := make([]databricks.SparkVersion, 0, len(names))
	for _, n := range names {
		out = append(out, databricks.SparkVersion{Key: "key-" + n, Name: n})
	}
	return out
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var errUpstream = &databricks.APIError{Operation: "list clusters", StatusCode: 503, Err: errors.New("service unavailable")}
