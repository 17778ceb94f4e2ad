package libraries

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalytyx/databricks-maintenance/pkg/cache"
	"github.com/datalytyx/databricks-maintenance/pkg/config"
	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
	"github.com/datalytyx/databricks-maintenance/pkg/fetch"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeLister struct {
	statuses []databricks.LibraryStatus
	err      error
}

func (f *fakeLister) ListLibraryStatuses(context.Context, string) ([]databricks.LibraryStatus, error) {
	return f.statuses, f.err
}

type fakeIndex struct {
	mu       sync.Mutex
	versions map[string]string
	queried  []string
}

func (f *fakeIndex) LatestVersion(_ context.Context, pkg string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, pkg)
	v, ok := f.versions[pkg]
	if !ok {
		return "", fmt.Errorf("package %s not found", pkg)
	}
	return v, nil
}

func pypi(pkg, repo, resolved string) databricks.LibraryStatus {
	st := databricks.LibraryStatus{
		Library: databricks.Library{PyPI: &databricks.PyPILibrary{Package: pkg, Repo: repo}},
		Status:  "INSTALLED",
	}
	if resolved != "" {
		st.LibraryDetails = &databricks.LibraryDetails{PyPI: &databricks.PyPIDetails{Version: resolved}}
	}
	return st
}

func TestCheckCluster(t *testing.T) {
	lister := &fakeLister{statuses: []databricks.LibraryStatus{
		pypi("scikit-learn", "pypi==1.0.0", ""),
		pypi("numpy", "pypi==1.19.0", ""),
		pypi("requests", "", "2.28.0"),
		pypi("pandas==1.3.4", "", ""),
		pypi("unknown-version", "", ""),
		pypi("missing-on-index", "", "0.1.0"),
		{Library: databricks.Library{Maven: &databricks.MavenLibrary{Coordinates: "org.example:lib:1.0"}}},
		pypi("pyjwt", "", "1.7.1"),
	}}
	index := &fakeIndex{versions: map[string]string{
		"scikit-learn": "1.3.2",
		"requests":     "2.31.0",
		"pandas":       "1.3.4",
	}}

	checker, err := NewChecker(lister, index, config.DefaultSecurityMinimums, 3, quietLogger())
	require.NoError(t, err)

	findings, err := checker.CheckCluster(context.Background(), "0101-abc")
	require.NoError(t, err)

	want := []Finding{
		{LibraryName: "numpy", Type: LibraryTypePyPI, CurrentVersion: "1.19.0", RecommendedVersion: "latest",
			Reason: "Security vulnerabilities in versions before 1.22.0", Severity: SeverityHigh},
		{LibraryName: "pyjwt", Type: LibraryTypePyPI, CurrentVersion: "1.7.1", RecommendedVersion: "latest",
			Reason: "Security vulnerabilities in versions before 2.0.0", Severity: SeverityHigh},
		{LibraryName: "requests", Type: LibraryTypePyPI, CurrentVersion: "2.28.0", RecommendedVersion: "2.31.0",
			Reason: reasonNewerVersion, Severity: SeverityMedium},
		{LibraryName: "scikit-learn", Type: LibraryTypePyPI, CurrentVersion: "1.0.0", RecommendedVersion: "1.3.2",
			Reason: reasonNewerVersion, Severity: SeverityLow},
	}
	assert.Equal(t, want, findings)
	assert.NotContains(t, index.queried, "numpy", "a security finding needs no index lookup")
	assert.NotContains(t, index.queried, "unknown-version")
}

func TestCheckClusterListError(t *testing.T) {
	upstream := &databricks.APIError{Operation: "list libraries", StatusCode: 500, Err: errors.New("boom")}
	checker, err := NewChecker(&fakeLister{err: upstream}, &fakeIndex{}, nil, 2, quietLogger())
	require.NoError(t, err)

	_, err = checker.CheckCluster(context.Background(), "c1")
	var apiErr *databricks.APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestNewCheckerRejectsBadMinimum(t *testing.T) {
	_, err := NewChecker(&fakeLister{}, &fakeIndex{}, map[string]string{"numpy": "not-a-version"}, 1, nil)
	assert.Error(t, err)
}

func TestInstalledPyPIVersion(t *testing.T) {
	tests := []struct {
		status      databricks.LibraryStatus
		wantName    string
		wantVersion string
	}{
		{pypi("numpy==1.21.0", "", "9.9.9"), "numpy", "1.21.0"},
		{pypi("numpy", "pypi==1.19.0", ""), "numpy", "1.19.0"},
		{pypi("pandas>=1.0", "", "1.2.0"), "pandas", "1.2.0"},
		{pypi("requests[socks]", "", ""), "requests", ""},
		{databricks.LibraryStatus{Library: databricks.Library{Jar: "dbfs:/lib.jar"}}, "", ""},
	}
	for _, tt := range tests {
		name, version := InstalledPyPIVersion(tt.status)
		assert.Equal(t, tt.wantName, name)
		assert.Equal(t, tt.wantVersion, version)
	}
}

func TestParseVersion(t *testing.T) {
	older, err := ParseVersion("2.0rc1")
	require.NoError(t, err)
	final, err := ParseVersion("2.0")
	require.NoError(t, err)
	post, err := ParseVersion("2.0.post1")
	require.NoError(t, err)

	assert.True(t, older.LessThan(final))
	assert.False(t, post.GreaterThan(final))
	assert.False(t, post.LessThan(final))

	v, err := ParseVersion("1.26.5")
	require.NoError(t, err)
	assert.Equal(t, "1.26.5", v.String())

	_, err = ParseVersion("banana")
	assert.Error(t, err)
}

func TestPyPIIndexCachesLatestVersion(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		switch r.URL.Path {
		case "/pypi/numpy/json":
			_, _ = io.WriteString(w, `{"info":{"name":"numpy","version":"1.26.4"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store, err := cache.NewMemoryStore(8)
	require.NoError(t, err)
	c := cache.New(store, time.Minute, quietLogger())
	index := NewPyPIIndex(srv.URL+"/pypi/", fetch.New(time.Second, quietLogger()), c)

	for range 2 {
		v, err := index.LatestVersion(context.Background(), "numpy")
		require.NoError(t, err)
		assert.Equal(t, "1.26.4", v)
	}
	assert.Equal(t, 1, hits)

	var cached cachedVersion
	require.True(t, c.Get(CacheKey("numpy"), &cached))
	assert.Equal(t, "1.26.4", cached.LatestVersion)

	_, err = index.LatestVersion(context.Background(), "does-not-exist")
	assert.Error(t, err)
}
