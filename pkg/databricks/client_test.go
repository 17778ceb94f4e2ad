package databricks

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalytyx/databricks-maintenance/pkg/auth"
	"github.com/datalytyx/databricks-maintenance/pkg/cache"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*ClientOptions)) *Client {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	opts := &ClientOptions{
		Timeout:       5 * time.Second,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 5 * time.Millisecond,
		Transport:     srv.Client(),
		Logger:        quietLogger(),
	}
	if mutate != nil {
		mutate(opts)
	}
	client, err := NewClient(srv.URL, auth.NewTokenPolicy("dapi-test"), opts)
	require.NoError(t, err)
	return client
}

func TestListClusters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2.0/clusters/list", r.URL.Path)
		assert.Equal(t, "Bearer dapi-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"clusters":[
			{"cluster_id":"0101-abc","cluster_name":"prod-etl","spark_version":"7.3.x-scala2.12","creator_user_name":"ops@example.com"},
			{"cluster_id":"0101-def","cluster_name":"devbox","spark_version":"13.3.x-scala2.12"}]}`)
	}, nil)

	clusters, err := client.ListClusters(t.Context())
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "prod-etl", clusters[0].ClusterName)
	assert.Equal(t, "7.3.x-scala2.12", clusters[0].SparkVersion)
	require.NotNil(t, clusters[0].CreatorUserName)
	assert.Nil(t, clusters[1].CreatorUserName)
}

func TestRetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	_, err := client.ListSparkVersions(t.Context())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "list runtime versions", apiErr.Operation)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(3), attempts.Load(), "first attempt plus two retries")
}

func TestRetryRecovers(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"versions":[{"key":"13.3.x-scala2.12","name":"13.3 LTS (includes Apache Spark 3.4.1, Scala 2.12)"}]}`)
	}, nil)

	versions, err := client.ListSparkVersions(t.Context())
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "13.3.x-scala2.12", versions[0].Key)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestZeroRetriesMakesSingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(o *ClientOptions) { o.MaxRetries = 0 })

	_, err := client.ListClusters(t.Context())
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestNonRetriableStatus(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error_code":"PERMISSION_DENIED","message":"token expired"}`)
	}, nil)

	_, err := client.ListClusters(t.Context())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"clusters": [`)
	}, nil)

	_, err := client.ListClusters(t.Context())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestListsAreCached(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	c := cache.New(store, time.Minute, quietLogger())

	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		switch r.URL.Path {
		case "/api/2.0/clusters/list":
			_, _ = io.WriteString(w, `{"clusters":[{"cluster_id":"c1","cluster_name":"a","spark_version":"9.1.x"}]}`)
		default:
			_, _ = io.WriteString(w, `{"versions":[{"key":"9.1.x-scala2.12","name":"9.1 LTS"}]}`)
		}
	}, func(o *ClientOptions) { o.Cache = c })

	for range 2 {
		clusters, err := client.ListClusters(t.Context())
		require.NoError(t, err)
		require.Len(t, clusters, 1)
		versions, err := client.ListSparkVersions(t.Context())
		require.NoError(t, err)
		require.Len(t, versions, 1)
	}
	assert.Equal(t, int32(2), attempts.Load(), "one request per endpoint")

	assert.True(t, c.Invalidate(ClustersListCacheKey))
	_, err = client.ListClusters(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWorkspacesSharingAStoreStayIsolated(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	shared := cache.New(store, time.Minute, quietLogger())

	workspace := func(scope, clusterID string) *Client {
		return newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"clusters":[{"cluster_id":"`+clusterID+`","spark_version":"13.3.x-scala2.12"}]}`)
		}, func(o *ClientOptions) { o.Cache = shared.Scope(scope) })
	}
	prod := workspace("adb-1.azuredatabricks.net", "prod-cluster")
	dev := workspace("adb-2.azuredatabricks.net", "dev-cluster")

	prodClusters, err := prod.ListClusters(t.Context())
	require.NoError(t, err)
	devClusters, err := dev.ListClusters(t.Context())
	require.NoError(t, err)

	require.Len(t, prodClusters, 1)
	require.Len(t, devClusters, 1)
	assert.Equal(t, "prod-cluster", prodClusters[0].ClusterID)
	assert.Equal(t, "dev-cluster", devClusters[0].ClusterID)

	var cached []Cluster
	require.True(t, shared.Scope("adb-1.azuredatabricks.net").Get(ClustersListCacheKey, &cached))
	assert.Equal(t, "prod-cluster", cached[0].ClusterID)
	assert.False(t, shared.Get(ClustersListCacheKey, &cached), "scoped entries never land on the bare key")
}

func TestListLibraryStatuses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2.0/libraries/cluster-status", r.URL.Path)
		assert.Equal(t, "0101-abc", r.URL.Query().Get("cluster_id"))
		_, _ = io.WriteString(w, `{"cluster_id":"0101-abc","library_statuses":[
			{"library":{"pypi":{"package":"numpy==1.21.0"}},"status":"INSTALLED"},
			{"library":{"maven":{"coordinates":"org.example:lib:1.0"}},"status":"INSTALLED"},
			{"library":{"pypi":{"package":"pandas"}},"status":"INSTALLED","library_details":{"pypi":{"version":"1.2.0"}}}]}`)
	}, nil)

	statuses, err := client.ListLibraryStatuses(t.Context(), "0101-abc")
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	require.NotNil(t, statuses[0].Library.PyPI)
	assert.Equal(t, "numpy==1.21.0", statuses[0].Library.PyPI.Package)
	assert.Nil(t, statuses[1].Library.PyPI)
	require.NotNil(t, statuses[2].LibraryDetails)
	assert.Equal(t, "1.2.0", statuses[2].LibraryDetails.PyPI.Version)

	_, err = client.ListLibraryStatuses(t.Context(), "")
	assert.Error(t, err)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"ftp://adb-1.azuredatabricks.net", "https://", "://nope"} {
		_, err := NewClient(raw, nil, nil)
		assert.Error(t, err, raw)
	}

	c, err := NewClient("https://adb-1.azuredatabricks.net/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://adb-1.azuredatabricks.net", c.endpoint)
}
