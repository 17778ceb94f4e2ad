package databricks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/go-autorest/autorest/to"
	"github.com/sirupsen/logrus"
)

const (
	moduleName    = "databricks-maintenance"
	moduleVersion = "v0.1.0"

	// ClustersListCacheKey caches the raw cluster list.
	ClustersListCacheKey = "clusters_list"
	// SparkVersionsCacheKey caches the raw runtime offerings.
	SparkVersionsCacheKey = "spark_versions"

	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 2
	defaultRetryDelay = 2 * time.Second
)

// Cache is the expiring cache consulted before list calls.
type Cache interface {
	Get(key string, v any) bool
	Set(key string, v any)
}

// ClientOptions configures the workspace API client.
type ClientOptions struct {
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Zero disables retries.
	MaxRetries int
	// RetryDelay is the base of the exponential backoff between attempts.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// Transport overrides the HTTP transport (primarily for tests).
	Transport policy.Transporter
	Cache     Cache
	Logger    *logrus.Logger
}

// Client talks to the Databricks cluster-management REST API through an azcore
// pipeline that applies retry with exponential backoff and per-attempt timeouts.
type Client struct {
	endpoint string
	pipeline runtime.Pipeline
	cache    Cache
	logger   *logrus.Logger
}

// DefaultClientOptions returns the retry and timeout policy used against workspaces.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
	}
}

// NewClient creates a client for the workspace at workspaceURL.
// authPolicy is added to every attempt and is expected to set the Authorization header.
func NewClient(workspaceURL string, authPolicy policy.Policy, opts *ClientOptions) (*Client, error) {
	if opts == nil {
		opts = DefaultClientOptions()
	}
	u, err := url.Parse(strings.TrimRight(workspaceURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid workspace URL %q: %w", workspaceURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("workspace URL %q must use http or https", workspaceURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("workspace URL %q has no host", workspaceURL)
	}

	maxRetries := int32(opts.MaxRetries)
	if maxRetries <= 0 {
		// azcore treats zero as "use the default"; negative disables retries
		maxRetries = -1
	}

	clientOpts := &policy.ClientOptions{
		Retry: policy.RetryOptions{
			MaxRetries:    maxRetries,
			TryTimeout:    opts.Timeout,
			RetryDelay:    opts.RetryDelay,
			MaxRetryDelay: opts.MaxRetryDelay,
		},
		Telemetry: policy.TelemetryOptions{
			ApplicationID: moduleName,
		},
	}
	if opts.Transport != nil {
		clientOpts.Transport = opts.Transport
	}

	plOpts := runtime.PipelineOptions{}
	if authPolicy != nil {
		plOpts.PerRetry = append(plOpts.PerRetry, authPolicy)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		endpoint: u.String(),
		pipeline: runtime.NewPipeline(moduleName, moduleVersion, plOpts, clientOpts),
		cache:    opts.Cache,
		logger:   logger,
	}, nil
}

// ListClusters returns every cluster in the workspace.
func (c *Client) ListClusters(ctx context.Context) ([]Cluster, error) {
	var clusters []Cluster
	if c.cache != nil && c.cache.Get(ClustersListCacheKey, &clusters) {
		return clusters, nil
	}

	var resp clusterListResponse
	if err := c.get(ctx, "list clusters", "2.0/clusters/list", nil, &resp); err != nil {
		return nil, err
	}

	for _, cl := range resp.Clusters {
		c.logger.Debugf("Found cluster %s (%s) on %s created by %s",
			cl.ClusterName, cl.ClusterID, cl.SparkVersion, to.String(cl.CreatorUserName))
	}

	if c.cache != nil {
		c.cache.Set(ClustersListCacheKey, resp.Clusters)
	}
	return resp.Clusters, nil
}

// ListSparkVersions returns the runtime offerings available for cluster creation.
func (c *Client) ListSparkVersions(ctx context.Context) ([]SparkVersion, error) {
	var versions []SparkVersion
	if c.cache != nil && c.cache.Get(SparkVersionsCacheKey, &versions) {
		return versions, nil
	}

	var resp sparkVersionsResponse
	if err := c.get(ctx, "list runtime versions", "2.0/clusters/spark-versions", nil, &resp); err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(SparkVersionsCacheKey, resp.Versions)
	}
	return resp.Versions, nil
}

// ListLibraryStatuses returns the libraries installed on a cluster.
func (c *Client) ListLibraryStatuses(ctx context.Context, clusterID string) ([]LibraryStatus, error) {
	if clusterID == "" {
		return nil, fmt.Errorf("cluster ID is required")
	}
	var resp libraryStatusResponse
	q := url.Values{"cluster_id": []string{clusterID}}
	if err := c.get(ctx, "list libraries for cluster "+clusterID, "2.0/libraries/cluster-status", q, &resp); err != nil {
		return nil, err
	}
	return resp.LibraryStatuses, nil
}

// get issues a GET against /api/<path> and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, operation, path string, query url.Values, out any) error {
	req, err := runtime.NewRequest(ctx, http.MethodGet, c.endpoint+"/api/"+path)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	if query != nil {
		req.Raw().URL.RawQuery = query.Encode()
	}
	req.Raw().Header.Set("Accept", "application/json")

	resp, err := c.pipeline.Do(req)
	if err != nil {
		c.logger.Errorf("Databricks API %s failed after retries: %v", operation, err)
		return &APIError{Operation: operation, Err: err}
	}
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		respErr := runtime.NewResponseError(resp)
		c.logger.Errorf("Databricks API %s returned status %d", operation, resp.StatusCode)
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Err: respErr}
	}
	if err := runtime.UnmarshalAsJSON(resp, out); err != nil {
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
