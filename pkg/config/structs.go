package config

import (
	"sort"
	"strings"
	"time"
)

// Config represents the complete toolkit configuration structure.
// It contains workspace connection settings and the tunables of each component.
type Config struct {
	Workspaces map[string]*WorkspaceConfig `json:"workspaces" yaml:"workspaces"`
	Cache      CacheConfig                 `json:"cache" yaml:"cache"`
	API        APIConfig                   `json:"api" yaml:"api"`
	Runtime    RuntimeConfig               `json:"runtime" yaml:"runtime"`
	Libraries  LibrariesConfig             `json:"libraries" yaml:"libraries"`
	Report     ReportConfig                `json:"report" yaml:"report"`
	Logging    LoggingConfig               `json:"logging" yaml:"logging"`
}

// WorkspaceConfig holds the connection settings of one Databricks workspace.
type WorkspaceConfig struct {
	URL                     string                  `json:"url" yaml:"url"`                                               // Workspace URL, e.g. https://adb-123.4.azuredatabricks.net
	Token                   string                  `json:"token" yaml:"token"`                                           // Personal access token or ${ENV_VAR} reference
	AuthType                string                  `json:"authType" yaml:"authType"`                                     // pat, azure-cli, service-principal or managed-identity
	ServicePrincipal        *ServicePrincipalConfig `json:"servicePrincipal,omitempty" yaml:"servicePrincipal,omitempty"` // Required for service-principal auth
	ManagedIdentityClientID string                  `json:"managedIdentityClientId,omitempty" yaml:"managedIdentityClientId,omitempty"`
}

// ServicePrincipalConfig holds Azure service principal authentication configuration.
// When provided with authType service-principal, an Azure AD token is requested for the workspace.
type ServicePrincipalConfig struct {
	TenantID     string `json:"tenantId" yaml:"tenantId"`         // Azure AD tenant ID
	ClientID     string `json:"clientId" yaml:"clientId"`         // Azure AD application (client) ID
	ClientSecret string `json:"clientSecret" yaml:"clientSecret"` // Azure AD application client secret
}

// CacheConfig holds configuration of the expiring cache.
type CacheConfig struct {
	TTL        int    `json:"ttl" yaml:"ttl"`               // Time-to-live in seconds
	Directory  string `json:"directory" yaml:"directory"`   // Directory for the file and sqlite backends
	Backend    string `json:"backend" yaml:"backend"`       // file, sqlite or memory
	MaxEntries int    `json:"maxEntries" yaml:"maxEntries"` // Size bound of the memory backend
}

// TTLDuration returns the TTL as a duration.
func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// APIConfig holds retry and timeout settings of the workspace API client.
type APIConfig struct {
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries    int           `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay    time.Duration `json:"retryDelay" yaml:"retryDelay"`
	MaxRetryDelay time.Duration `json:"maxRetryDelay" yaml:"maxRetryDelay"`
}

// RuntimeConfig holds the runtime lifecycle policy.
type RuntimeConfig struct {
	DocumentationURLs    []string            `json:"documentationUrls" yaml:"documentationUrls"`
	InferenceCutoff      string              `json:"inferenceCutoff" yaml:"inferenceCutoff"` // major.minor; older unavailable runtimes are inferred deprecated
	SoonDeprecatedMonths int                 `json:"soonDeprecatedMonths" yaml:"soonDeprecatedMonths"`
	KnownEndOfSupport    []EndOfSupportEntry `json:"knownEndOfSupport" yaml:"knownEndOfSupport"`
	DocumentationTimeout time.Duration       `json:"documentationTimeout" yaml:"documentationTimeout"`
}

// EndOfSupportEntry is one row of the hand-maintained end-of-support table.
type EndOfSupportEntry struct {
	Version string `json:"version" yaml:"version"`
	Date    string `json:"date" yaml:"date"` // YYYY-MM-DD
	Note    string `json:"note,omitempty" yaml:"note,omitempty"`
}

// LibrariesConfig holds configuration of the library update checker.
type LibrariesConfig struct {
	Workers           int               `json:"workers" yaml:"workers"`
	PyPIURL           string            `json:"pypiUrl" yaml:"pypiUrl"`
	RequestsPerSecond float64           `json:"requestsPerSecond" yaml:"requestsPerSecond"`
	SecurityMinimums  map[string]string `json:"securityMinimums" yaml:"securityMinimums"`
}

// ReportConfig holds report generation settings.
type ReportConfig struct {
	MaxLibraryClusters int `json:"maxLibraryClusters" yaml:"maxLibraryClusters"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"` // Logging level: debug, info, warning, error
	LogDir   string `json:"logDir" yaml:"logDir"`     // Optional directory for rotated log files
}

// WorkspaceNames returns the configured workspace names in sorted order.
func (cfg *Config) WorkspaceNames() []string {
	names := make([]string, 0, len(cfg.Workspaces))
	for name := range cfg.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSPConfigured checks if service principal credentials are provided for the workspace
func (ws *WorkspaceConfig) IsSPConfigured() bool {
	return ws.ServicePrincipal != nil &&
		ws.ServicePrincipal.ClientID != "" &&
		ws.ServicePrincipal.ClientSecret != "" &&
		ws.ServicePrincipal.TenantID != ""
}

// Host returns the workspace URL without a trailing slash.
func (ws *WorkspaceConfig) Host() string {
	return strings.TrimRight(ws.URL, "/")
}
