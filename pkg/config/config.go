package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/viper"

	"github.com/datalytyx/databricks-maintenance/pkg/logger"
	"github.com/datalytyx/databricks-maintenance/pkg/utils"
)

const (
	// Default configuration values
	defaultConfigFile    = ".databricks-maintenance.yml"
	defaultCacheDir      = ".databricks-cache"
	defaultCacheTTL      = 60
	defaultCacheBackend  = BackendFile
	defaultLogLevel      = "info"
	defaultTimeout       = 30 * time.Second
	defaultMaxRetries    = 3
	defaultRetryDelay    = 2 * time.Second
	defaultMaxRetryDelay = 60 * time.Second
	defaultDocTimeout    = 30 * time.Second
	defaultCutoff        = "9.1"
	defaultSoonMonths    = 3
	defaultWorkers       = 10
	defaultPyPIURL       = "https://pypi.org/pypi"
	defaultPyPIRate      = 20
	defaultReportLimit   = 5

	// DefaultWorkspace is the workspace name used for the environment fallback.
	DefaultWorkspace = "default"

	// Environment variable prefix
	envPrefix = "DATABRICKS_MAINTENANCE"

	// Fallback workspace environment variables
	envHost  = "DATABRICKS_HOST"
	envToken = "DATABRICKS_TOKEN"
)

// Cache backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Workspace authentication types
const (
	AuthTypePAT              = "pat"
	AuthTypeAzureCLI         = "azure-cli"
	AuthTypeServicePrincipal = "service-principal"
	AuthTypeManagedIdentity  = "managed-identity"
)

// DefaultSecurityMinimums lists the minimum versions of security-critical Python packages.
var DefaultSecurityMinimums = map[string]string{
	"numpy":        "1.22.0",
	"pandas":       "1.3.0",
	"requests":     "2.27.0",
	"cryptography": "36.0.0",
	"pillow":       "9.0.0",
	"tensorflow":   "2.8.0",
	"torch":        "1.10.0",
	"sqlalchemy":   "1.4.0",
	"urllib3":      "1.26.5",
	"pyjwt":        "2.0.0",
}

// Singleton instance for configuration
var (
	configInstance *Config
	configMutex    sync.RWMutex
)

// envReference matches a value that is entirely a ${VAR} environment reference.
var envReference = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// GetConfig returns the singleton configuration instance.
// Returns nil if configuration has not been loaded yet. Use LoadConfig() first.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return configInstance
}

// DefaultConfigPath returns ~/.databricks-maintenance.yml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFile
	}
	return filepath.Join(home, defaultConfigFile)
}

// LoadConfig loads configuration from a YAML or JSON file and environment variables.
// An empty configPath means the default file, which may be absent. An explicit path must exist.
// Environment variables can override file values using the DATABRICKS_MAINTENANCE_ prefix,
// for example DATABRICKS_MAINTENANCE_CACHE_TTL=300.
func LoadConfig(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath()
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerEnvKeys(v)

	if utils.FileExists(configPath) {
		v.SetConfigFile(configPath)
		if ext := strings.ToLower(filepath.Ext(configPath)); ext == ".yml" || ext == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file at %s: %w", configPath, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s not found", configPath)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyEnvFallback(config)
	config.expandTokens()

	// Set defaults for any missing values
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	configMutex.Lock()
	defer configMutex.Unlock()
	configInstance = config

	return config, nil
}

// registerEnvKeys makes scalar keys visible to viper so environment overrides apply
// even when the config file does not mention them.
func registerEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"cache.ttl", "cache.directory", "cache.backend", "cache.maxEntries",
		"api.timeout", "api.maxRetries", "api.retryDelay", "api.maxRetryDelay",
		"runtime.inferenceCutoff", "runtime.soonDeprecatedMonths", "runtime.documentationTimeout",
		"libraries.workers", "libraries.pypiUrl", "libraries.requestsPerSecond",
		"report.maxLibraryClusters",
		"logging.logLevel", "logging.logDir",
	} {
		_ = v.BindEnv(key)
	}
}

// applyEnvFallback configures the default workspace from DATABRICKS_HOST and
// DATABRICKS_TOKEN when the file defines no workspaces.
func applyEnvFallback(cfg *Config) {
	if len(cfg.Workspaces) > 0 {
		return
	}
	host := os.Getenv(envHost)
	if host == "" {
		return
	}
	cfg.Workspaces = map[string]*WorkspaceConfig{
		DefaultWorkspace: {
			URL:   host,
			Token: os.Getenv(envToken),
		},
	}
}

// expandTokens resolves ${VAR} token references from the environment.
func (c *Config) expandTokens() {
	for _, ws := range c.Workspaces {
		if ws == nil {
			continue
		}
		ws.Token = expandEnvReference(ws.Token)
		if ws.ServicePrincipal != nil {
			ws.ServicePrincipal.ClientSecret = expandEnvReference(ws.ServicePrincipal.ClientSecret)
		}
	}
}

func expandEnvReference(value string) string {
	m := envReference.FindStringSubmatch(value)
	if m == nil {
		return value
	}
	return os.Getenv(m[1])
}

// SetDefaults sets default values for any missing configuration fields
func (c *Config) SetDefaults() {
	if c.Workspaces == nil {
		c.Workspaces = make(map[string]*WorkspaceConfig)
	}
	for _, ws := range c.Workspaces {
		if ws != nil && ws.AuthType == "" {
			ws.AuthType = AuthTypePAT
		}
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaultCacheTTL
	}
	if c.Cache.Directory == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Cache.Directory = filepath.Join(home, defaultCacheDir)
		} else {
			c.Cache.Directory = defaultCacheDir
		}
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}

	if c.API.Timeout == 0 {
		c.API.Timeout = defaultTimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = defaultMaxRetries
	}
	if c.API.RetryDelay == 0 {
		c.API.RetryDelay = defaultRetryDelay
	}
	if c.API.MaxRetryDelay == 0 {
		c.API.MaxRetryDelay = defaultMaxRetryDelay
	}

	if c.Runtime.InferenceCutoff == "" {
		c.Runtime.InferenceCutoff = defaultCutoff
	}
	if c.Runtime.SoonDeprecatedMonths == 0 {
		c.Runtime.SoonDeprecatedMonths = defaultSoonMonths
	}
	if c.Runtime.DocumentationTimeout == 0 {
		c.Runtime.DocumentationTimeout = defaultDocTimeout
	}

	if c.Libraries.Workers == 0 {
		c.Libraries.Workers = defaultWorkers
	}
	if c.Libraries.PyPIURL == "" {
		c.Libraries.PyPIURL = defaultPyPIURL
	}
	if c.Libraries.RequestsPerSecond == 0 {
		c.Libraries.RequestsPerSecond = defaultPyPIRate
	}
	if c.Libraries.SecurityMinimums == nil {
		c.Libraries.SecurityMinimums = make(map[string]string, len(DefaultSecurityMinimums))
		for pkg, minVersion := range DefaultSecurityMinimums {
			c.Libraries.SecurityMinimums[pkg] = minVersion
		}
	}

	if c.Report.MaxLibraryClusters == 0 {
		c.Report.MaxLibraryClusters = defaultReportLimit
	}

	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = defaultLogLevel
	}
}

var validBackends = map[string]bool{
	BackendFile:   true,
	BackendSQLite: true,
	BackendMemory: true,
}

var validAuthTypes = map[string]bool{
	AuthTypePAT:              true,
	AuthTypeAzureCLI:         true,
	AuthTypeServicePrincipal: true,
	AuthTypeManagedIdentity:  true,
}

var cutoffPattern = regexp.MustCompile(`^\d+\.\d+$`)

// Validate validates the configuration and ensures all required fields are set
func (c *Config) Validate() error {
	for _, name := range c.WorkspaceNames() {
		ws := c.Workspaces[name]
		if ws == nil {
			return fmt.Errorf("workspaces.%s is empty", name)
		}
		if err := validateWorkspaceURL(ws.URL); err != nil {
			return fmt.Errorf("invalid workspaces.%s.url: %w", name, err)
		}
		if !validAuthTypes[ws.AuthType] {
			return fmt.Errorf("invalid workspaces.%s.authType: %s. Valid values are: pat, azure-cli, service-principal, managed-identity", name, ws.AuthType)
		}
		if ws.AuthType == AuthTypePAT && ws.Token == "" {
			return fmt.Errorf("workspaces.%s.token is required for pat authentication", name)
		}
		if ws.AuthType == AuthTypeServicePrincipal && !ws.IsSPConfigured() {
			return fmt.Errorf("workspaces.%s.servicePrincipal requires tenantId, clientId and clientSecret", name)
		}
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if !validBackends[c.Cache.Backend] {
		return fmt.Errorf("invalid cache.backend: %s. Valid values are: file, sqlite, memory", c.Cache.Backend)
	}

	if !cutoffPattern.MatchString(c.Runtime.InferenceCutoff) {
		return fmt.Errorf("invalid runtime.inferenceCutoff: %q. Expected major.minor, e.g. 9.1", c.Runtime.InferenceCutoff)
	}
	if c.Runtime.SoonDeprecatedMonths < 0 {
		return fmt.Errorf("runtime.soonDeprecatedMonths must not be negative")
	}
	for i, e := range c.Runtime.KnownEndOfSupport {
		if !cutoffPattern.MatchString(e.Version) {
			return fmt.Errorf("invalid runtime.knownEndOfSupport[%d].version: %q", i, e.Version)
		}
		if _, err := time.Parse("2006-01-02", e.Date); err != nil {
			return fmt.Errorf("invalid runtime.knownEndOfSupport[%d].date: %q. Expected YYYY-MM-DD", i, e.Date)
		}
	}

	if c.Libraries.Workers < 1 {
		return fmt.Errorf("libraries.workers must be at least 1")
	}

	if err := logger.ValidateLogLevel(c.Logging.LogLevel); err != nil {
		return fmt.Errorf("invalid logging.logLevel: %w", err)
	}

	return nil
}

func validateWorkspaceURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// Workspace returns the named workspace. An empty name selects the only configured
// workspace, or the default one when several exist.
func (c *Config) Workspace(name string) (*WorkspaceConfig, error) {
	if len(c.Workspaces) == 0 {
		return nil, fmt.Errorf("no workspaces configured; add one to %s or set %s and %s",
			DefaultConfigPath(), envHost, envToken)
	}
	if name == "" {
		if len(c.Workspaces) == 1 {
			for _, ws := range c.Workspaces {
				return ws, nil
			}
		}
		name = DefaultWorkspace
	}

	// viper lowercases map keys
	if ws, ok := c.Workspaces[strings.ToLower(name)]; ok {
		return ws, nil
	}
	if ws, ok := c.Workspaces[name]; ok {
		return ws, nil
	}

	if suggestion := closestName(name, c.WorkspaceNames()); suggestion != "" {
		return nil, fmt.Errorf("workspace %q not found, did you mean %q?", name, suggestion)
	}
	return nil, fmt.Errorf("workspace %q not found. Available workspaces: %s", name, strings.Join(c.WorkspaceNames(), ", "))
}

// closestName returns the candidate within edit distance 3 of name, if any.
func closestName(name string, candidates []string) string {
	best, bestDist := "", 4
	for _, candidate := range candidates {
		if d := levenshtein.ComputeDistance(strings.ToLower(name), candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// ParseCutoff parses the inference cutoff into its major and minor parts.
func (r RuntimeConfig) ParseCutoff() (major, minor int, err error) {
	parts := strings.SplitN(r.InferenceCutoff, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid inference cutoff %q", r.InferenceCutoff)
	}
	if major, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("invalid inference cutoff %q: %w", r.InferenceCutoff, err)
	}
	if minor, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("invalid inference cutoff %q: %w", r.InferenceCutoff, err)
	}
	return major, minor, nil
}
