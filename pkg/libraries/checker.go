package libraries

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
	"github.com/datalytyx/databricks-maintenance/pkg/pool"
)

// pep440Suffix splits a Python release into its numeric part and a pre/dev/post tag.
var pep440Suffix = regexp.MustCompile(`^v?(\d+(?:\.\d+)*)[.-]?((?:a|b|c|rc|alpha|beta|dev|post)\.?\d*)?$`)

// Checker compares installed cluster libraries against a package index
// and a table of minimum safe versions.
type Checker struct {
	lister   LibraryLister
	index    VersionIndex
	minimums map[string]*semver.Version
	workers  int
	logger   *logrus.Logger
}

// NewChecker creates a checker. minimums maps lowercase package names to the
// lowest version without known vulnerabilities.
func NewChecker(lister LibraryLister, index VersionIndex, minimums map[string]string, workers int, logger *logrus.Logger) (*Checker, error) {
	parsed := make(map[string]*semver.Version, len(minimums))
	for pkg, raw := range minimums {
		v, err := ParseVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid minimum version for %s: %w", pkg, err)
		}
		parsed[strings.ToLower(pkg)] = v
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Checker{
		lister:   lister,
		index:    index,
		minimums: parsed,
		workers:  workers,
		logger:   logger,
	}, nil
}

// CheckCluster returns the libraries on clusterID that need an update, most severe first.
// Libraries whose check fails are logged and left out.
func (c *Checker) CheckCluster(ctx context.Context, clusterID string) ([]Finding, error) {
	statuses, err := c.lister.ListLibraryStatuses(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries for cluster %s: %w", clusterID, err)
	}
	c.logger.Debugf("Checking %d libraries on cluster %s", len(statuses), clusterID)

	results := pool.Map(ctx, c.workers, statuses, c.checkLibrary)

	var findings []Finding
	for i, r := range results {
		if r.Err != nil {
			checkFailuresTotal.Inc()
			c.logger.WithFields(logrus.Fields{
				"cluster_id": clusterID,
				"library":    libraryLabel(statuses[i].Library),
			}).Warnf("Library check failed: %v", r.Err)
			continue
		}
		if r.Value != nil {
			findings = append(findings, *r.Value)
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.rank() < findings[j].Severity.rank()
	})
	for _, f := range findings {
		findingsTotal.WithLabelValues(string(f.Severity)).Inc()
	}
	return findings, nil
}

func (c *Checker) checkLibrary(ctx context.Context, st databricks.LibraryStatus) (*Finding, error) {
	if st.Library.PyPI == nil {
		return nil, nil
	}
	name, installed := InstalledPyPIVersion(st)
	if installed == "" {
		return nil, nil
	}
	current, err := ParseVersion(installed)
	if err != nil {
		return nil, fmt.Errorf("unsupported installed version %q of %s: %w", installed, name, err)
	}

	minimum, critical := c.minimums[strings.ToLower(name)]
	if critical && current.LessThan(minimum) {
		return &Finding{
			LibraryName:        name,
			Type:               LibraryTypePyPI,
			CurrentVersion:     installed,
			RecommendedVersion: recommendLatest,
			Reason:             fmt.Sprintf("Security vulnerabilities in versions before %s", minimum.Original()),
			Severity:           SeverityHigh,
		}, nil
	}

	latestRaw, err := c.index.LatestVersion(ctx, name)
	if err != nil {
		return nil, err
	}
	latest, err := ParseVersion(latestRaw)
	if err != nil {
		return nil, fmt.Errorf("unsupported published version %q of %s: %w", latestRaw, name, err)
	}
	if !latest.GreaterThan(current) {
		return nil, nil
	}

	severity := SeverityLow
	if critical {
		severity = SeverityMedium
	}
	return &Finding{
		LibraryName:        name,
		Type:               LibraryTypePyPI,
		CurrentVersion:     installed,
		RecommendedVersion: latestRaw,
		Reason:             reasonNewerVersion,
		Severity:           severity,
	}, nil
}

// InstalledPyPIVersion returns the package name and installed version of a PyPI library.
// The version comes from a "==" pin in the package or repo field, then from the
// resolved library details. It is empty when unknown.
func InstalledPyPIVersion(st databricks.LibraryStatus) (name, version string) {
	lib := st.Library.PyPI
	if lib == nil {
		return "", ""
	}
	name = packageName(lib.Package)
	switch {
	case strings.Contains(lib.Package, "=="):
		version = lib.Package[strings.LastIndex(lib.Package, "==")+2:]
	case strings.Contains(lib.Repo, "=="):
		version = lib.Repo[strings.LastIndex(lib.Repo, "==")+2:]
	case st.LibraryDetails != nil && st.LibraryDetails.PyPI != nil:
		version = st.LibraryDetails.PyPI.Version
	}
	return name, strings.TrimSpace(version)
}

func packageName(spec string) string {
	if i := strings.IndexAny(spec, "=<>!~[; "); i >= 0 {
		spec = spec[:i]
	}
	return strings.TrimSpace(spec)
}

// ParseVersion parses a Python release version, e.g. "1.21.0", "2.0rc1" or "1.26.post1".
func ParseVersion(raw string) (*semver.Version, error) {
	raw = strings.TrimSpace(raw)
	m := pep440Suffix.FindStringSubmatch(strings.ToLower(raw))
	if m == nil {
		return semver.NewVersion(raw)
	}
	normalized := m[1]
	if tag := strings.ReplaceAll(m[2], ".", ""); tag != "" {
		if strings.HasPrefix(tag, "post") {
			normalized += "+" + tag
		} else {
			normalized += "-" + tag
		}
	}
	v, err := semver.NewVersion(normalized)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func libraryLabel(lib databricks.Library) string {
	switch {
	case lib.PyPI != nil:
		return lib.PyPI.Package
	case lib.Maven != nil:
		return lib.Maven.Coordinates
	case lib.Jar != "":
		return lib.Jar
	default:
		return lib.Whl
	}
}
