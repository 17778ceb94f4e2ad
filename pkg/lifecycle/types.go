package lifecycle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date layout used for every stored deprecation date.
const DateLayout = "2006-01-02"

// versionPattern matches the first major.minor pair in a runtime name or key.
var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)`)

// Version is the numeric (major, minor) pair of a runtime.
// It orders numerically, so 9.1 sorts before 10.4.
type Version struct {
	Major int
	Minor int
}

// ParseVersion extracts the first major.minor pair from s.
// It returns false when s carries no such pair.
func ParseVersion(s string) (Version, bool) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, false
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, false
	}
	return Version{Major: major, Minor: minor}, true
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or +1 comparing v with o as a numeric tuple.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor != o.Minor:
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// MarshalText encodes the version as "major.minor" so it can key JSON maps.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a "major.minor" string.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, ok := ParseVersion(string(b))
	if !ok {
		return fmt.Errorf("invalid runtime version %q", string(b))
	}
	*v = parsed
	return nil
}

// Flavor is a set of runtime specialization markers.
type Flavor uint8

const (
	FlavorLTS Flavor = 1 << iota
	FlavorML
	FlavorGenomics
	FlavorPhoton
)

// flavorMarkers lists the display-name marker for each flavor.
var flavorMarkers = []struct {
	flavor Flavor
	marker string
}{
	{FlavorLTS, "LTS"},
	{FlavorML, "ML"},
	{FlavorGenomics, "Genomics"},
	{FlavorPhoton, "Photon"},
}

// Has reports whether every flavor in o is set in f.
func (f Flavor) Has(o Flavor) bool {
	return f&o == o
}

func (f Flavor) String() string {
	var names []string
	for _, fm := range flavorMarkers {
		if f.Has(fm.flavor) {
			names = append(names, fm.marker)
		}
	}
	return strings.Join(names, ",")
}

// catalogFlavors detects flavors in a catalog display name. Matching is case-sensitive.
func catalogFlavors(displayName string) Flavor {
	var f Flavor
	for _, fm := range flavorMarkers {
		if strings.Contains(displayName, fm.marker) {
			f |= fm.flavor
		}
	}
	return f
}

// RuntimeFlavors detects flavors in a cluster's raw runtime string, e.g. "10.4.x-cpu-ml-scala2.12".
// Matching is case-insensitive.
func RuntimeFlavors(runtime string) Flavor {
	lower := strings.ToLower(runtime)
	var f Flavor
	for _, fm := range flavorMarkers {
		if strings.Contains(lower, strings.ToLower(fm.marker)) {
			f |= fm.flavor
		}
	}
	return f
}

// RuntimeVersion is one runtime offering that can be selected when creating a cluster.
type RuntimeVersion struct {
	Key         string  `json:"key" yaml:"key"`
	DisplayName string  `json:"name" yaml:"name"`
	Version     Version `json:"version" yaml:"version"`
}

// Flavors derives the flavor markers from the display name.
func (r RuntimeVersion) Flavors() Flavor { return catalogFlavors(r.DisplayName) }

func (r RuntimeVersion) IsLTS() bool      { return r.Flavors().Has(FlavorLTS) }
func (r RuntimeVersion) IsML() bool       { return r.Flavors().Has(FlavorML) }
func (r RuntimeVersion) IsGenomics() bool { return r.Flavors().Has(FlavorGenomics) }
func (r RuntimeVersion) IsPhoton() bool   { return r.Flavors().Has(FlavorPhoton) }

// Source records where a deprecation record came from.
type Source string

const (
	SourceHardcoded         Source = "hardcoded"
	SourceInference         Source = "inference"
	SourceAvailabilityCheck Source = "availability-check"

	scrapedSourcePrefix = "scraped:"
)

// ScrapedSource returns the provenance tag for a record extracted from url.
func ScrapedSource(url string) Source {
	return Source(scrapedSourcePrefix + url)
}

// IsScraped reports whether the record was extracted from a documentation page.
func (s Source) IsScraped() bool {
	return strings.HasPrefix(string(s), scrapedSourcePrefix)
}

// DeprecationRecord binds a runtime version to its end-of-support date.
type DeprecationRecord struct {
	Version Version `json:"version"`
	// DeprecationDate is a YYYY-MM-DD calendar date, empty when unknown.
	DeprecationDate string `json:"deprecation_date,omitempty"`
	Source          Source `json:"source"`
	Note            string `json:"note,omitempty"`
}

// Date parses DeprecationDate as a UTC calendar date.
// The boolean is false when no date is recorded.
func (r DeprecationRecord) Date() (time.Time, bool, error) {
	if r.DeprecationDate == "" {
		return time.Time{}, false, nil
	}
	t, err := time.ParseInLocation(DateLayout, r.DeprecationDate, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid deprecation date %q for %s: %w", r.DeprecationDate, r.Version, err)
	}
	return t, true, nil
}

// Knowledge is the merged version -> deprecation record mapping.
type Knowledge map[Version]DeprecationRecord

// Add stores rec unless a record for its version already exists.
// Earlier, more trusted sources are never overwritten.
func (k Knowledge) Add(rec DeprecationRecord) bool {
	if _, exists := k[rec.Version]; exists {
		return false
	}
	k[rec.Version] = rec
	return true
}

// Status is the lifecycle classification of a cluster's runtime.
type Status string

const (
	StatusSupported      Status = "SUPPORTED"
	StatusSoonDeprecated Status = "SOON_DEPRECATED"
	StatusDeprecated     Status = "DEPRECATED"
)

// AtRisk reports whether the status needs attention.
func (s Status) AtRisk() bool {
	return s == StatusSoonDeprecated || s == StatusDeprecated
}

// ClusterRuntimeStatus is the classification result for one live cluster.
type ClusterRuntimeStatus struct {
	ClusterID      string `json:"cluster_id"`
	ClusterName    string `json:"cluster_name"`
	CurrentRuntime string `json:"current_runtime"`
	Status         Status `json:"status"`
	// DeprecationDate is empty when no explicit date is known.
	DeprecationDate string `json:"deprecation_date,omitempty"`
	Note            string `json:"note,omitempty"`
	Source          Source `json:"source"`
}

// RecommendationRecord is one upgrade suggestion for an at-risk cluster.
type RecommendationRecord struct {
	ClusterID       string `json:"cluster_id"`
	RecommendedKey  string `json:"runtime_key"`
	RecommendedName string `json:"runtime_name"`
	Rationale       string `json:"rationale"`
}
