package lifecycle

// Default documentation pages scraped for end-of-support tables.
var DefaultDocumentationURLs = []string{
	"https://docs.databricks.com/en/release-notes/runtime/releases.html",
	"https://learn.microsoft.com/en-us/azure/databricks/release-notes/runtime",
	"https://docs.databricks.com/gcp/en/release-notes/runtime",
}

// DefaultInferenceCutoff is the version below which an unavailable runtime is inferred deprecated.
var DefaultInferenceCutoff = Version{Major: 9, Minor: 1}

const (
	// DefaultSoonDeprecatedMonths is the look-ahead window for SOON_DEPRECATED.
	DefaultSoonDeprecatedMonths = 3

	// maxInferredMinor bounds the minor versions considered by the inference pass.
	maxInferredMinor = 14
)

// DefaultKnownEndOfSupport is the hand-maintained end-of-support table. It is
// merged first and never overwritten by scraped or inferred data.
var DefaultKnownEndOfSupport = []DeprecationRecord{
	{Version: Version{9, 1}, DeprecationDate: "2024-12-19", Note: "DBR 9.1 LTS end of support date: December 19, 2024"},
	{Version: Version{10, 4}, DeprecationDate: "2025-06-30", Note: "DBR 10.4 LTS end of support date: June 30, 2025"},
	{Version: Version{7, 3}, DeprecationDate: "2022-12-31", Note: "DBR 7.3 LTS end of support date: December 31, 2022"},
	{Version: Version{8, 4}, DeprecationDate: "2023-09-30", Note: "DBR 8.4 LTS end of support date: September 30, 2023"},
	{Version: Version{11, 3}, DeprecationDate: "2025-12-31", Note: "DBR 11.3 LTS end of support date: December 31, 2025"},
}

// Policy holds the tunable inputs of the lifecycle engine.
type Policy struct {
	KnownEndOfSupport    []DeprecationRecord
	DocumentationURLs    []string
	InferenceCutoff      Version
	SoonDeprecatedMonths int
}

// DefaultPolicy returns the built-in lifecycle policy.
func DefaultPolicy() Policy {
	known := make([]DeprecationRecord, len(DefaultKnownEndOfSupport))
	copy(known, DefaultKnownEndOfSupport)
	urls := make([]string, len(DefaultDocumentationURLs))
	copy(urls, DefaultDocumentationURLs)
	return Policy{
		KnownEndOfSupport:    known,
		DocumentationURLs:    urls,
		InferenceCutoff:      DefaultInferenceCutoff,
		SoonDeprecatedMonths: DefaultSoonDeprecatedMonths,
	}
}
