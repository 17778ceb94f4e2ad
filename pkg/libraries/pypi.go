package libraries

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// JSONFetcher retrieves and decodes a JSON document.
type JSONFetcher interface {
	FetchJSON(ctx context.Context, url string, v any) error
}

// PyPIIndex looks up package versions through the PyPI JSON API.
type PyPIIndex struct {
	baseURL string
	fetcher JSONFetcher
	cache   Cache
}

type pypiDocument struct {
	Info struct {
		Version string `json:"version"`
	} `json:"info"`
}

type cachedVersion struct {
	LatestVersion string `json:"latest_version"`
}

// NewPyPIIndex creates an index rooted at baseURL, e.g. https://pypi.org/pypi.
// cache may be nil.
func NewPyPIIndex(baseURL string, fetcher JSONFetcher, cache Cache) *PyPIIndex {
	return &PyPIIndex{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		cache:   cache,
	}
}

// CacheKey returns the cache key of a package's latest version.
func CacheKey(pkg string) string {
	return "pypi_" + pkg
}

// LatestVersion returns the newest released version of pkg.
func (p *PyPIIndex) LatestVersion(ctx context.Context, pkg string) (string, error) {
	key := CacheKey(pkg)
	var cached cachedVersion
	if p.cache != nil && p.cache.Get(key, &cached) && cached.LatestVersion != "" {
		return cached.LatestVersion, nil
	}

	var doc pypiDocument
	if err := p.fetcher.FetchJSON(ctx, p.baseURL+"/"+url.PathEscape(pkg)+"/json", &doc); err != nil {
		return "", fmt.Errorf("failed to query PyPI for %s: %w", pkg, err)
	}
	if doc.Info.Version == "" {
		return "", fmt.Errorf("PyPI returned no version for %s", pkg)
	}

	if p.cache != nil {
		p.cache.Set(key, cachedVersion{LatestVersion: doc.Info.Version})
	}
	return doc.Info.Version, nil
}
