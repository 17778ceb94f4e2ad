package lifecycle

import (
	"context"
	"fmt"
	"sort"

	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
)

// RuntimeVersionsCacheKey caches the resolved catalog.
const RuntimeVersionsCacheKey = "runtime_versions"

// BuildCatalog turns raw runtime offerings into a catalog sorted ascending by
// numeric version. Offerings whose name carries no major.minor pair are dropped.
func BuildCatalog(offerings []databricks.SparkVersion) []RuntimeVersion {
	catalog := make([]RuntimeVersion, 0, len(offerings))
	for _, o := range offerings {
		v, ok := ParseVersion(o.Name)
		if !ok {
			continue
		}
		catalog = append(catalog, RuntimeVersion{
			Key:         o.Key,
			DisplayName: o.Name,
			Version:     v,
		})
	}
	sortAscending(catalog)
	return catalog
}

// LTSRuntimes returns the LTS runtimes of catalog, newest first.
func LTSRuntimes(catalog []RuntimeVersion) []RuntimeVersion {
	var lts []RuntimeVersion
	for _, rt := range catalog {
		if rt.IsLTS() {
			lts = append(lts, rt)
		}
	}
	sort.SliceStable(lts, func(i, j int) bool {
		return lts[j].Version.Less(lts[i].Version)
	})
	return lts
}

// ListAvailableRuntimes returns the creatable runtimes, oldest first.
func (m *Manager) ListAvailableRuntimes(ctx context.Context) ([]RuntimeVersion, error) {
	var catalog []RuntimeVersion
	if m.cache.Get(RuntimeVersionsCacheKey, &catalog) {
		return catalog, nil
	}

	offerings, err := m.client.ListSparkVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runtime offerings: %w", err)
	}

	catalog = BuildCatalog(offerings)
	m.logger.Debugf("Resolved %d runtime versions from %d offerings", len(catalog), len(offerings))

	m.cache.Set(RuntimeVersionsCacheKey, catalog)
	return catalog, nil
}

// ListLTSRuntimes returns the creatable LTS runtimes, newest first.
func (m *Manager) ListLTSRuntimes(ctx context.Context) ([]RuntimeVersion, error) {
	catalog, err := m.ListAvailableRuntimes(ctx)
	if err != nil {
		return nil, err
	}
	return LTSRuntimes(catalog), nil
}

func sortAscending(catalog []RuntimeVersion) {
	sort.SliceStable(catalog, func(i, j int) bool {
		return catalog[i].Version.Less(catalog[j].Version)
	})
}

func availableVersions(catalog []RuntimeVersion) map[Version]bool {
	available := make(map[Version]bool, len(catalog))
	for _, rt := range catalog {
		available[rt.Version] = true
	}
	return available
}
