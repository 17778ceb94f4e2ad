package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// DeprecationDatesCacheKey caches the merged deprecation knowledge.
const DeprecationDatesCacheKey = "deprecation_dates"

const noteInferred = "Inferred deprecation (version not available for creation)"

// ResolveDeprecationKnowledge merges the known end-of-support table, records scraped
// from the documentation pages and inferred records into one map. Each source only
// fills versions that earlier sources left empty.
func (m *Manager) ResolveDeprecationKnowledge(ctx context.Context) (Knowledge, error) {
	var knowledge Knowledge
	if m.cache.Get(DeprecationDatesCacheKey, &knowledge) {
		return knowledge, nil
	}

	today := m.today()
	knowledge = Knowledge{}

	for _, rec := range m.policy.KnownEndOfSupport {
		rec.Source = SourceHardcoded
		m.merge(knowledge, rec)
	}

	for _, url := range m.policy.DocumentationURLs {
		records, err := m.scrape(ctx, url, today)
		if err != nil {
			documentationFetchTotal.WithLabelValues("error").Inc()
			m.logger.Warnf("Skipping documentation source %s: %v", url, err)
			continue
		}
		documentationFetchTotal.WithLabelValues("success").Inc()
		added := 0
		for _, rec := range records {
			if m.merge(knowledge, rec) {
				added++
			}
		}
		m.logger.Debugf("Documentation source %s yielded %d records, %d new", url, len(records), added)
	}

	catalog, err := m.ListAvailableRuntimes(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range InferDeprecations(knowledge, catalog, m.policy.InferenceCutoff, today) {
		m.merge(knowledge, rec)
	}

	m.logger.Infof("Resolved deprecation knowledge for %d runtime versions", len(knowledge))
	m.cache.Set(DeprecationDatesCacheKey, knowledge)
	return knowledge, nil
}

// InferDeprecations synthesizes records for versions below cutoff that have no
// record and are no longer offered for cluster creation.
func InferDeprecations(knowledge Knowledge, catalog []RuntimeVersion, cutoff Version, today time.Time) []DeprecationRecord {
	available := availableVersions(catalog)
	var inferred []DeprecationRecord
	for major := 1; major <= cutoff.Major; major++ {
		for minor := 0; minor <= maxInferredMinor; minor++ {
			v := Version{Major: major, Minor: minor}
			if !v.Less(cutoff) {
				continue
			}
			if _, known := knowledge[v]; known || available[v] {
				continue
			}
			inferred = append(inferred, DeprecationRecord{
				Version:         v,
				DeprecationDate: today.Format(DateLayout),
				Source:          SourceInference,
				Note:            noteInferred,
			})
		}
	}
	return inferred
}

func (m *Manager) scrape(ctx context.Context, url string, today time.Time) ([]DeprecationRecord, error) {
	if m.fetcher == nil {
		return nil, fmt.Errorf("no documentation fetcher configured")
	}
	doc, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ExtractDeprecations(doc, ScrapedSource(url), today, m.logger.WithField("source", url))
}

func (m *Manager) merge(knowledge Knowledge, rec DeprecationRecord) bool {
	if !knowledge.Add(rec) {
		return false
	}
	deprecationRecordsTotal.WithLabelValues(sourceLabel(rec.Source)).Inc()
	return true
}

// today returns the current UTC calendar date at midnight.
func (m *Manager) today() time.Time {
	now := m.clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
