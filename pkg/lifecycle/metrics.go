package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Knowledge resolution metrics
	documentationFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbx_maintenance_documentation_fetch_total",
			Help: "Total number of documentation page fetches",
		},
		[]string{"result"}, // success or error
	)

	deprecationRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbx_maintenance_deprecation_records_total",
			Help: "Total number of deprecation records merged into the knowledge map",
		},
		[]string{"source"}, // hardcoded, scraped or inference
	)

	// Classification metrics
	clustersClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbx_maintenance_clusters_classified_total",
			Help: "Total number of clusters classified by lifecycle status",
		},
		[]string{"status"},
	)

	recommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbx_maintenance_recommendations_total",
			Help: "Total number of upgrade recommendations by the rule that fired",
		},
		[]string{"rule"},
	)
)

func sourceLabel(s Source) string {
	if s.IsScraped() {
		return "scraped"
	}
	return string(s)
}
