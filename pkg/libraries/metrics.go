package libraries

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	findingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbx_maintenance_library_findings_total",
			Help: "Outdated or vulnerable libraries found, by severity.",
		},
		[]string{"severity"},
	)

	checkFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbx_maintenance_library_check_failures_total",
			Help: "Library checks that could not be completed.",
		},
	)
)
