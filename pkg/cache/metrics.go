package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dbx_maintenance_cache_lookups_total",
		Help: "Total number of cache lookups",
	},
	[]string{"result"}, // hit, miss, expired or error
)
