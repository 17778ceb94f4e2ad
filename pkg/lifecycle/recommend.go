package lifecycle

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Rationales attached to recommendations, one per selection rule.
const (
	RationaleProductionMLLTS    = "Latest ML LTS runtime recommended for production ML workloads"
	RationaleProductionML       = "Latest ML runtime recommended for production ML workloads (no ML LTS version available)"
	RationaleProductionGenomics = "Latest Genomics runtime recommended for production genomics workloads"
	RationaleProductionPhoton   = "Latest Photon runtime recommended for production SQL workloads"
	RationaleProductionLTS      = "Latest LTS runtime recommended for stable production workloads"
	RationaleProductionLatest   = "Latest runtime recommended (no LTS version available)"

	RationaleDevelopmentML       = "Latest ML runtime recommended for ML development workloads"
	RationaleDevelopmentGenomics = "Latest Genomics runtime recommended for genomics development"
	RationaleDevelopmentPhoton   = "Latest Photon runtime recommended for SQL development"
	RationaleDevelopmentLatest   = "Latest runtime recommended for development workloads"
)

var productionIndicators = []string{"prod", "production", "prd", "live"}

// IsProduction reports whether a cluster name marks a production cluster.
func IsProduction(clusterName string) bool {
	return containsAny(strings.ToLower(clusterName), productionIndicators)
}

// Recommender selects upgrade targets from a fixed catalog.
type Recommender struct {
	log logrus.FieldLogger

	latest         *RuntimeVersion
	latestLTS      *RuntimeVersion
	latestML       *RuntimeVersion
	latestMLLTS    *RuntimeVersion
	latestGenomics *RuntimeVersion
	latestPhoton   *RuntimeVersion
}

// NewRecommender precomputes the newest runtime of each subset of catalog.
func NewRecommender(catalog []RuntimeVersion, log logrus.FieldLogger) *Recommender {
	sorted := make([]RuntimeVersion, len(catalog))
	copy(sorted, catalog)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version.Less(sorted[j].Version) })

	r := &Recommender{log: log}
	if len(sorted) > 0 {
		r.latest = &sorted[len(sorted)-1]
	}
	if lts := LTSRuntimes(sorted); len(lts) > 0 {
		r.latestLTS = &lts[0]
	}
	r.latestML = lastMatching(sorted, func(rt RuntimeVersion) bool { return rt.IsML() })
	r.latestMLLTS = lastMatching(sorted, func(rt RuntimeVersion) bool { return rt.IsML() && rt.IsLTS() })
	r.latestGenomics = lastMatching(sorted, func(rt RuntimeVersion) bool { return rt.IsGenomics() })
	r.latestPhoton = lastMatching(sorted, func(rt RuntimeVersion) bool { return rt.IsPhoton() })
	return r
}

// Recommend returns one recommendation per at-risk cluster, keyed by cluster ID.
// Clusters for which no runtime can be recommended are left out.
func (r *Recommender) Recommend(statuses []ClusterRuntimeStatus) map[string]RecommendationRecord {
	recs := make(map[string]RecommendationRecord)
	for _, s := range statuses {
		if !s.Status.AtRisk() {
			continue
		}
		rec, ok := r.RecommendFor(s)
		if !ok {
			r.log.Warnf("No upgrade target available for cluster %s (%s): runtime catalog is empty", s.ClusterID, s.ClusterName)
			continue
		}
		recs[s.ClusterID] = rec
	}
	return recs
}

// RecommendFor selects the upgrade target for a single cluster.
func (r *Recommender) RecommendFor(s ClusterRuntimeStatus) (RecommendationRecord, bool) {
	target, rationale := r.selectTarget(IsProduction(s.ClusterName), RuntimeFlavors(s.CurrentRuntime))
	if target == nil {
		return RecommendationRecord{}, false
	}
	return RecommendationRecord{
		ClusterID:       s.ClusterID,
		RecommendedKey:  target.Key,
		RecommendedName: target.DisplayName,
		Rationale:       rationale,
	}, true
}

func (r *Recommender) selectTarget(production bool, flavors Flavor) (*RuntimeVersion, string) {
	if production {
		switch {
		case flavors.Has(FlavorML) && r.latestMLLTS != nil:
			return r.latestMLLTS, RationaleProductionMLLTS
		case flavors.Has(FlavorML) && r.latestML != nil:
			return r.latestML, RationaleProductionML
		case flavors.Has(FlavorGenomics) && r.latestGenomics != nil:
			return r.latestGenomics, RationaleProductionGenomics
		case flavors.Has(FlavorPhoton) && r.latestPhoton != nil:
			return r.latestPhoton, RationaleProductionPhoton
		case r.latestLTS != nil:
			return r.latestLTS, RationaleProductionLTS
		default:
			return r.latest, RationaleProductionLatest
		}
	}

	switch {
	case flavors.Has(FlavorML) && r.latestML != nil:
		return r.latestML, RationaleDevelopmentML
	case flavors.Has(FlavorGenomics) && r.latestGenomics != nil:
		return r.latestGenomics, RationaleDevelopmentGenomics
	case flavors.Has(FlavorPhoton) && r.latestPhoton != nil:
		return r.latestPhoton, RationaleDevelopmentPhoton
	default:
		return r.latest, RationaleDevelopmentLatest
	}
}

// RecommendUpgrades resolves the catalog and recommends targets for the given statuses.
func (m *Manager) RecommendUpgrades(ctx context.Context, statuses []ClusterRuntimeStatus) (map[string]RecommendationRecord, error) {
	catalog, err := m.ListAvailableRuntimes(ctx)
	if err != nil {
		return nil, err
	}
	recs := NewRecommender(catalog, m.logger).Recommend(statuses)
	for _, rec := range recs {
		recommendationsTotal.WithLabelValues(ruleLabel(rec.Rationale)).Inc()
	}
	return recs, nil
}

func lastMatching(sorted []RuntimeVersion, match func(RuntimeVersion) bool) *RuntimeVersion {
	for i := len(sorted) - 1; i >= 0; i-- {
		if match(sorted[i]) {
			return &sorted[i]
		}
	}
	return nil
}

var rationaleRules = map[string]string{
	RationaleProductionMLLTS:     "production_ml_lts",
	RationaleProductionML:        "production_ml",
	RationaleProductionGenomics:  "production_genomics",
	RationaleProductionPhoton:    "production_photon",
	RationaleProductionLTS:       "production_lts",
	RationaleProductionLatest:    "production_latest",
	RationaleDevelopmentML:       "development_ml",
	RationaleDevelopmentGenomics: "development_genomics",
	RationaleDevelopmentPhoton:   "development_photon",
	RationaleDevelopmentLatest:   "development_latest",
}

func ruleLabel(rationale string) string {
	if rule, ok := rationaleRules[rationale]; ok {
		return rule
	}
	return "unknown"
}
