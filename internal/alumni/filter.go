package alumni

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/alumni-portal-api/internal/models"
)

// startDateLayouts are the start date spellings seen in scraped profiles.
var startDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01",
	"Jan 2006",
	"January 2006",
	"01/2006",
	"2006",
}

// FilterEngine evaluates FilterSpecs over directory profiles.
type FilterEngine struct {
	normalizer *Normalizer
	catalog    map[DegreeTier][]string
}

// NewFilterEngine builds an engine. A nil catalog selects DefaultDegreeCatalog.
func NewFilterEngine(n *Normalizer, catalog map[DegreeTier][]string) *FilterEngine {
	if n == nil {
		n = NewNormalizer(nil, nil)
	}
	if catalog == nil {
		catalog = DefaultDegreeCatalog
	}
	return &FilterEngine{normalizer: n, catalog: catalog}
}

// Normalizer returns the engine's normalizer.
func (e *FilterEngine) Normalizer() *Normalizer { return e.normalizer }

// ParseTier resolves a filter value such as "BTech" or "B.Tech" to a tier
// present in the catalog.
func (e *FilterEngine) ParseTier(value string) (DegreeTier, bool) {
	tier := DegreeTierOf(value)
	if tier == "" {
		return "", false
	}
	_, ok := e.catalog[tier]
	return tier, ok
}

// Filter returns the profiles matching spec in their input order. The input
// slice and its elements are not modified.
func (e *FilterEngine) Filter(profiles []models.AlumniProfile, spec models.FilterSpec) []models.AlumniProfile {
	spec.SearchTerm = strings.TrimSpace(spec.SearchTerm)
	out := make([]models.AlumniProfile, 0, len(profiles))
	for _, p := range profiles {
		if e.Matches(p, spec) {
			out = append(out, p)
		}
	}
	return out
}

// Matches evaluates the conjunction of the active predicates of spec.
func (e *FilterEngine) Matches(p models.AlumniProfile, spec models.FilterSpec) bool {
	if models.Active(spec.Degree) && !e.matchesDegree(p, spec.Degree) {
		return false
	}
	if models.Active(spec.Branch) && !e.matchesBranch(p, spec.Branch) {
		return false
	}
	if models.Active(spec.Batch) && !e.matchesBatch(p, spec.Batch) {
		return false
	}
	if spec.SearchTerm != "" && !matchesSearch(p, spec.SearchTerm) {
		return false
	}
	return true
}

// matchesDegree requires an entry at the institution whose field is listed
// verbatim under the tier. Unknown tiers match nothing.
func (e *FilterEngine) matchesDegree(p models.AlumniProfile, value string) bool {
	tier, ok := e.ParseTier(value)
	if !ok {
		return false
	}
	offered := e.catalog[tier]
	for _, edu := range p.Education {
		if !e.normalizer.IsKnownInstitution(edu.Institution) || strings.TrimSpace(edu.Field) == "" {
			continue
		}
		if slices.Contains(offered, edu.Field) {
			return true
		}
	}
	return false
}

// matchesBranch compares the raw field verbatim. The derived Branch column is
// not consulted.
func (e *FilterEngine) matchesBranch(p models.AlumniProfile, branch string) bool {
	for _, edu := range p.Education {
		if !e.normalizer.Qualifies(edu) || strings.TrimSpace(edu.Field) == "" {
			continue
		}
		if edu.Field == branch {
			return true
		}
	}
	return false
}

func (e *FilterEngine) matchesBatch(p models.AlumniProfile, batch string) bool {
	for _, edu := range p.Education {
		if e.normalizer.Qualifies(edu) && strings.TrimSpace(edu.StartYear) == batch {
			return true
		}
	}
	return false
}

func matchesSearch(p models.AlumniProfile, term string) bool {
	term = strings.ToLower(term)
	if containsFold(p.Name, term) || containsFold(p.ID, term) {
		return true
	}
	latest, ok := LatestExperience(p.Experience)
	if !ok {
		return false
	}
	return containsFold(latest.Company, term) || containsFold(latest.Location, term)
}

func containsFold(s, lowerTerm string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerTerm)
}

// LatestExperience returns the entry with the latest parseable start date.
// Unparseable or missing dates rank earliest; ties keep array order.
func LatestExperience(entries []models.ExperienceEntry) (models.ExperienceEntry, bool) {
	if len(entries) == 0 {
		return models.ExperienceEntry{}, false
	}
	best := 0
	bestAt, bestOK := parseStartDate(entries[0].StartDate)
	for i := 1; i < len(entries); i++ {
		at, ok := parseStartDate(entries[i].StartDate)
		if !ok {
			continue
		}
		if !bestOK || at.After(bestAt) {
			best, bestAt, bestOK = i, at, true
		}
	}
	return entries[best], true
}

func parseStartDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range startDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FacetsOf collects the distinct derived branches, degree tiers and batches
// of profiles for the directory filter bar.
func (e *FilterEngine) FacetsOf(profiles []models.AlumniProfile) models.Facets {
	branches := map[string]struct{}{}
	batches := map[string]struct{}{}
	tiers := map[DegreeTier]struct{}{}

	for _, p := range profiles {
		if p.Branch != nil {
			branches[*p.Branch] = struct{}{}
		}
		if p.Batch != nil {
			batches[*p.Batch] = struct{}{}
		}
		for _, edu := range p.Education {
			if !e.normalizer.IsKnownInstitution(edu.Institution) {
				continue
			}
			if tier := DegreeTierOf(edu.Degree); tier != "" {
				tiers[tier] = struct{}{}
			}
		}
	}

	facets := models.Facets{Branches: keys(branches), Batches: keys(batches), Degrees: []string{}}
	sort.Sort(sort.Reverse(sort.StringSlice(facets.Batches)))
	for _, tier := range Tiers {
		if _, ok := tiers[tier]; ok {
			facets.Degrees = append(facets.Degrees, string(tier))
		}
	}
	return facets
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
