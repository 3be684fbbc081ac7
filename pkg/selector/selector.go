// Package selector implements the POI Selector (C4): it calls a Port (an
// LLM-backed implementation lives in pkg/selector/llmselector) to propose a
// starting set, backups and rejections, then reconciles that proposal
// against the catalog so the hard guarantees in spec §4.4 hold regardless
// of how faithfully the underlying Port honored them.
package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tripweave/pkg/catalog"
	"tripweave/pkg/coherence"
	"tripweave/pkg/model"
)

// Port is the pluggable decision-making interface: given the catalog
// summary and the traveler's request, propose a selection. Implementations
// may call out to an LLM or any other ranking strategy.
type Port interface {
	Select(ctx context.Context, req Request) (model.SelectionDecision, error)
}

// Request bundles everything a Port needs to make a grounded decision.
type Request struct {
	Input   model.PlanInput
	Summary model.CatalogSummary
}

const (
	backupSimilarityMin = 0.6
	backupSimilarityMax = 1.0
)

// Summarize derives a model.CatalogSummary from a loaded catalog, for
// Ports that ground their decision in aggregate statistics rather than the
// full POI list.
func Summarize(cat *catalog.Catalog) model.CatalogSummary {
	summary := model.CatalogSummary{CountByCategory: make(map[string]int)}
	for _, p := range cat.List() {
		summary.TotalPOIs++
		if p.HistoricalPeriod != "" {
			summary.CountByCategory[p.HistoricalPeriod]++
		}
		if p.Booking != nil && p.Booking.Required {
			summary.BookingRequired++
		}
		if p.OpeningHours != nil {
			for dow := 0; dow < 7; dow++ {
				if p.OpeningHours.OpenAt(dow, 720) {
					summary.OpenByWeekday[dow]++
				}
			}
		}
	}
	return summary
}

// normalizeName matches free-text POI references (as an LLM might produce
// them) to catalog slugs: trim, lowercase, collapse whitespace to hyphens.
func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), "-")
}

// resolve maps a free-text reference to a catalog slug, trying the slug
// form directly, then the normalized name, then a match against each POI's
// normalized name.
func resolve(cat *catalog.Catalog, ref string) (*model.POI, bool) {
	if p, err := cat.Get(ref); err == nil {
		return p, true
	}
	norm := normalizeName(ref)
	if p, err := cat.Get(norm); err == nil {
		return p, true
	}
	for _, p := range cat.List() {
		if normalizeName(p.Name) == norm {
			return p, true
		}
	}
	return nil, false
}

// Select runs the Port and reconciles its output against the catalog,
// enforcing every structural guarantee from spec §4.4:
//   - every must-see POI appears in the starting set
//   - the starting set's total visit hours stay within the trip's hours
//     budget (days * Pace.HoursPerDay())
//   - every starting POI has 2-3 backups with similarity in [0.6, 1.0],
//     each sharing category, period, or ≤2km proximity with the original
//   - starting ∪ rejected ∪ backups covers the entire catalog
func Select(ctx context.Context, port Port, cat *catalog.Catalog, input model.PlanInput) (model.SelectionDecision, []model.Issue) {
	summary := Summarize(cat)
	decision, err := port.Select(ctx, Request{Input: input, Summary: summary})
	var issues []model.Issue
	if err != nil {
		issues = append(issues, model.Issue{Severity: model.IssueWarning, Message: fmt.Sprintf("selector port failed, falling back to empty decision: %v", err)})
		decision = model.SelectionDecision{}
	}

	starting, iss := resolveStarting(cat, decision.StartingPOIs, &issues)
	starting, iss = enforceMustSee(cat, starting, input.MustSee, &issues)
	starting = capByHoursBudget(cat, starting, input, &issues)
	_ = iss

	backups := reconcileBackups(cat, starting, decision.BackupPOIs, &issues)
	rejected := reconcileRejected(cat, starting, backups, decision.RejectedPOIs)

	return model.SelectionDecision{
		StartingPOIs:     slugsOf(starting),
		BackupPOIs:       backups,
		RejectedPOIs:     rejected,
		ReasoningSummary: decision.ReasoningSummary,
	}, issues
}

func resolveStarting(cat *catalog.Catalog, refs []string, issues *[]model.Issue) ([]*model.POI, []model.Issue) {
	var out []*model.POI
	seen := make(map[string]bool)
	for _, ref := range refs {
		p, ok := resolve(cat, ref)
		if !ok {
			*issues = append(*issues, model.Issue{Severity: model.IssueWarning, Message: fmt.Sprintf("selector proposed unknown POI %q, dropped", ref)})
			continue
		}
		if seen[p.Slug] {
			continue
		}
		seen[p.Slug] = true
		out = append(out, p)
	}
	return out, nil
}

// enforceMustSee guarantees every must-see POI is present, reinserting any
// the Port omitted with a warning.
func enforceMustSee(cat *catalog.Catalog, starting []*model.POI, mustSee []string, issues *[]model.Issue) ([]*model.POI, []model.Issue) {
	present := make(map[string]bool)
	for _, p := range starting {
		present[p.Slug] = true
	}
	for _, ref := range mustSee {
		p, ok := resolve(cat, ref)
		if !ok {
			*issues = append(*issues, model.Issue{Severity: model.IssueWarning, Message: fmt.Sprintf("must-see POI %q not found in catalog", ref)})
			continue
		}
		if !present[p.Slug] {
			*issues = append(*issues, model.Issue{Severity: model.IssueWarning, POI: p.Slug, Message: "must-see POI omitted by selector, reinserted"})
			starting = append(starting, p)
			present[p.Slug] = true
		}
	}
	return starting, nil
}

// capByHoursBudget trims the starting set to the hours budget, always
// keeping must-see POIs, dropping the longest-visit non-must-see POIs
// first. Ratings are not considered.
func capByHoursBudget(cat *catalog.Catalog, starting []*model.POI, input model.PlanInput, issues *[]model.Issue) []*model.POI {
	budget := float64(input.Days) * input.Preferences.Pace.HoursPerDay()
	mustSee := make(map[string]bool)
	for _, ref := range input.MustSee {
		if p, ok := resolve(cat, ref); ok {
			mustSee[p.Slug] = true
		}
	}

	total := func(pois []*model.POI) float64 {
		var h float64
		for _, p := range pois {
			h += p.VisitHours()
		}
		return h
	}

	if total(starting) <= budget {
		return starting
	}

	// Keep must-see POIs first, then the rest sorted by ascending visit
	// duration so trimming removes the least efficient sightseeing first.
	var forced, optional []*model.POI
	for _, p := range starting {
		if mustSee[p.Slug] {
			forced = append(forced, p)
		} else {
			optional = append(optional, p)
		}
	}
	sort.SliceStable(optional, func(i, j int) bool { return optional[i].VisitHours() < optional[j].VisitHours() })

	kept := append([]*model.POI{}, forced...)
	used := total(forced)
	for _, p := range optional {
		if used+p.VisitHours() > budget {
			*issues = append(*issues, model.Issue{Severity: model.IssueWarning, POI: p.Slug, Message: "dropped from starting set to stay within hours budget"})
			continue
		}
		kept = append(kept, p)
		used += p.VisitHours()
	}
	return kept
}

func sameCategory(a, b *model.POI) bool {
	return a.HistoricalPeriod != "" && a.HistoricalPeriod == b.HistoricalPeriod
}

// reconcileBackups ensures every starting POI has 2-3 valid backups,
// computing replacements from the catalog when the Port's proposal is
// missing, too similar/dissimilar, or unconnected to the original.
func reconcileBackups(cat *catalog.Catalog, starting []*model.POI, proposed map[string][]model.BackupEntry, issues *[]model.Issue) map[string][]model.BackupEntry {
	startingSlugs := make(map[string]bool)
	for _, p := range starting {
		startingSlugs[p.Slug] = true
	}

	out := make(map[string][]model.BackupEntry)
	for _, p := range starting {
		var valid []model.BackupEntry
		for _, b := range proposed[p.Slug] {
			cand, ok := resolve(cat, b.POISlug)
			if !ok || cand.Slug == p.Slug || startingSlugs[cand.Slug] {
				continue
			}
			if b.SimilarityScore < backupSimilarityMin || b.SimilarityScore > backupSimilarityMax {
				continue
			}
			if !sameCategory(p, cand) && coherence.Score(p, cand) < 0.3 && !coherence.Proximate(p, cand) {
				continue
			}
			valid = append(valid, model.BackupEntry{POISlug: cand.Slug, POIName: cand.Name, SimilarityScore: b.SimilarityScore, Reason: b.Reason})
		}

		if len(valid) < 2 {
			valid = appendComputedBackups(cat, p, startingSlugs, valid)
		}
		if len(valid) > 3 {
			sort.SliceStable(valid, func(i, j int) bool { return valid[i].SimilarityScore > valid[j].SimilarityScore })
			valid = valid[:3]
		}
		if len(valid) < 2 {
			*issues = append(*issues, model.Issue{Severity: model.IssueWarning, POI: p.Slug, Message: "fewer than 2 valid backups available in catalog"})
		}
		out[p.Slug] = valid
	}
	return out
}

// appendComputedBackups fills in backups by scanning nearby/same-period
// catalog POIs not already in the starting set, a deterministic fallback
// used when the Port under- or mis-proposed.
func appendComputedBackups(cat *catalog.Catalog, p *model.POI, exclude map[string]bool, existing []model.BackupEntry) []model.BackupEntry {
	have := make(map[string]bool)
	for _, b := range existing {
		have[b.POISlug] = true
	}

	type candidate struct {
		poi   *model.POI
		score float64
	}
	var candidates []candidate
	for _, other := range cat.List() {
		if other.Slug == p.Slug || exclude[other.Slug] || have[other.Slug] {
			continue
		}
		same := sameCategory(p, other)
		near := coherence.Proximate(p, other)
		coh := coherence.Score(p, other)
		if !same && !near && coh < 0.3 {
			continue
		}
		sim := backupSimilarityMin + coh*(backupSimilarityMax-backupSimilarityMin)
		if sim > backupSimilarityMax {
			sim = backupSimilarityMax
		}
		if sim < backupSimilarityMin {
			sim = backupSimilarityMin
		}
		candidates = append(candidates, candidate{other, sim})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	for _, c := range candidates {
		if len(existing) >= 3 {
			break
		}
		reason := "similar category"
		if coherence.Proximate(p, c.poi) {
			reason = "nearby location"
		}
		existing = append(existing, model.BackupEntry{POISlug: c.poi.Slug, POIName: c.poi.Name, SimilarityScore: round2(c.score), Reason: reason})
	}
	return existing
}

// reconcileRejected guarantees starting ∪ rejected ∪ backups covers the
// whole catalog: anything left over is added to rejected with a generic
// reason.
func reconcileRejected(cat *catalog.Catalog, starting []*model.POI, backups map[string][]model.BackupEntry, proposed []model.RejectedEntry) []model.RejectedEntry {
	covered := make(map[string]bool)
	for _, p := range starting {
		covered[p.Slug] = true
	}
	for _, list := range backups {
		for _, b := range list {
			covered[b.POISlug] = true
		}
	}

	out := append([]model.RejectedEntry{}, proposed...)
	for _, r := range proposed {
		if p, ok := resolve(cat, r.POISlug); ok {
			covered[p.Slug] = true
		}
	}

	for _, p := range cat.List() {
		if !covered[p.Slug] {
			out = append(out, model.RejectedEntry{POISlug: p.Slug, POIName: p.Name, Reason: "not selected for this itinerary"})
			covered[p.Slug] = true
		}
	}
	return out
}

func slugsOf(pois []*model.POI) []string {
	out := make([]string, len(pois))
	for i, p := range pois {
		out[i] = p.Slug
	}
	return out
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
