// Package coherence implements the Narrative Coherence Scorer (C3): a pure
// function scoring how well two POIs belong in the same narrative arc, used
// by the Sequencer as a precedence/clustering signal and by the Planner's
// and Re-optimizer's score computation to derive a tour's coherence_score.
package coherence

import (
	"regexp"
	"strconv"
	"strings"

	"tripweave/pkg/geo"
	"tripweave/pkg/model"
)

// periodRanks orders named historical periods from earliest to latest.
// Unrecognized period strings are treated as unknown (contribute nothing),
// never guessed.
var periodRanks = []string{
	"prehistoric",
	"ancient",
	"classical antiquity",
	"late antiquity",
	"early medieval",
	"medieval",
	"high medieval",
	"late medieval",
	"renaissance",
	"early modern",
	"baroque",
	"industrial",
	"modern",
	"contemporary",
}

func periodRank(period string) (int, bool) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "" {
		return 0, false
	}
	for i, name := range periodRanks {
		if p == name || strings.Contains(p, name) {
			return i, true
		}
	}
	return 0, false
}

var (
	bcRe      = regexp.MustCompile(`(?i)(\d+)\s*(bc|bce)`)
	adRe      = regexp.MustCompile(`(?i)(\d+)\s*(ad|ce)`)
	centuryRe = regexp.MustCompile(`(?i)(\d+)(st|nd|rd|th)\s*century`)
	rangeRe   = regexp.MustCompile(`(\d{1,4})\s*[-–—]\s*(\d{1,4})`)
	yearRe    = regexp.MustCompile(`\d{1,4}`)
)

// parseYear extracts a representative year from a free-text construction
// date, handling BC/BCE, AD/CE, "Nth century", and year ranges (midpoint).
// It returns ok=false when nothing recognizable is found, rather than
// guessing.
func parseYear(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if m := bcRe.FindStringSubmatch(s); m != nil {
		y, err := strconv.Atoi(m[1])
		if err == nil {
			return -float64(y), true
		}
	}
	if m := centuryRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return float64((n-1)*100 + 50), true
		}
	}
	if m := rangeRe.FindStringSubmatch(s); m != nil {
		lo, err1 := strconv.Atoi(m[1])
		hi, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			return float64(lo+hi) / 2.0, true
		}
	}
	if m := adRe.FindStringSubmatch(s); m != nil {
		y, err := strconv.Atoi(m[1])
		if err == nil {
			return float64(y), true
		}
	}
	if m := yearRe.FindString(s); m != "" {
		y, err := strconv.Atoi(m)
		if err == nil {
			return float64(y), true
		}
	}
	return 0, false
}

// Score returns the narrative coherence between two POIs in [0, 1].
// Identical POIs always score 1.0. Missing period or date information
// contributes nothing to the score rather than penalizing it — coherence
// is a bonus signal, not a completeness check.
func Score(a, b *model.POI) float64 {
	if a.Slug == b.Slug {
		return 1.0
	}

	var score float64

	rankA, okA := periodRank(a.HistoricalPeriod)
	rankB, okB := periodRank(b.HistoricalPeriod)
	if okA && okB {
		switch {
		case rankA == rankB:
			// Same-period match: the "equal ranks" branch bonus, plus the
			// stacking bonus for two POIs that are both confidently dated
			// to the same era (a stronger signal than merely differing).
			score += 0.3
			score += 0.3
		case rankA < rankB:
			// a chronologically precedes b: the directional "earlier before
			// later" bonus. Deliberately not awarded in the reverse
			// direction, so Score(a,b) and Score(b,a) differ whenever the
			// periods differ.
			score += 0.4
		}
	}

	yearA, okYA := parseYear(a.ConstructionDate)
	yearB, okYB := parseYear(b.ConstructionDate)
	if okYA && okYB {
		diff := yearA - yearB
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff < 50:
			score += 0.3
		case diff < 200:
			score += 0.2
		case diff < 500:
			score += 0.1
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Proximate reports whether two POIs fall within the Selector's backup
// proximity threshold, a coherence-adjacent signal used when category and
// period both fail to connect two POIs (spec §4.4's "same-category OR
// same-period OR ≤2km proximity" disjunction).
func Proximate(a, b *model.POI) bool {
	return geo.WithinProximity(a.Coords, b.Coords)
}

// MeanPairwise returns a POI set's average thematic coherence across every
// pair, regardless of order, defaulting to 0.5 when fewer than two POIs are
// present. Unlike ConsecutivePairwise, the result does not depend on
// visiting order; no other package in the module calls it.
func MeanPairwise(pois []*model.POI) float64 {
	if len(pois) < 2 {
		return 0.5
	}
	var sum float64
	var count int
	for i := 0; i < len(pois); i++ {
		for j := i + 1; j < len(pois); j++ {
			sum += Score(pois[i], pois[j])
			count++
		}
	}
	if count == 0 {
		return 0.5
	}
	return sum / float64(count)
}

// ConsecutivePairwise returns the mean coherence over consecutive pairs in
// visiting order, defaulting to 0.5 if fewer than two POIs are present
// (spec §4.5's solution-extraction formula: "mean coherence over
// consecutive pairs").
func ConsecutivePairwise(pois []*model.POI) float64 {
	if len(pois) < 2 {
		return 0.5
	}
	var sum float64
	for i := 0; i+1 < len(pois); i++ {
		sum += Score(pois[i], pois[i+1])
	}
	return sum / float64(len(pois)-1)
}
