// Package model defines the plain-struct data model shared by every
// planning component: POIs, combo-ticket groups, distance matrices,
// coherence scores, tours and their supporting records. Enums are
// small tagged string types rather than bare strings so callers get
// compile-time names; on-disk JSON stays permissive (unknown keys are
// skipped) for forward compatibility.
package model

import "time"

// IndoorOutdoor classifies how exposed a POI is to weather.
type IndoorOutdoor string

const (
	Indoor  IndoorOutdoor = "indoor"
	Outdoor IndoorOutdoor = "outdoor"
	Mixed   IndoorOutdoor = "mixed"
	Unknown IndoorOutdoor = "unknown"
)

// CoordSource tags how a POI's coordinates were obtained.
type CoordSource string

const (
	SourceAPI      CoordSource = "api"
	SourceGeocoder CoordSource = "geocoder"
	SourceManual   CoordSource = "manual"
)

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// OpeningPeriod is a (day_of_week, open, close) triple. DayOfWeek follows
// ISO-adjacent convention used throughout the spec: 0 = Sunday.
type OpeningPeriod struct {
	DayOfWeek int `json:"day_of_week"` // 0..6, Sunday=0
	OpenHHMM  int `json:"open_hhmm"`   // 0..2359
	CloseHHMM int `json:"close_hhmm"`  // 0..2359
}

// Contains reports whether hhmm on this period's day of week falls within
// the open/close bounds (inclusive).
func (p OpeningPeriod) Contains(dayOfWeek, hhmm int) bool {
	return p.DayOfWeek == dayOfWeek && hhmm >= p.OpenHHMM && hhmm <= p.CloseHHMM
}

// OpeningHours owns a POI's ordered opening periods.
type OpeningHours struct {
	Periods []OpeningPeriod `json:"periods"`
}

// OpenAt reports whether any period admits visitors at dayOfWeek/hhmm.
func (h *OpeningHours) OpenAt(dayOfWeek, hhmm int) bool {
	if h == nil {
		return false
	}
	for _, p := range h.Periods {
		if p.Contains(dayOfWeek, hhmm) {
			return true
		}
	}
	return false
}

// TimeSlot is an hhmm..hhmm window, used for booking preferred slots.
type TimeSlot struct {
	StartHHMM int `json:"start_hhmm"`
	EndHHMM   int `json:"end_hhmm"`
}

// Contains reports whether hhmm falls within the slot (inclusive).
func (s TimeSlot) Contains(hhmm int) bool {
	return hhmm >= s.StartHHMM && hhmm <= s.EndHHMM
}

// BookingInfo describes whether a POI requires advance booking.
type BookingInfo struct {
	Required       bool       `json:"required"`
	AdvanceDays    int        `json:"advance_days,omitempty"`
	PreferredSlots []TimeSlot `json:"preferred_slots,omitempty"`
	URL            string     `json:"url,omitempty"`
}

// POI is a single visitable location.
type POI struct {
	Slug string `json:"slug"` // stable identity, lowercase-hyphenated
	Name string `json:"name"`
	City string `json:"city"`

	Coords      Point       `json:"coords"`
	CoordSource CoordSource `json:"coord_source"`
	CollectedAt time.Time   `json:"collected_at"`

	VisitDurationMinutes int           `json:"visit_duration_minutes"` // default 120
	IndoorOutdoor        IndoorOutdoor `json:"indoor_outdoor"`

	OpeningHours *OpeningHours `json:"opening_hours,omitempty"`
	Booking      *BookingInfo  `json:"booking,omitempty"`

	ComboGroupIDs []string `json:"combo_group_ids,omitempty"`
	// ComboGroups is populated by the catalog's enrichment step; not persisted.
	ComboGroups []*ComboGroup `json:"-"`

	// MustVisitAfter lists slugs of POIs that must precede this one in sequence,
	// an explicit precedence annotation independent of coherence.
	MustVisitAfter []string `json:"must_visit_after,omitempty"`

	Address               string  `json:"address,omitempty"`
	Phone                 string  `json:"phone,omitempty"`
	Website               string  `json:"website,omitempty"`
	Rating                float64 `json:"rating,omitempty"`
	WheelchairAccessible  bool    `json:"wheelchair_accessible,omitempty"`
	HistoricalPeriod      string  `json:"historical_period,omitempty"`
	ConstructionDate      string  `json:"construction_date,omitempty"`
}

// VisitHours returns the POI's estimated visit duration in hours,
// defaulting to 2h (120min) when unset.
func (p *POI) VisitHours() float64 {
	m := p.VisitDurationMinutes
	if m <= 0 {
		m = 120
	}
	return float64(m) / 60.0
}

// OpenAt is a convenience wrapper over OpeningHours.OpenAt that treats a
// missing OpeningHours as "always closed" (conservative: the sequencer must
// forbid placement rather than assume availability).
func (p *POI) OpenAt(dayOfWeek, hhmm int) bool {
	return p.OpeningHours.OpenAt(dayOfWeek, hhmm)
}
