package model

import "time"

// ArrivalHHMM computes the expected arrival time, as a 4-digit HHMM, at a
// zero-indexed position within a day: t = start_minutes +
// position*avg_slot_minutes (spec §4.5's time-window rule). Minutes wrap
// past midnight rather than overflow, though a tour running past 2400 in a
// single day is itself a sign the slot/pace configuration is unrealistic.
func ArrivalHHMM(position, startMinutes, avgSlotMinutes int) int {
	total := startMinutes + position*avgSlotMinutes
	total %= 24 * 60
	if total < 0 {
		total += 24 * 60
	}
	return (total/60)*100 + total%60
}

// WeekdayForDate reports the 0=Sunday..6=Saturday weekday offsetDays after
// the YYYY-MM-DD date startDate, matching spec §3's day-of-week convention.
// ok is false when startDate is empty or doesn't parse, letting callers
// skip time-window enforcement gracefully rather than guess a calendar.
func WeekdayForDate(startDate string, offsetDays int) (dayOfWeek int, ok bool) {
	if startDate == "" {
		return 0, false
	}
	t, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return 0, false
	}
	return int(t.AddDate(0, 0, offsetDays).Weekday()), true
}

// TimeWindowOK reports whether p admits a visit at dayOfWeek/hhmm: it must
// be open per its OpeningHours, and, when booking is required with
// preferred slots declared, hhmm must additionally fall in one of them
// (spec §4.5).
func (p *POI) TimeWindowOK(dayOfWeek, hhmm int) bool {
	if !p.OpenAt(dayOfWeek, hhmm) {
		return false
	}
	if p.Booking != nil && p.Booking.Required && len(p.Booking.PreferredSlots) > 0 {
		for _, slot := range p.Booking.PreferredSlots {
			if slot.Contains(hhmm) {
				return true
			}
		}
		return false
	}
	return true
}
