package services

import (
	"time"

	"bin-dates/models"
)

// DayPolicy decides whether a collection date falls on the current day.
// The feed's dates carry no zone, so the stored year/month/day is taken as
// written and compared with "now" in Location.
type DayPolicy struct {
	Location *time.Location
	Now      func() time.Time
}

// NewDayPolicy returns a policy using the wall clock in loc (time.Local if nil).
func NewDayPolicy(loc *time.Location) DayPolicy {
	if loc == nil {
		loc = time.Local
	}
	return DayPolicy{Location: loc, Now: time.Now}
}

// Today returns midnight of the current day in the policy's location.
func (p DayPolicy) Today() time.Time {
	now := p.now().In(p.location())
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.location())
}

// IsToday reports whether date's calendar day is today. Time of day is ignored.
func (p DayPolicy) IsToday(date time.Time) bool {
	y, m, d := date.Date()
	ty, tm, td := p.Today().Date()
	return y == ty && m == tm && d == td
}

// DaysUntil counts whole calendar days from today to date; negative if past.
func (p DayPolicy) DaysUntil(date time.Time) int {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ty, tm, td := p.Today().Date()
	today := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(day.Sub(today).Hours() / 24)
}

// Flags evaluates IsToday for every stream of a result.
func (p DayPolicy) Flags(r models.CollectionResult) map[models.WasteStream]bool {
	flags := make(map[models.WasteStream]bool, len(models.WasteStreams))
	for _, stream := range models.WasteStreams {
		flags[stream] = p.IsToday(r.Date(stream))
	}
	return flags
}

func (p DayPolicy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p DayPolicy) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}
