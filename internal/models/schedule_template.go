package models

import (
	"errors"
	"time"
)

// ScheduleTemplate represents a recurring weekly departure on a route.
// Templates are immutable once published; operations tooling owns edits.
type ScheduleTemplate struct {
	ID            string     `json:"id" db:"id"`
	RouteID       string     `json:"route_id" db:"route_id"`
	BusID         string     `json:"bus_id" db:"bus_id"`
	Weekday       int        `json:"weekday" db:"weekday"` // 0 = Sunday, matches time.Weekday
	DepartureTime string     `json:"departure_time" db:"departure_time"` // "15:04"
	ArrivalTime   string     `json:"arrival_time" db:"arrival_time"`
	Fare          float64    `json:"fare" db:"fare"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	ValidFrom     time.Time  `json:"valid_from" db:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until,omitempty" db:"valid_until"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Validate checks the template carries everything projection needs
func (t *ScheduleTemplate) Validate() error {
	if t.RouteID == "" {
		return errors.New("route_id is required")
	}
	if t.BusID == "" {
		return errors.New("bus_id is required")
	}
	if t.Weekday < 0 || t.Weekday > 6 {
		return errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)")
	}
	if _, err := time.Parse("15:04", t.DepartureTime); err != nil {
		return errors.New("departure_time must be in HH:MM format")
	}
	return nil
}

// IsValidForDate checks whether the template produces a departure on the given date
func (t *ScheduleTemplate) IsValidForDate(date time.Time) bool {
	if !t.IsActive {
		return false
	}
	if int(date.Weekday()) != t.Weekday {
		return false
	}
	// Validity bounds are calendar days in the date's own location.
	// Truncating to 24h would cut on absolute UTC instants and shift
	// the boundary for non-UTC dates.
	day := calendarDay(date, date.Location())
	if day.Before(calendarDay(t.ValidFrom, date.Location())) {
		return false
	}
	if t.ValidUntil != nil && day.After(calendarDay(*t.ValidUntil, date.Location())) {
		return false
	}
	return true
}

func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DepartureOn combines a date with the template's departure time
func (t *ScheduleTemplate) DepartureOn(date time.Time) time.Time {
	parsed, err := time.Parse("15:04", t.DepartureTime)
	if err != nil {
		return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	}
	return time.Date(date.Year(), date.Month(), date.Day(), parsed.Hour(), parsed.Minute(), 0, 0, date.Location())
}
