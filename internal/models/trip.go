package models

import (
	"time"
)

// TripStatus represents the status of a materialized trip
type TripStatus string

const (
	TripStatusScheduled  TripStatus = "scheduled"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusCompleted  TripStatus = "completed"
	TripStatusCancelled  TripStatus = "cancelled"
)

// Trip represents a persisted trip instance. At most one row exists per
// (route_id, departure_date, departure_time); that key is enforced by a
// store uniqueness constraint.
type Trip struct {
	ID            string     `json:"id" db:"id"`
	RouteID       string     `json:"route_id" db:"route_id"`
	BusID         string     `json:"bus_id" db:"bus_id"`
	DepartureDate time.Time  `json:"departure_date" db:"departure_date"`
	DepartureTime string     `json:"departure_time" db:"departure_time"` // "15:04"
	ArrivalTime   string     `json:"arrival_time" db:"arrival_time"`
	Fare          float64    `json:"fare" db:"fare"`
	Status        TripStatus `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// ProjectedTrip is a virtual trip instance derived from a schedule
// template for a requested range. Never persisted, never mutated; its
// identity is structural (route + departure instant).
type ProjectedTrip struct {
	RouteID       string    `json:"route_id"`
	BusID         string    `json:"bus_id"`
	DepartureDate time.Time `json:"departure_date"`
	DepartureTime string    `json:"departure_time"`
	ArrivalTime   string    `json:"arrival_time"`
	Fare          float64   `json:"fare"`
}

// Departure returns the full departure instant of the projection
func (p *ProjectedTrip) Departure() time.Time {
	parsed, err := time.Parse("15:04", p.DepartureTime)
	if err != nil {
		return p.DepartureDate
	}
	d := p.DepartureDate
	return time.Date(d.Year(), d.Month(), d.Day(), parsed.Hour(), parsed.Minute(), 0, 0, d.Location())
}

// TripRef is a tagged reference to either a persisted trip or a
// projection that has not been materialized yet. Exactly one side is
// set; IsPersisted distinguishes them instead of an identifier
// convention.
type TripRef struct {
	Persisted *Trip
	Projected *ProjectedTrip
}

// PersistedRef wraps an already materialized trip
func PersistedRef(trip *Trip) TripRef {
	return TripRef{Persisted: trip}
}

// ProjectedRef wraps a virtual trip
func ProjectedRef(p *ProjectedTrip) TripRef {
	return TripRef{Projected: p}
}

// IsPersisted reports whether the reference already points at a stored row
func (r TripRef) IsPersisted() bool {
	return r.Persisted != nil
}

// TripSearchResult is the shopper-facing view of a projected or
// materialized departure, including live seat availability.
type TripSearchResult struct {
	TripID         *string   `json:"trip_id,omitempty"` // set when already materialized
	RouteID        string    `json:"route_id"`
	BusID          string    `json:"bus_id"`
	DepartureDate  string    `json:"departure_date"`
	DepartureTime  string    `json:"departure_time"`
	ArrivalTime    string    `json:"arrival_time"`
	Fare           float64   `json:"fare"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	OccupiedSeats  []string  `json:"occupied_seats"`
	Departure      time.Time `json:"departure"`
}
