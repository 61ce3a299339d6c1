package models

import (
	"errors"
	"time"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCheckedIn BookingStatus = "checked_in"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusRefunded  BookingStatus = "refunded"
)

// bookingTransitions is the lifecycle graph. CANCELLED may only move to
// REFUNDED (the refund flow), never back to PENDING. COMPLETED and
// REFUNDED are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCheckedIn, BookingStatusRefunded},
	BookingStatusCheckedIn: {BookingStatusCompleted},
	BookingStatusCancelled: {BookingStatusRefunded},
	BookingStatusCompleted: {},
	BookingStatusRefunded:  {},
}

// Booking represents a seat reservation against a materialized trip.
// Seats held by bookings whose status is not cancelled/refunded must be
// pairwise disjoint per trip; that invariant is recomputed from live
// rows inside the reservation transaction, never cached.
type Booking struct {
	ID                 string        `json:"id" db:"id"`
	TripID             string        `json:"trip_id" db:"trip_id"`
	Seats              SeatList      `json:"seats" db:"seats"`
	PassengerName      string        `json:"passenger_name" db:"passenger_name"`
	PassengerEmail     string        `json:"passenger_email" db:"passenger_email"`
	PassengerPhone     string        `json:"passenger_phone" db:"passenger_phone"`
	PaymentMethod      string        `json:"payment_method" db:"payment_method"`
	Status             BookingStatus `json:"status" db:"status"`
	BookingReference   string        `json:"booking_reference" db:"booking_reference"`
	CancellationReason *string       `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

// CanTransitionTo reports whether the edge from the current status to
// the target exists in the lifecycle graph
func (b *Booking) CanTransitionTo(target BookingStatus) bool {
	for _, next := range bookingTransitions[b.Status] {
		if next == target {
			return true
		}
	}
	return false
}

// TransitionTo moves the booking along a legal edge or returns an
// InvalidStateTransitionError naming the attempted one
func (b *Booking) TransitionTo(target BookingStatus) error {
	if !b.CanTransitionTo(target) {
		return &InvalidStateTransitionError{From: b.Status, To: target}
	}
	b.Status = target
	b.UpdatedAt = time.Now()
	return nil
}

// IsTerminal reports whether no further transition is expected
func (b *Booking) IsTerminal() bool {
	return len(bookingTransitions[b.Status]) == 0
}

// CanBeCancelled reports whether cancellation is legal from the current state
func (b *Booking) CanBeCancelled() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// HoldsSeats reports whether the booking's seats count toward trip
// occupancy. Cancelled and refunded bookings release their seats
// implicitly by dropping out of this predicate.
func (b *Booking) HoldsSeats() bool {
	return b.Status != BookingStatusCancelled && b.Status != BookingStatusRefunded
}

// CreateBookingRequest represents the request to book seats on a trip.
// The trip reference is either a persisted trip id or the structural
// key of a projection.
type CreateBookingRequest struct {
	TripID         *string  `json:"trip_id,omitempty"`
	RouteID        string   `json:"route_id,omitempty"`
	DepartureDate  string   `json:"departure_date,omitempty"` // YYYY-MM-DD
	DepartureTime  string   `json:"departure_time,omitempty"` // HH:MM
	Seats          []string `json:"seats" binding:"required,min=1"`
	PassengerName  string   `json:"passenger_name" binding:"required"`
	PassengerEmail string   `json:"passenger_email" binding:"required,email"`
	PassengerPhone string   `json:"passenger_phone" binding:"required"`
	PaymentMethod  string   `json:"payment_method" binding:"required"`
}

// Validate validates the create booking request
func (r *CreateBookingRequest) Validate() error {
	if len(r.Seats) == 0 {
		return errors.New("at least one seat is required")
	}
	if len(r.Seats) > 10 {
		return errors.New("maximum 10 seats can be booked at once")
	}
	seen := make(map[string]bool, len(r.Seats))
	for _, s := range r.Seats {
		if seen[s] {
			return errors.New("duplicate seat in request: " + s)
		}
		seen[s] = true
	}
	if r.TripID == nil {
		if r.RouteID == "" || r.DepartureDate == "" || r.DepartureTime == "" {
			return errors.New("either trip_id or route_id + departure_date + departure_time is required")
		}
		if _, err := time.Parse("2006-01-02", r.DepartureDate); err != nil {
			return errors.New("departure_date must be in YYYY-MM-DD format")
		}
		if _, err := time.Parse("15:04", r.DepartureTime); err != nil {
			return errors.New("departure_time must be in HH:MM format")
		}
	}
	return nil
}

// CancelBookingRequest represents the request to cancel a booking
type CancelBookingRequest struct {
	Reason *string `json:"reason,omitempty"`
}
