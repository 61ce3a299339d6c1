package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStorageUnavailable wraps store-level failures so callers can
	// distinguish "the database broke" from domain errors.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrBookingNotFound indicates no booking matches the given id or reference
	ErrBookingNotFound = errors.New("booking not found")

	// ErrTripNotFound indicates no trip matches the given reference
	ErrTripNotFound = errors.New("trip not found")

	// ErrInvalidProjection indicates a projection request or projected
	// trip that cannot be materialized
	ErrInvalidProjection = errors.New("invalid projection")

	// ErrCallbackVerification indicates a gateway callback that failed
	// authenticity checks and must not change any state
	ErrCallbackVerification = errors.New("callback verification failed")

	// ErrReferenceExhausted indicates repeated booking reference
	// collisions; with a 32^6 suffix space this signals a deeper problem
	ErrReferenceExhausted = errors.New("could not generate a unique booking reference")

	// ErrBookingStateChanged indicates a status write lost to a
	// concurrent transition: the row no longer carries the status the
	// caller read. Callers re-read and reconcile instead of clobbering.
	ErrBookingStateChanged = errors.New("booking state changed concurrently")
)

// SeatUnavailableError reports a reservation that lost to existing
// bookings. Taken lists the requested seats that were already held;
// Occupied is the full occupancy of the trip at decision time so the
// client can offer alternatives.
type SeatUnavailableError struct {
	Taken    []string
	Occupied []string
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seats already taken: %s", strings.Join(e.Taken, ", "))
}

// InvalidSeatError reports a seat label that does not exist on the bus
type InvalidSeatError struct {
	Seat string
}

func (e *InvalidSeatError) Error() string {
	return fmt.Sprintf("seat %s does not exist on this bus", e.Seat)
}

// InvalidStateTransitionError reports an illegal edge in the booking
// lifecycle graph
type InvalidStateTransitionError struct {
	From BookingStatus
	To   BookingStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot transition booking from %s to %s", e.From, e.To)
}
