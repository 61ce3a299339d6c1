package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{"pending to confirmed", BookingStatusPending, BookingStatusConfirmed, true},
		{"pending to cancelled", BookingStatusPending, BookingStatusCancelled, true},
		{"pending to checked_in", BookingStatusPending, BookingStatusCheckedIn, false},
		{"pending to refunded", BookingStatusPending, BookingStatusRefunded, false},
		{"confirmed to cancelled", BookingStatusConfirmed, BookingStatusCancelled, true},
		{"confirmed to checked_in", BookingStatusConfirmed, BookingStatusCheckedIn, true},
		{"confirmed to refunded", BookingStatusConfirmed, BookingStatusRefunded, true},
		{"confirmed to pending", BookingStatusConfirmed, BookingStatusPending, false},
		{"checked_in to completed", BookingStatusCheckedIn, BookingStatusCompleted, true},
		{"checked_in to cancelled", BookingStatusCheckedIn, BookingStatusCancelled, false},
		{"cancelled to refunded", BookingStatusCancelled, BookingStatusRefunded, true},
		{"cancelled to pending", BookingStatusCancelled, BookingStatusPending, false},
		{"cancelled to confirmed", BookingStatusCancelled, BookingStatusConfirmed, false},
		{"completed is terminal", BookingStatusCompleted, BookingStatusRefunded, false},
		{"refunded is terminal", BookingStatusRefunded, BookingStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking := &Booking{Status: tt.from}
			assert.Equal(t, tt.allowed, booking.CanTransitionTo(tt.to))

			err := booking.TransitionTo(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, booking.Status)
			} else {
				var transitionErr *InvalidStateTransitionError
				require.ErrorAs(t, err, &transitionErr)
				assert.Equal(t, tt.from, transitionErr.From)
				assert.Equal(t, tt.to, transitionErr.To)
				assert.Equal(t, tt.from, booking.Status)
			}
		})
	}
}

func TestBookingIsTerminal(t *testing.T) {
	assert.True(t, (&Booking{Status: BookingStatusCompleted}).IsTerminal())
	assert.True(t, (&Booking{Status: BookingStatusRefunded}).IsTerminal())
	assert.False(t, (&Booking{Status: BookingStatusPending}).IsTerminal())
	assert.False(t, (&Booking{Status: BookingStatusCancelled}).IsTerminal())
}

func TestBookingHoldsSeats(t *testing.T) {
	assert.True(t, (&Booking{Status: BookingStatusPending}).HoldsSeats())
	assert.True(t, (&Booking{Status: BookingStatusConfirmed}).HoldsSeats())
	assert.True(t, (&Booking{Status: BookingStatusCheckedIn}).HoldsSeats())
	assert.True(t, (&Booking{Status: BookingStatusCompleted}).HoldsSeats())
	assert.False(t, (&Booking{Status: BookingStatusCancelled}).HoldsSeats())
	assert.False(t, (&Booking{Status: BookingStatusRefunded}).HoldsSeats())
}

func TestCreateBookingRequestValidate(t *testing.T) {
	tripID := "trip-1"

	base := func() CreateBookingRequest {
		return CreateBookingRequest{
			TripID:         &tripID,
			Seats:          []string{"A1", "A2"},
			PassengerName:  "Nimal Perera",
			PassengerEmail: "nimal@example.com",
			PassengerPhone: "0771234567",
			PaymentMethod:  "card",
		}
	}

	t.Run("valid with trip id", func(t *testing.T) {
		req := base()
		assert.NoError(t, req.Validate())
	})

	t.Run("valid with structural key", func(t *testing.T) {
		req := base()
		req.TripID = nil
		req.RouteID = "route-1"
		req.DepartureDate = "2025-03-01"
		req.DepartureTime = "08:30"
		assert.NoError(t, req.Validate())
	})

	t.Run("no seats", func(t *testing.T) {
		req := base()
		req.Seats = nil
		assert.Error(t, req.Validate())
	})

	t.Run("too many seats", func(t *testing.T) {
		req := base()
		req.Seats = make([]string, 11)
		for i := range req.Seats {
			req.Seats[i] = string(rune('A' + i))
		}
		assert.Error(t, req.Validate())
	})

	t.Run("duplicate seats", func(t *testing.T) {
		req := base()
		req.Seats = []string{"A1", "A1"}
		assert.Error(t, req.Validate())
	})

	t.Run("missing trip reference", func(t *testing.T) {
		req := base()
		req.TripID = nil
		assert.Error(t, req.Validate())
	})

	t.Run("bad date format", func(t *testing.T) {
		req := base()
		req.TripID = nil
		req.RouteID = "route-1"
		req.DepartureDate = "01/03/2025"
		req.DepartureTime = "08:30"
		assert.Error(t, req.Validate())
	})

	t.Run("bad time format", func(t *testing.T) {
		req := base()
		req.TripID = nil
		req.RouteID = "route-1"
		req.DepartureDate = "2025-03-01"
		req.DepartureTime = "8.30am"
		assert.Error(t, req.Validate())
	})
}
