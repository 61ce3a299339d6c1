package models

import "time"

// Bus represents a vehicle and its seat map. The seat map is the list of
// valid seat labels; seat validation for bookings happens against it.
type Bus struct {
	ID                 string    `json:"id" db:"id"`
	RegistrationNumber string    `json:"registration_number" db:"registration_number"`
	TotalSeats         int       `json:"total_seats" db:"total_seats"`
	SeatMap            SeatList  `json:"seat_map" db:"seat_map"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// HasSeat reports whether the label exists in the bus seat map
func (b *Bus) HasSeat(label string) bool {
	return b.SeatMap.Contains(label)
}
