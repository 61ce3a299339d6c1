package models

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// SeatList is a custom type for handling TEXT[] seat label arrays in PostgreSQL
type SeatList []string

// Value implements the driver.Valuer interface
func (a SeatList) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.Array(a).Value()
}

// Scan implements the sql.Scanner interface
func (a *SeatList) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	slice := (*[]string)(a)
	return pq.Array(slice).Scan(src)
}

// Contains reports whether the list holds the given seat label
func (a SeatList) Contains(seat string) bool {
	for _, s := range a {
		if s == seat {
			return true
		}
	}
	return false
}
