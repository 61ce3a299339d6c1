package database

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/buslink/booking-backend/internal/models"
)

// BusRepository handles database operations for buses
type BusRepository struct {
	db *sqlx.DB
}

// NewBusRepository creates a new BusRepository
func NewBusRepository(db *sqlx.DB) *BusRepository {
	return &BusRepository{db: db}
}

// GetByID retrieves a bus with its seat map
func (r *BusRepository) GetByID(busID string) (*models.Bus, error) {
	query := `
		SELECT id, registration_number, total_seats, seat_map, created_at
		FROM buses
		WHERE id = $1
	`

	bus := &models.Bus{}
	err := r.db.QueryRow(query, busID).Scan(
		&bus.ID, &bus.RegistrationNumber, &bus.TotalSeats, &bus.SeatMap, &bus.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bus not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bus: %w", err)
	}

	return bus, nil
}
