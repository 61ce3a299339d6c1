package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/buslink/booking-backend/internal/models"
)

// TripRepository handles database operations for trips. The trips table
// carries a uniqueness constraint on (route_id, departure_date,
// departure_time); Create surfaces violations so the materializer can
// resolve its race by re-fetching.
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

// Create inserts a new trip. Returns the raw driver error on a unique
// violation; callers check with IsUniqueViolation.
func (r *TripRepository) Create(trip *models.Trip) error {
	query := `
		INSERT INTO trips (
			id, route_id, bus_id, departure_date, departure_time,
			arrival_time, fare, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at, updated_at
	`

	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}

	return r.db.QueryRow(
		query,
		trip.ID, trip.RouteID, trip.BusID, trip.DepartureDate, trip.DepartureTime,
		trip.ArrivalTime, trip.Fare, trip.Status,
	).Scan(&trip.CreatedAt, &trip.UpdatedAt)
}

// GetByID retrieves a trip by ID
func (r *TripRepository) GetByID(tripID string) (*models.Trip, error) {
	query := `
		SELECT id, route_id, bus_id, departure_date, departure_time,
		       arrival_time, fare, status, created_at, updated_at
		FROM trips
		WHERE id = $1
	`

	trip, err := r.scanTrip(r.db.QueryRow(query, tripID))
	if err == sql.ErrNoRows {
		return nil, models.ErrTripNotFound
	}
	return trip, err
}

// GetByStructuralKey retrieves a trip by its structural identity
// (route + departure date + departure time). Returns (nil, nil) when no
// trip has been materialized for that key yet.
func (r *TripRepository) GetByStructuralKey(routeID string, departureDate time.Time, departureTime string) (*models.Trip, error) {
	query := `
		SELECT id, route_id, bus_id, departure_date, departure_time,
		       arrival_time, fare, status, created_at, updated_at
		FROM trips
		WHERE route_id = $1
		  AND departure_date = $2
		  AND departure_time = $3
	`

	trip, err := r.scanTrip(r.db.QueryRow(query, routeID, departureDate, departureTime))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return trip, err
}

// GetByRouteAndDateRange retrieves materialized trips for a route within a range
func (r *TripRepository) GetByRouteAndDateRange(routeID string, from, to time.Time) ([]models.Trip, error) {
	query := `
		SELECT id, route_id, bus_id, departure_date, departure_time,
		       arrival_time, fare, status, created_at, updated_at
		FROM trips
		WHERE route_id = $1
		  AND departure_date >= $2
		  AND departure_date <= $3
		ORDER BY departure_date, departure_time
	`

	rows, err := r.db.Query(query, routeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := []models.Trip{}
	for rows.Next() {
		var trip models.Trip
		if err := rows.Scan(
			&trip.ID, &trip.RouteID, &trip.BusID, &trip.DepartureDate, &trip.DepartureTime,
			&trip.ArrivalTime, &trip.Fare, &trip.Status, &trip.CreatedAt, &trip.UpdatedAt,
		); err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}

	return trips, rows.Err()
}

// scanTrip scans a single trip row. Passes sql.ErrNoRows through so
// callers can decide whether absence is an error.
func (r *TripRepository) scanTrip(row *sql.Row) (*models.Trip, error) {
	trip := &models.Trip{}
	err := row.Scan(
		&trip.ID, &trip.RouteID, &trip.BusID, &trip.DepartureDate, &trip.DepartureTime,
		&trip.ArrivalTime, &trip.Fare, &trip.Status, &trip.CreatedAt, &trip.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trip: %w", err)
	}
	return trip, nil
}
