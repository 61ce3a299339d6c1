package services

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
)

// TripMaterializer converts a projected trip into a durable trip record
// exactly once per structural identity. Concurrent materializers racing
// on the same departure are resolved by the store's uniqueness
// constraint: the race loser catches the violation and re-fetches the
// winner's row instead of surfacing an error.
type TripMaterializer struct {
	tripRepo *database.TripRepository
	logger   *logrus.Logger
}

// NewTripMaterializer creates a new TripMaterializer
func NewTripMaterializer(tripRepo *database.TripRepository, logger *logrus.Logger) *TripMaterializer {
	return &TripMaterializer{
		tripRepo: tripRepo,
		logger:   logger,
	}
}

// Materialize resolves a trip reference to a persisted trip. Persisted
// references pass through untouched; projections are looked up by their
// structural key and inserted only when absent.
func (m *TripMaterializer) Materialize(ref models.TripRef) (*models.Trip, error) {
	if ref.IsPersisted() {
		return ref.Persisted, nil
	}

	p := ref.Projected
	if p == nil {
		return nil, fmt.Errorf("%w: empty trip reference", models.ErrInvalidProjection)
	}
	if p.RouteID == "" || p.BusID == "" {
		return nil, fmt.Errorf("%w: missing route or bus reference", models.ErrInvalidProjection)
	}

	// Common case under concurrent shoppers: someone already materialized
	// this departure.
	existing, err := m.tripRepo.GetByStructuralKey(p.RouteID, p.DepartureDate, p.DepartureTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if existing != nil {
		return existing, nil
	}

	trip := &models.Trip{
		RouteID:       p.RouteID,
		BusID:         p.BusID,
		DepartureDate: p.DepartureDate,
		DepartureTime: p.DepartureTime,
		ArrivalTime:   p.ArrivalTime,
		Fare:          p.Fare,
		Status:        models.TripStatusScheduled,
	}

	err = m.tripRepo.Create(trip)
	if err == nil {
		m.logger.WithFields(logrus.Fields{
			"trip_id":        trip.ID,
			"route_id":       trip.RouteID,
			"departure_date": trip.DepartureDate.Format("2006-01-02"),
			"departure_time": trip.DepartureTime,
		}).Info("Trip materialized")
		return trip, nil
	}

	if database.IsUniqueViolation(err) {
		// Lost the create race; the winner's row is authoritative.
		winner, fetchErr := m.tripRepo.GetByStructuralKey(p.RouteID, p.DepartureDate, p.DepartureTime)
		if fetchErr != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, fetchErr)
		}
		if winner == nil {
			return nil, fmt.Errorf("%w: trip vanished after materialization race", models.ErrStorageUnavailable)
		}
		m.logger.WithFields(logrus.Fields{
			"trip_id":  winner.ID,
			"route_id": winner.RouteID,
		}).Debug("Materialization race lost, reusing existing trip")
		return winner, nil
	}

	return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}
