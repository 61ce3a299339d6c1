package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
)

// TripSearchService builds the shopper-facing departure list for a
// route. Projections are expanded on the fly and merged with trips that
// were already materialized; a materialized trip shadows its projection
// so each departure appears exactly once.
type TripSearchService struct {
	projector   *ScheduleProjector
	tripRepo    *database.TripRepository
	bookingRepo *database.BookingRepository
	busRepo     *database.BusRepository
	logger      *logrus.Logger
}

// NewTripSearchService creates a new TripSearchService
func NewTripSearchService(
	projector *ScheduleProjector,
	tripRepo *database.TripRepository,
	bookingRepo *database.BookingRepository,
	busRepo *database.BusRepository,
	logger *logrus.Logger,
) *TripSearchService {
	return &TripSearchService{
		projector:   projector,
		tripRepo:    tripRepo,
		bookingRepo: bookingRepo,
		busRepo:     busRepo,
		logger:      logger,
	}
}

// Search returns departures for a route over [from, to] inclusive,
// sorted by departure instant. Cancelled materialized trips are shown
// nowhere: the trip row shadows the projection and is then filtered out.
func (s *TripSearchService) Search(routeID string, from, to time.Time) ([]models.TripSearchResult, error) {
	projections, err := s.projector.ProjectRoute(routeID, from, to)
	if err != nil {
		return nil, err
	}

	trips, err := s.tripRepo.GetByRouteAndDateRange(routeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	// Index materialized trips by structural key so they shadow the
	// matching projection.
	materialized := make(map[string]*models.Trip, len(trips))
	for i := range trips {
		materialized[structuralKey(trips[i].RouteID, trips[i].DepartureDate, trips[i].DepartureTime)] = &trips[i]
	}

	results := []models.TripSearchResult{}
	seen := make(map[string]bool)

	for i := range projections {
		p := &projections[i]
		key := structuralKey(p.RouteID, p.DepartureDate, p.DepartureTime)
		seen[key] = true

		if trip, ok := materialized[key]; ok {
			result, err := s.tripResult(trip)
			if err != nil {
				return nil, err
			}
			if result != nil {
				results = append(results, *result)
			}
			continue
		}

		result, err := s.projectionResult(p)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	// Trips whose template has since been deactivated still exist as
	// rows; include them so existing bookings stay visible.
	for key, trip := range materialized {
		if seen[key] {
			continue
		}
		result, err := s.tripResult(trip)
		if err != nil {
			return nil, err
		}
		if result != nil {
			results = append(results, *result)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Departure.Before(results[j].Departure)
	})

	return results, nil
}

// tripResult builds the search row for a materialized trip, including
// live occupancy. Returns nil for cancelled trips.
func (s *TripSearchService) tripResult(trip *models.Trip) (*models.TripSearchResult, error) {
	if trip.Status == models.TripStatusCancelled {
		return nil, nil
	}

	bus, err := s.busRepo.GetByID(trip.BusID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	occupied, err := s.bookingRepo.OccupiedSeats(trip.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	tripID := trip.ID
	projected := models.ProjectedTrip{
		RouteID:       trip.RouteID,
		DepartureDate: trip.DepartureDate,
		DepartureTime: trip.DepartureTime,
	}

	return &models.TripSearchResult{
		TripID:         &tripID,
		RouteID:        trip.RouteID,
		BusID:          trip.BusID,
		DepartureDate:  trip.DepartureDate.Format("2006-01-02"),
		DepartureTime:  trip.DepartureTime,
		ArrivalTime:    trip.ArrivalTime,
		Fare:           trip.Fare,
		TotalSeats:     bus.TotalSeats,
		AvailableSeats: bus.TotalSeats - len(occupied),
		OccupiedSeats:  occupied,
		Departure:      projected.Departure(),
	}, nil
}

// projectionResult builds the search row for a virtual departure. No
// trip row exists yet, so every seat is available.
func (s *TripSearchService) projectionResult(p *models.ProjectedTrip) (*models.TripSearchResult, error) {
	bus, err := s.busRepo.GetByID(p.BusID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	return &models.TripSearchResult{
		RouteID:        p.RouteID,
		BusID:          p.BusID,
		DepartureDate:  p.DepartureDate.Format("2006-01-02"),
		DepartureTime:  p.DepartureTime,
		ArrivalTime:    p.ArrivalTime,
		Fare:           p.Fare,
		TotalSeats:     bus.TotalSeats,
		AvailableSeats: bus.TotalSeats,
		OccupiedSeats:  []string{},
		Departure:      p.Departure(),
	}, nil
}

func structuralKey(routeID string, date time.Time, departureTime string) string {
	return fmt.Sprintf("%s|%s|%s", routeID, date.Format("2006-01-02"), departureTime)
}
