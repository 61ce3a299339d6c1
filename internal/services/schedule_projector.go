package services

import (
	"fmt"
	"time"

	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
)

// ScheduleProjector expands recurring schedule templates into virtual
// trip instances for a requested date range. Projection is a pure
// function of the template and the range; nothing is written, and the
// same inputs always produce the same sequence.
type ScheduleProjector struct {
	templateRepo *database.ScheduleTemplateRepository
}

// NewScheduleProjector creates a new ScheduleProjector
func NewScheduleProjector(templateRepo *database.ScheduleTemplateRepository) *ScheduleProjector {
	return &ScheduleProjector{templateRepo: templateRepo}
}

// Project expands a single template over [from, to] inclusive
func (s *ScheduleProjector) Project(template *models.ScheduleTemplate, from, to time.Time) ([]models.ProjectedTrip, error) {
	if err := template.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidProjection, err)
	}

	projections := []models.ProjectedTrip{}
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		if !template.IsValidForDate(date) {
			continue
		}
		projections = append(projections, models.ProjectedTrip{
			RouteID:       template.RouteID,
			BusID:         template.BusID,
			DepartureDate: time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()),
			DepartureTime: template.DepartureTime,
			ArrivalTime:   template.ArrivalTime,
			Fare:          template.Fare,
		})
	}

	return projections, nil
}

// ProjectRoute expands every active template on a route over the range
func (s *ScheduleProjector) ProjectRoute(routeID string, from, to time.Time) ([]models.ProjectedTrip, error) {
	templates, err := s.templateRepo.GetActiveByRoute(routeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	projections := []models.ProjectedTrip{}
	for i := range templates {
		expanded, err := s.Project(&templates[i], from, to)
		if err != nil {
			return nil, err
		}
		projections = append(projections, expanded...)
	}

	return projections, nil
}
