package database

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/buslink/booking-backend/internal/models"
)

// ScheduleTemplateRepository handles database operations for schedule_templates
type ScheduleTemplateRepository struct {
	db *sqlx.DB
}

// NewScheduleTemplateRepository creates a new ScheduleTemplateRepository
func NewScheduleTemplateRepository(db *sqlx.DB) *ScheduleTemplateRepository {
	return &ScheduleTemplateRepository{db: db}
}

// GetByID retrieves a schedule template by ID
func (r *ScheduleTemplateRepository) GetByID(templateID string) (*models.ScheduleTemplate, error) {
	query := `
		SELECT id, route_id, bus_id, weekday, departure_time, arrival_time,
		       fare, is_active, valid_from, valid_until, created_at
		FROM schedule_templates
		WHERE id = $1
	`

	template := &models.ScheduleTemplate{}
	err := r.db.Get(template, query, templateID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("schedule template not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedule template: %w", err)
	}

	return template, nil
}

// GetActiveByRoute retrieves all active schedule templates for a route
func (r *ScheduleTemplateRepository) GetActiveByRoute(routeID string) ([]models.ScheduleTemplate, error) {
	query := `
		SELECT id, route_id, bus_id, weekday, departure_time, arrival_time,
		       fare, is_active, valid_from, valid_until, created_at
		FROM schedule_templates
		WHERE route_id = $1
		  AND is_active = true
		ORDER BY weekday, departure_time
	`

	templates := []models.ScheduleTemplate{}
	if err := r.db.Select(&templates, query, routeID); err != nil {
		return nil, fmt.Errorf("failed to fetch schedule templates: %w", err)
	}

	return templates, nil
}
