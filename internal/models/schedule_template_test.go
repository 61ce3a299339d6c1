package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validTemplate() ScheduleTemplate {
	return ScheduleTemplate{
		ID:            "tpl-1",
		RouteID:       "route-1",
		BusID:         "bus-1",
		Weekday:       1, // Monday
		DepartureTime: "08:30",
		ArrivalTime:   "12:00",
		Fare:          1500,
		IsActive:      true,
		ValidFrom:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestScheduleTemplateValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tpl := validTemplate()
		assert.NoError(t, tpl.Validate())
	})

	t.Run("missing route", func(t *testing.T) {
		tpl := validTemplate()
		tpl.RouteID = ""
		assert.Error(t, tpl.Validate())
	})

	t.Run("missing bus", func(t *testing.T) {
		tpl := validTemplate()
		tpl.BusID = ""
		assert.Error(t, tpl.Validate())
	})

	t.Run("weekday out of range", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Weekday = 7
		assert.Error(t, tpl.Validate())
	})

	t.Run("bad departure time", func(t *testing.T) {
		tpl := validTemplate()
		tpl.DepartureTime = "25:99"
		assert.Error(t, tpl.Validate())
	})
}

func TestScheduleTemplateIsValidForDate(t *testing.T) {
	tpl := validTemplate()

	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	assert.True(t, tpl.IsValidForDate(monday))
	assert.False(t, tpl.IsValidForDate(tuesday))

	t.Run("inactive template", func(t *testing.T) {
		inactive := validTemplate()
		inactive.IsActive = false
		assert.False(t, inactive.IsValidForDate(monday))
	})

	t.Run("before valid_from", func(t *testing.T) {
		future := validTemplate()
		future.ValidFrom = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		assert.False(t, future.IsValidForDate(monday))
	})

	t.Run("after valid_until", func(t *testing.T) {
		until := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
		expired := validTemplate()
		expired.ValidUntil = &until
		assert.False(t, expired.IsValidForDate(monday))
	})

	t.Run("on valid_until boundary", func(t *testing.T) {
		until := monday
		bounded := validTemplate()
		bounded.ValidUntil = &until
		assert.True(t, bounded.IsValidForDate(monday))
	})

	t.Run("local midnight east of UTC", func(t *testing.T) {
		// Midnight in Colombo is still the previous day in UTC. The
		// validity check compares calendar days, not UTC instants.
		colombo := time.FixedZone("UTC+0530", 5*3600+1800)
		localMonday := time.Date(2025, 3, 3, 0, 0, 0, 0, colombo)

		tpl := validTemplate()
		tpl.ValidFrom = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
		assert.True(t, tpl.IsValidForDate(localMonday))
	})
}

func TestScheduleTemplateDepartureOn(t *testing.T) {
	tpl := validTemplate()
	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	departure := tpl.DepartureOn(date)
	assert.Equal(t, time.Date(2025, 3, 3, 8, 30, 0, 0, time.UTC), departure)
}
