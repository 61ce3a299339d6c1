package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/buslink/booking-backend/internal/config"
	"github.com/buslink/booking-backend/internal/services"
)

// TripHandler handles trip search operations
type TripHandler struct {
	searchSvc  *services.TripSearchService
	bookingCfg *config.BookingConfig
}

// NewTripHandler creates a new TripHandler
func NewTripHandler(searchSvc *services.TripSearchService, bookingCfg *config.BookingConfig) *TripHandler {
	return &TripHandler{
		searchSvc:  searchSvc,
		bookingCfg: bookingCfg,
	}
}

// SearchTrips returns upcoming departures for a route
// GET /api/v1/trips/search?route_id=...&from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *TripHandler) SearchTrips(c *gin.Context) {
	routeID := c.Query("route_id")
	if routeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "route_id is required"})
		return
	}

	now := time.Now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, h.bookingCfg.ProjectionDaysAhead)

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be in YYYY-MM-DD format"})
			return
		}
		from = parsed
	}
	if toStr := c.Query("to"); toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be in YYYY-MM-DD format"})
			return
		}
		to = parsed
	}

	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return
	}

	// Cap the window so a single request cannot project unbounded ranges.
	maxTo := from.AddDate(0, 0, h.bookingCfg.ProjectionDaysAhead)
	if to.After(maxTo) {
		to = maxTo
	}

	results, err := h.searchSvc.Search(routeID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search trips"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"route_id": routeID,
		"from":     from.Format("2006-01-02"),
		"to":       to.Format("2006-01-02"),
		"count":    len(results),
		"results":  results,
	})
}
