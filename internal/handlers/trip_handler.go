package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/services"
)

// TripHandler handles trip catalog and availability endpoints
type TripHandler struct {
	tripService         *services.TripService
	availabilityService *services.AvailabilityService
	logger              *logrus.Logger
}

// NewTripHandler creates a new TripHandler
func NewTripHandler(tripService *services.TripService, availabilityService *services.AvailabilityService, logger *logrus.Logger) *TripHandler {
	return &TripHandler{
		tripService:         tripService,
		availabilityService: availabilityService,
		logger:              logger,
	}
}

// CreateTrip schedules a new trip and its seat inventory
// POST /api/v1/trips (admin only)
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req models.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	trip, err := h.tripService.CreateTrip(c.Request.Context(), &req)
	if err != nil {
		respondReservationError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, trip)
}

// GetTrip returns one trip
// GET /api/v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trip id"})
		return
	}

	trip, err := h.tripService.GetTrip(c.Request.Context(), tripID)
	if err != nil {
		respondReservationError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, trip)
}

// SearchTrips returns bookable trips between two cities on a date
// GET /api/v1/trips/search?from=Colombo&to=Kandy&date=2026-09-15
func (h *TripHandler) SearchTrips(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	dateStr := c.Query("date")
	if from == "" || to == "" || dateStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from, to and date query parameters are required"})
		return
	}

	travelDate, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}

	trips, err := h.tripService.SearchTrips(c.Request.Context(), models.TripSearchQuery{
		FromCity:   from,
		ToCity:     to,
		TravelDate: travelDate,
	})
	if err != nil {
		respondReservationError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trips": trips,
		"count": len(trips),
	})
}

// GetAvailability returns the seat map and available count for a trip
// GET /api/v1/trips/:id/availability
func (h *TripHandler) GetAvailability(c *gin.Context) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trip id"})
		return
	}

	availability, err := h.availabilityService.GetTripAvailability(c.Request.Context(), tripID)
	if err != nil {
		respondReservationError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}
