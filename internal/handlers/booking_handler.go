package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/swiftbus/booking-backend/internal/middleware"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/services"
	"github.com/swiftbus/booking-backend/internal/utils"
)

// BookingHandler handles the end-to-end booking endpoints
type BookingHandler struct {
	orchestratorService *services.BookingOrchestratorService
	auditService        *services.AuditService
	logger              *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(orchestratorService *services.BookingOrchestratorService, auditService *services.AuditService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		orchestratorService: orchestratorService,
		auditService:        auditService,
		logger:              logger,
	}
}

// CreateBooking runs the hold → passengers → payment → confirm flow
// POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	booking, err := h.orchestratorService.CreateBooking(c.Request.Context(), userCtx.HolderID, &req)
	if err != nil {
		respondReservationError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// CancelBooking cancels a booking and releases its seats
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := h.orchestratorService.CancelBooking(c.Request.Context(), userCtx.HolderID, bookingID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		respondReservationError(c, h.logger, err)
		return
	}

	h.safeLogBookingCancelled(userCtx.HolderID, booking.ID, booking.TripID, booking.PaymentID != nil,
		utils.GetRealIP(c), utils.GetUserAgent(c))

	c.JSON(http.StatusOK, booking)
}

// ListBookings returns the caller's bookings, newest first
// GET /api/v1/bookings?limit=20&offset=0
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.orchestratorService.ListBookings(c.Request.Context(), userCtx.HolderID, limit, offset)
	if err != nil {
		respondReservationError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// GetBookingByReference returns one of the caller's bookings by reference
// GET /api/v1/bookings/ref/:reference
func (h *BookingHandler) GetBookingByReference(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	reference := c.Param("reference")
	booking, err := h.orchestratorService.GetBookingByReference(c.Request.Context(), userCtx.HolderID, reference)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		respondReservationError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}
