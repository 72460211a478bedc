package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swiftbus/booking-backend/internal/middleware"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/internal/services"
	"github.com/swiftbus/booking-backend/internal/utils"
)

// ReservationHandler handles seat hold, confirm and release endpoints
type ReservationHandler struct {
	reservationService *services.ReservationService
	rateLimitService   *services.RateLimitService
	auditService       *services.AuditService
	logger             *logrus.Logger
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(
	reservationService *services.ReservationService,
	rateLimitService *services.RateLimitService,
	auditService *services.AuditService,
	logger *logrus.Logger,
) *ReservationHandler {
	return &ReservationHandler{
		reservationService: reservationService,
		rateLimitService:   rateLimitService,
		auditService:       auditService,
		logger:             logger,
	}
}

// ============================================================================
// HOLD SEATS - POST /api/v1/reservations/hold
// ============================================================================

// HoldSeats places a TTL-bound hold on a group of seats
func (h *ReservationHandler) HoldSeats(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.HoldSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	clientIP := utils.GetRealIP(c)
	userAgent := utils.GetUserAgent(c)

	if err := h.rateLimitService.CheckHoldRateLimit(userCtx.HolderID, clientIP); err != nil {
		var rateLimitErr *services.RateLimitError
		if errors.As(err, &rateLimitErr) {
			h.safeLogRateLimitViolation(userCtx.HolderID, clientIP, userAgent, rateLimitErr.Type, rateLimitErr.RetryAfter)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     rateLimitErr.Message,
				"retry_after": rateLimitErr.RetryAfter,
				"code":        "RATE_LIMITED",
			})
			return
		}
		// A rate limit storage failure should not block booking traffic
		h.logger.WithError(err).Warn("Rate limit check failed, allowing request")
	}

	hold, err := h.reservationService.HoldSeats(c.Request.Context(), req.TripID, req.SeatNumbers, userCtx.HolderID)
	if err != nil {
		if conflict, ok := models.IsSeatConflict(err); ok {
			h.safeLogSeatConflict(userCtx.HolderID, req.TripID, conflict.SeatNumbers, clientIP, userAgent)
		}
		respondReservationError(c, h.logger, err)
		return
	}

	if recordErr := h.rateLimitService.RecordHoldRequest(userCtx.HolderID, clientIP); recordErr != nil {
		h.logger.WithError(recordErr).Warn("Failed to record hold request for rate limiting")
	}
	h.safeLogHoldCreated(userCtx.HolderID, hold.ID, hold.TripID, hold.SeatNumbers, clientIP, userAgent)

	c.JSON(http.StatusCreated, models.HoldSeatsResponse{
		HoldID:      hold.ID,
		TripID:      hold.TripID,
		SeatNumbers: hold.SeatNumbers,
		ExpiresAt:   hold.ExpiresAt,
	})
}

// ============================================================================
// CONFIRM HOLD - POST /api/v1/reservations/confirm
// ============================================================================

// ConfirmHold promotes a hold's seats from held to booked
func (h *ReservationHandler) ConfirmHold(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.ConfirmHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	hold, err := h.reservationService.ConfirmHold(c.Request.Context(), req, userCtx.HolderID)
	if err != nil {
		respondReservationError(c, h.logger, err)
		return
	}

	h.safeLogHoldConfirmed(userCtx.HolderID, hold.ID, hold.TripID, hold.BookingID, utils.GetRealIP(c), utils.GetUserAgent(c))

	c.JSON(http.StatusOK, gin.H{
		"hold_id":    hold.ID,
		"trip_id":    hold.TripID,
		"seats":      hold.SeatNumbers,
		"booking_id": hold.BookingID,
		"status":     hold.Status,
	})
}

// ============================================================================
// RELEASE SEATS - POST /api/v1/reservations/release
// ============================================================================

// ReleaseSeats returns seats to available from an explicit prior state
func (h *ReservationHandler) ReleaseSeats(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.ReleaseSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.reservationService.ReleaseSeats(c.Request.Context(), req, userCtx.HolderID); err != nil {
		respondReservationError(c, h.logger, err)
		return
	}

	h.safeLogSeatsReleased(userCtx.HolderID, req.TripID, req.SeatNumbers, string(req.From), utils.GetRealIP(c), utils.GetUserAgent(c))

	c.JSON(http.StatusOK, gin.H{
		"trip_id": req.TripID,
		"seats":   req.SeatNumbers,
		"status":  "released",
	})
}

// respondReservationError maps domain errors to HTTP responses. Shared by
// the reservation, trip and booking handlers.
func respondReservationError(c *gin.Context, logger *logrus.Logger, err error) {
	if conflict, ok := models.IsSeatConflict(err); ok {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "seats_unavailable",
			"message": conflict.Error(),
			"seats":   conflict.SeatNumbers,
			"code":    "SEAT_CONFLICT",
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrTripNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "trip_not_found",
			"message": "Trip not found",
			"code":    "TRIP_NOT_FOUND",
		})
	case errors.Is(err, models.ErrTripDeparted):
		c.JSON(http.StatusGone, gin.H{
			"error":   "trip_departed",
			"message": "Trip has already departed",
			"code":    "TRIP_DEPARTED",
		})
	case errors.Is(err, models.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "hold_not_found",
			"message": "Hold not found or no longer active",
			"code":    "HOLD_NOT_FOUND",
		})
	case errors.Is(err, models.ErrHoldExpired):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "hold_expired",
			"message": "Hold has expired; the seats are back on the market",
			"code":    "HOLD_EXPIRED",
		})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_transition",
			"message": err.Error(),
			"code":    "INVALID_TRANSITION",
		})
	case errors.Is(err, models.ErrTooManySeats),
		errors.Is(err, models.ErrDuplicateSeats),
		errors.Is(err, models.ErrSeatOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
			"code":    "INVALID_SEAT_SELECTION",
		})
	case errors.Is(err, models.ErrStoreUnavailable):
		logger.WithError(err).Error("Storage unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Storage is temporarily unavailable, please retry",
			"code":    "STORE_UNAVAILABLE",
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
