package handlers

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// logAuditError is a helper to log audit service errors without failing the request
func logAuditError(operation string, err error) {
	if err != nil {
		log.Printf("AUDIT ERROR [%s]: %v", operation, err)
	}
}

// Helper functions to log audit events with error handling

func (h *ReservationHandler) safeLogHoldCreated(holder string, holdID, tripID uuid.UUID, seatNumbers []int, ipAddress, userAgent string) {
	if err := h.auditService.LogHoldCreated(holder, holdID, tripID, seatNumbers, ipAddress, userAgent); err != nil {
		logAuditError("LogHoldCreated", err)
	}
}

func (h *ReservationHandler) safeLogHoldConfirmed(holder string, holdID, tripID uuid.UUID, bookingID *uuid.UUID, ipAddress, userAgent string) {
	if err := h.auditService.LogHoldConfirmed(holder, holdID, tripID, bookingID, ipAddress, userAgent); err != nil {
		logAuditError("LogHoldConfirmed", err)
	}
}

func (h *ReservationHandler) safeLogSeatsReleased(holder string, tripID uuid.UUID, seatNumbers []int, from, ipAddress, userAgent string) {
	if err := h.auditService.LogSeatsReleased(holder, tripID, seatNumbers, from, ipAddress, userAgent); err != nil {
		logAuditError("LogSeatsReleased", err)
	}
}

func (h *ReservationHandler) safeLogSeatConflict(holder string, tripID uuid.UUID, seatNumbers []int, ipAddress, userAgent string) {
	if err := h.auditService.LogSeatConflict(holder, tripID, seatNumbers, ipAddress, userAgent); err != nil {
		logAuditError("LogSeatConflict", err)
	}
}

func (h *ReservationHandler) safeLogRateLimitViolation(holder, ipAddress, userAgent, limitType string, retryAfter time.Time) {
	if err := h.auditService.LogRateLimitViolation(holder, ipAddress, userAgent, limitType, retryAfter); err != nil {
		logAuditError("LogRateLimitViolation", err)
	}
}

func (h *BookingHandler) safeLogBookingCancelled(holder string, bookingID, tripID uuid.UUID, refunded bool, ipAddress, userAgent string) {
	if err := h.auditService.LogBookingCancelled(holder, bookingID, tripID, refunded, ipAddress, userAgent); err != nil {
		logAuditError("LogBookingCancelled", err)
	}
}
