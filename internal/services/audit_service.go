package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/swiftbus/booking-backend/internal/database"
	"github.com/swiftbus/booking-backend/internal/utils"
)

// AuditService records a trail of inventory-changing events: who held,
// confirmed, released or cancelled which seats, from where. The trail is
// what support reads when a passenger disputes a booking.
type AuditService struct {
	db database.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB) *AuditService {
	return &AuditService{
		db: db,
	}
}

// AuditEvent represents an inventory event to be logged
type AuditEvent struct {
	Holder     string                 // Holder identity the event belongs to
	Action     string                 // Action type (e.g., "hold_created", "hold_confirmed")
	EntityType string                 // Type of entity affected (e.g., "hold", "booking")
	EntityID   *uuid.UUID             // ID of the affected entity (can be nil)
	TripID     *uuid.UUID             // Trip the event concerns (can be nil)
	IPAddress  string                 // Client IP address
	UserAgent  string                 // Client user agent
	Details    map[string]interface{} // Additional details as JSONB
}

// LogHoldCreated logs a successful seat hold
func (s *AuditService) LogHoldCreated(holder string, holdID, tripID uuid.UUID, seatNumbers []int, ipAddress, userAgent string) error {
	deviceInfo := utils.ParseUserAgent(userAgent)

	details := map[string]interface{}{
		"seat_numbers": seatNumbers,
		"device_info":  deviceInfo,
	}

	return s.logEvent(AuditEvent{
		Holder:     holder,
		Action:     "hold_created",
		EntityType: "hold",
		EntityID:   &holdID,
		TripID:     &tripID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogHoldConfirmed logs a hold being promoted to booked seats
func (s *AuditService) LogHoldConfirmed(holder string, holdID, tripID uuid.UUID, bookingID *uuid.UUID, ipAddress, userAgent string) error {
	details := map[string]interface{}{
		"device_info": utils.ParseUserAgent(userAgent),
	}
	if bookingID != nil {
		details["booking_id"] = bookingID.String()
	}

	return s.logEvent(AuditEvent{
		Holder:     holder,
		Action:     "hold_confirmed",
		EntityType: "hold",
		EntityID:   &holdID,
		TripID:     &tripID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogSeatsReleased logs seats being returned to the open pool
func (s *AuditService) LogSeatsReleased(holder string, tripID uuid.UUID, seatNumbers []int, from string, ipAddress, userAgent string) error {
	details := map[string]interface{}{
		"seat_numbers": seatNumbers,
		"from_state":   from,
		"device_info":  utils.ParseUserAgent(userAgent),
	}

	return s.logEvent(AuditEvent{
		Holder:     holder,
		Action:     "seats_released",
		EntityType: "hold",
		EntityID:   nil,
		TripID:     &tripID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogBookingCancelled logs a booking cancellation
func (s *AuditService) LogBookingCancelled(holder string, bookingID, tripID uuid.UUID, refunded bool, ipAddress, userAgent string) error {
	details := map[string]interface{}{
		"refunded":    refunded,
		"device_info": utils.ParseUserAgent(userAgent),
	}

	return s.logEvent(AuditEvent{
		Holder:     holder,
		Action:     "booking_cancelled",
		EntityType: "booking",
		EntityID:   &bookingID,
		TripID:     &tripID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogSeatConflict logs a hold attempt that lost to another holder
func (s *AuditService) LogSeatConflict(holder string, tripID uuid.UUID, seatNumbers []int, ipAddress, userAgent string) error {
	details := map[string]interface{}{
		"seat_numbers": seatNumbers,
		"device_info":  utils.ParseUserAgent(userAgent),
	}

	return s.logEvent(AuditEvent{
		Holder:     holder,
		Action:     "seat_conflict",
		EntityType: "hold",
		EntityID:   nil,
		TripID:     &tripID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// LogRateLimitViolation logs a rate limit violation event
func (s *AuditService) LogRateLimitViolation(holder, ipAddress, userAgent, limitType string, retryAfter time.Time) error {
	details := map[string]interface{}{
		"limit_type":  limitType, // "holder" or "ip"
		"retry_after": retryAfter,
		"device_info": utils.ParseUserAgent(userAgent),
	}

	return s.logEvent(AuditEvent{
		Holder:     holder,
		Action:     "rate_limit_violation",
		EntityType: "rate_limit",
		EntityID:   nil,
		TripID:     nil,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
	})
}

// logEvent is the internal method that writes to the reservation_audit_logs table
func (s *AuditService) logEvent(event AuditEvent) error {
	query := `
		INSERT INTO reservation_audit_logs (holder, action, entity_type, entity_id, trip_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	_, err = s.db.Exec(
		query,
		event.Holder,
		event.Action,
		event.EntityType,
		event.EntityID,
		event.TripID,
		event.IPAddress,
		event.UserAgent,
		detailsJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// GetRecentEvents retrieves recent audit events for a holder
func (s *AuditService) GetRecentEvents(holder string, limit int) ([]map[string]interface{}, error) {
	query := `
		SELECT action, entity_type, trip_id, ip_address, user_agent, details, created_at
		FROM reservation_audit_logs
		WHERE holder = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(query, holder, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	defer rows.Close()

	events := []map[string]interface{}{}
	for rows.Next() {
		var action, entityType, ipAddress, userAgent string
		var tripID *uuid.UUID
		var detailsRaw []byte
		var createdAt time.Time

		err := rows.Scan(&action, &entityType, &tripID, &ipAddress, &userAgent, &detailsRaw, &createdAt)
		if err != nil {
			continue
		}

		var details map[string]interface{}
		if len(detailsRaw) > 0 {
			_ = json.Unmarshal(detailsRaw, &details)
		}

		events = append(events, map[string]interface{}{
			"action":      action,
			"entity_type": entityType,
			"trip_id":     tripID,
			"ip_address":  ipAddress,
			"user_agent":  userAgent,
			"details":     details,
			"created_at":  createdAt,
		})
	}

	return events, nil
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(olderThan time.Duration) (int64, error) {
	cutoffTime := time.Now().Add(-olderThan)

	query := `
		DELETE FROM reservation_audit_logs
		WHERE created_at < $1
	`

	result, err := s.db.Exec(query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
