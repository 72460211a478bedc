package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/swiftbus/booking-backend/internal/database"
)

// RateLimitService throttles seat hold requests. Holding seats is cheap for
// a client and expensive for inventory, so both the holder identity and the
// client IP are limited over a sliding window.
type RateLimitService struct {
	db database.DB
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db database.DB) *RateLimitService {
	return &RateLimitService{
		db: db,
	}
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxHolderRequests int           // Max hold requests per holder
	HolderWindow      time.Duration // Time window for holder rate limit
	MaxIPRequests     int           // Max hold requests per IP
	IPWindow          time.Duration // Time window for IP rate limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxHolderRequests: 10,               // 10 hold requests
		HolderWindow:      10 * time.Minute, // per 10 minutes
		MaxIPRequests:     30,               // 30 requests
		IPWindow:          1 * time.Hour,    // per hour
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "holder" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckHoldRateLimit checks if a holder or IP has exceeded hold request limits
func (s *RateLimitService) CheckHoldRateLimit(holder, ip string) error {
	config := DefaultRateLimitConfig()

	// Check holder-based rate limit
	if holder != "" {
		holderCount, lastRequest, err := s.getRequestCount(holder, "holder", config.HolderWindow)
		if err != nil {
			return fmt.Errorf("failed to check holder rate limit: %w", err)
		}

		if holderCount >= config.MaxHolderRequests {
			retryAfter := lastRequest.Add(config.HolderWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many seat hold requests. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       "holder",
			}
		}
	}

	// Check IP-based rate limit
	if ip != "" {
		ipCount, lastRequest, err := s.getRequestCount(ip, "ip", config.IPWindow)
		if err != nil {
			return fmt.Errorf("failed to check IP rate limit: %w", err)
		}

		if ipCount >= config.MaxIPRequests {
			retryAfter := lastRequest.Add(config.IPWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many seat hold requests from this IP address. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       "ip",
			}
		}
	}

	return nil
}

// getRequestCount gets the number of requests within the time window
func (s *RateLimitService) getRequestCount(identifier, identifierType string, window time.Duration) (int, time.Time, error) {
	windowStart := time.Now().Add(-window)

	query := `
		SELECT COUNT(*), COALESCE(MAX(created_at), NOW())
		FROM hold_rate_limits
		WHERE identifier = $1
		  AND identifier_type = $2
		  AND created_at > $3
	`

	var count int
	var lastRequest time.Time

	err := s.db.QueryRow(query, identifier, identifierType, windowStart).Scan(&count, &lastRequest)
	if err != nil && err != sql.ErrNoRows {
		return 0, time.Time{}, err
	}

	return count, lastRequest, nil
}

// RecordHoldRequest records a hold request for rate limiting
func (s *RateLimitService) RecordHoldRequest(holder, ip string) error {
	// Record holder-based request
	if holder != "" {
		err := s.recordRequest(holder, "holder")
		if err != nil {
			return fmt.Errorf("failed to record holder request: %w", err)
		}
	}

	// Record IP-based request
	if ip != "" {
		err := s.recordRequest(ip, "ip")
		if err != nil {
			return fmt.Errorf("failed to record IP request: %w", err)
		}
	}

	return nil
}

// recordRequest inserts a rate limit record
func (s *RateLimitService) recordRequest(identifier, identifierType string) error {
	query := `
		INSERT INTO hold_rate_limits (identifier, identifier_type, created_at)
		VALUES ($1, $2, NOW())
	`

	_, err := s.db.Exec(query, identifier, identifierType)
	return err
}

// CleanupExpiredRateLimits removes old rate limit records
func (s *RateLimitService) CleanupExpiredRateLimits() (int64, error) {
	config := DefaultRateLimitConfig()

	// Delete records older than the longest window
	maxWindow := config.IPWindow
	if config.HolderWindow > maxWindow {
		maxWindow = config.HolderWindow
	}

	cutoffTime := time.Now().Add(-maxWindow)

	query := `
		DELETE FROM hold_rate_limits
		WHERE created_at < $1
	`

	result, err := s.db.Exec(query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// IsRateLimited checks if an identifier is currently rate limited
func (s *RateLimitService) IsRateLimited(identifier, identifierType string) (bool, time.Time, error) {
	config := DefaultRateLimitConfig()

	window := config.HolderWindow
	maxRequests := config.MaxHolderRequests
	if identifierType == "ip" {
		window = config.IPWindow
		maxRequests = config.MaxIPRequests
	}

	count, lastRequest, err := s.getRequestCount(identifier, identifierType, window)
	if err != nil {
		return false, time.Time{}, err
	}

	if count >= maxRequests {
		retryAfter := lastRequest.Add(window)
		return true, retryAfter, nil
	}

	return false, time.Time{}, nil
}
