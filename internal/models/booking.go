package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// PassengerDetails describes one traveller on a booking.
type PassengerDetails struct {
	Name   string `json:"name" binding:"required"`
	Age    int    `json:"age" binding:"required,min=1,max=120"`
	Gender string `json:"gender" binding:"required,oneof=male female other"`
	Email  string `json:"email,omitempty" binding:"omitempty,email"`
	Phone  string `json:"phone,omitempty"`
}

// PassengerList stores passenger details as a JSONB column.
type PassengerList []PassengerDetails

// Value implements driver.Valuer for JSONB storage.
func (p PassengerList) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal passenger list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSONB retrieval.
func (p *PassengerList) Scan(src interface{}) error {
	if src == nil {
		*p = PassengerList{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into PassengerList", src)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("failed to unmarshal passenger list: %w", err)
	}
	return nil
}

// Booking is a confirmed or in-flight purchase of a group of seats on a
// trip. The booking reference is the customer-facing identifier.
type Booking struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	BookingReference string        `db:"booking_reference" json:"booking_reference"`
	Holder           string        `db:"holder" json:"holder"`
	TripID           uuid.UUID     `db:"trip_id" json:"trip_id"`
	SeatNumbers      IntArray      `db:"seat_numbers" json:"seat_numbers"`
	Passengers       PassengerList `db:"passengers" json:"passengers"`
	TotalPrice       float64       `db:"total_price" json:"total_price"`
	Status           BookingStatus `db:"status" json:"status"`
	PaymentID        *string       `db:"payment_id" json:"payment_id,omitempty"`
	Notes            *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// CreateBookingRequest is the payload for the end-to-end booking flow. When
// HoldID is set the booking consumes an existing hold; otherwise the seats
// are held as the first step of the flow.
type CreateBookingRequest struct {
	TripID      uuid.UUID          `json:"trip_id" binding:"required"`
	SeatNumbers []int              `json:"seat_numbers" binding:"required,min=1,dive,min=1"`
	HoldID      *uuid.UUID         `json:"hold_id,omitempty"`
	Passengers  []PassengerDetails `json:"passengers" binding:"required,min=1,dive"`
	Notes       string             `json:"notes,omitempty"`
}
