package models

import (
	"time"

	"github.com/google/uuid"
)

const PaymentStatusSuccess = "Success"

// Payment is an append-only ledger row for one accepted, signature-verified payment.
type Payment struct {
	ID                   uuid.UUID `json:"id" db:"id"`
	UserID               uuid.UUID `json:"user_id" db:"user_id"`
	OrderID              string    `json:"order_id" db:"order_id"`
	PaymentID            string    `json:"payment_id" db:"payment_id"`
	Signature            string    `json:"signature" db:"signature"`
	Amount               float64   `json:"amount" db:"amount"` // major currency units
	Currency             string    `json:"currency" db:"currency"`
	Status               string    `json:"status" db:"status"`
	Plan                 string    `json:"plan" db:"plan"`
	Duration             string    `json:"duration" db:"duration"`
	Shift                string    `json:"shift" db:"shift"`
	SeatType             string    `json:"seat_type" db:"seat_type"`
	RegistrationIncluded bool      `json:"registration_included" db:"registration_included"`
	LockerIncluded       bool      `json:"locker_included" db:"locker_included"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}
