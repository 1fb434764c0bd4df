package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SubscriptionStatusActive    = "Active"
	SubscriptionStatusExpired   = "Expired"
	SubscriptionStatusCancelled = "Cancelled"
)

type Subscription struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	Plan              string     `json:"plan" db:"plan"`
	Status            string     `json:"status" db:"status"`
	StartDate         time.Time  `json:"start_date" db:"start_date"`
	ExpiryDate        time.Time  `json:"expiry_date" db:"expiry_date"`
	RazorpayOrderID   string     `json:"razorpay_order_id" db:"razorpay_order_id"`
	RazorpayPaymentID string     `json:"razorpay_payment_id" db:"razorpay_payment_id"`
	RazorpaySignature string     `json:"razorpay_signature" db:"razorpay_signature"`
	Duration          string     `json:"duration" db:"duration"`
	Shift             string     `json:"shift" db:"shift"`
	SeatType          string     `json:"seat_type" db:"seat_type"`
	AmountPaid        float64    `json:"amount_paid" db:"amount_paid"`
	SeatNumber        *string    `json:"seat_number,omitempty" db:"seat_number"`
	SeatID            *uuid.UUID `json:"seat_id,omitempty" db:"seat_id"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}
