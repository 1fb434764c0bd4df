package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the subset of the account record this service reads and writes.
// Accounts are created by the auth service.
type User struct {
	ID                    uuid.UUID  `json:"id" db:"id"`
	Name                  string     `json:"name" db:"name"`
	Email                 string     `json:"email" db:"email"`
	CurrentSubscriptionID *uuid.UUID `json:"current_subscription_id" db:"current_subscription_id"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}
