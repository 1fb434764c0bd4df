package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SeatType string

const (
	SeatTypeRegular SeatType = "REGULAR"
	SeatTypeSpecial SeatType = "SPECIAL"
)

type OccupancyType string

const (
	OccupancyFullDay OccupancyType = "FULL_DAY"
	OccupancyMorning OccupancyType = "MORNING"
	OccupancyEvening OccupancyType = "EVENING"
)

// Seat is one unit of the physical seat pool. When Occupied is false the
// occupant fields are all nil.
type Seat struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	SeatNumber    string         `json:"seat_number" db:"seat_number"`
	Type          SeatType       `json:"type" db:"type"`
	Occupied      bool           `json:"occupied" db:"occupied"`
	OccupiedBy    *string        `json:"occupied_by" db:"occupied_by"`
	OccupancyType *OccupancyType `json:"occupancy_type" db:"occupancy_type"`
	UserID        *uuid.UUID     `json:"user_id" db:"user_id"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// SeatClaim describes who takes a seat and for which time slice.
type SeatClaim struct {
	UserID    uuid.UUID
	Name      string
	Occupancy OccupancyType
}

// SeatAvailability is the per-type count of provisioned and free seats.
type SeatAvailability struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

// ParseSeatType maps a client seat label to a known seat type. "NONE", empty
// and unknown labels report false.
func ParseSeatType(label string) (SeatType, bool) {
	switch SeatType(strings.ToUpper(strings.TrimSpace(label))) {
	case SeatTypeRegular:
		return SeatTypeRegular, true
	case SeatTypeSpecial:
		return SeatTypeSpecial, true
	default:
		return "", false
	}
}

// OccupancyForShift maps a shift label to the slice of the day a seat claim covers.
func OccupancyForShift(shift string) OccupancyType {
	s := strings.ToLower(shift)
	switch {
	case strings.Contains(s, "morning"):
		return OccupancyMorning
	case strings.Contains(s, "evening"):
		return OccupancyEvening
	default:
		return OccupancyFullDay
	}
}
