package services

import (
	"context"
	"errors"
	"fmt"

	"smartlibrary/internal/models"
	"smartlibrary/internal/repositories"

	"github.com/google/uuid"
)

// Claimant identifies who a seat is being claimed for.
type Claimant struct {
	UserID uuid.UUID
	Name   string
}

// SeatAllocator hands out seats from the finite pool. Allocate never blocks
// waiting for a seat: an exhausted pool is reported as ErrNoSeatAvailable.
type SeatAllocator interface {
	Allocate(ctx context.Context, seatType models.SeatType, occupancy models.OccupancyType, claimant Claimant) (*models.Seat, error)
	Release(ctx context.Context, seatID uuid.UUID) error
	ReleaseHeldBy(ctx context.Context, seatID, userID uuid.UUID) error
	Availability(ctx context.Context) (map[models.SeatType]models.SeatAvailability, error)
}

type seatAllocator struct {
	seatRepo repositories.SeatRepository
}

func NewSeatAllocator(seatRepo repositories.SeatRepository) SeatAllocator {
	return &seatAllocator{seatRepo: seatRepo}
}

func (s *seatAllocator) Allocate(ctx context.Context, seatType models.SeatType, occupancy models.OccupancyType, claimant Claimant) (*models.Seat, error) {
	if claimant.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: claimant user id is required", ErrInputValidation)
	}
	switch seatType {
	case models.SeatTypeRegular, models.SeatTypeSpecial:
	default:
		return nil, fmt.Errorf("%w: unknown seat type %q", ErrInputValidation, seatType)
	}
	if occupancy == "" {
		occupancy = models.OccupancyFullDay
	}

	seat, err := s.seatRepo.ClaimAvailable(ctx, seatType, models.SeatClaim{
		UserID:    claimant.UserID,
		Name:      claimant.Name,
		Occupancy: occupancy,
	})
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNoSeatAvailable
	}
	if err != nil {
		return nil, err
	}
	return seat, nil
}

func (s *seatAllocator) Release(ctx context.Context, seatID uuid.UUID) error {
	return s.seatRepo.Release(ctx, seatID)
}

func (s *seatAllocator) ReleaseHeldBy(ctx context.Context, seatID, userID uuid.UUID) error {
	return s.seatRepo.ReleaseHeldBy(ctx, seatID, userID)
}

func (s *seatAllocator) Availability(ctx context.Context) (map[models.SeatType]models.SeatAvailability, error) {
	return s.seatRepo.Availability(ctx)
}
