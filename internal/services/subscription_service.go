package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"smartlibrary/internal/models"
	"smartlibrary/internal/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ActivateInput describes the entitlement bought by one verified payment.
type ActivateInput struct {
	UserID     uuid.UUID
	Plan       string
	Duration   string
	Shift      string
	SeatType   string
	OrderID    string
	PaymentID  string
	Signature  string
	AmountPaid float64
}

// SubscriptionService handles subscription lifecycle business logic
type SubscriptionService interface {
	Activate(ctx context.Context, tx pgx.Tx, input ActivateInput) (*models.Subscription, error)
	AttachSeat(ctx context.Context, subscriptionID uuid.UUID, seat *models.Seat) error
	FindByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Subscription, error)
	ExpireLapsed(ctx context.Context, now time.Time) (int, error)
}

type subscriptionService struct {
	subscriptionRepo repositories.SubscriptionRepository
	userRepo         repositories.UserRepository
	seats            SeatAllocator
	now              func() time.Time
}

func NewSubscriptionService(subscriptionRepo repositories.SubscriptionRepository, userRepo repositories.UserRepository, seats SeatAllocator) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		userRepo:         userRepo,
		seats:            seats,
		now:              time.Now,
	}
}

// Activate inserts an Active subscription starting now and points the user's
// current subscription at it. Both writes go through tx.
func (s *subscriptionService) Activate(ctx context.Context, tx pgx.Tx, input ActivateInput) (*models.Subscription, error) {
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInputValidation)
	}
	if input.Plan == "" {
		return nil, fmt.Errorf("%w: plan is required", ErrInputValidation)
	}

	start := s.now()
	subscription := &models.Subscription{
		ID:                uuid.New(),
		UserID:            input.UserID,
		Plan:              input.Plan,
		Status:            models.SubscriptionStatusActive,
		StartDate:         start,
		ExpiryDate:        CalculateExpiryDate(input.Duration, start),
		RazorpayOrderID:   input.OrderID,
		RazorpayPaymentID: input.PaymentID,
		RazorpaySignature: input.Signature,
		Duration:          input.Duration,
		Shift:             input.Shift,
		SeatType:          input.SeatType,
		AmountPaid:        input.AmountPaid,
	}

	if err := s.subscriptionRepo.CreateTx(ctx, tx, subscription); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := s.userRepo.SetCurrentSubscriptionTx(ctx, tx, input.UserID, subscription.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return subscription, nil
}

// AttachSeat records the allocated seat on the subscription.
func (s *subscriptionService) AttachSeat(ctx context.Context, subscriptionID uuid.UUID, seat *models.Seat) error {
	if seat == nil {
		return fmt.Errorf("%w: seat is required", ErrInputValidation)
	}
	if err := s.subscriptionRepo.AttachSeat(ctx, subscriptionID, seat.ID, seat.SeatNumber); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *subscriptionService) FindByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Subscription, error) {
	subscription, err := s.subscriptionRepo.GetByGatewayRefs(ctx, orderID, paymentID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return subscription, nil
}

// ExpireLapsed marks subscriptions past their expiry as Expired and frees the
// seats they held. It returns how many subscriptions were expired.
func (s *subscriptionService) ExpireLapsed(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.subscriptionRepo.ExpireLapsed(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	for _, sub := range expired {
		if sub.SeatID == nil {
			continue
		}
		if err := s.seats.ReleaseHeldBy(ctx, *sub.SeatID, sub.UserID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			log.Printf("WARN: failed to release seat %s of expired subscription %s: %v", sub.SeatID, sub.ID, err)
		}
	}
	return len(expired), nil
}
