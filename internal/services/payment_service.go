package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"smartlibrary/internal/caching"
	"smartlibrary/internal/models"
	"smartlibrary/internal/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecordPaymentInput carries the ledger fields for one accepted payment.
// Amount is in major units and must come from the gateway's order, never the client.
type RecordPaymentInput struct {
	UserID               uuid.UUID
	OrderID              string
	PaymentID            string
	Signature            string
	Amount               float64
	Currency             string
	Plan                 string
	Duration             string
	Shift                string
	SeatType             string
	RegistrationIncluded bool
	LockerIncluded       bool
}

// PaymentService maintains the append-only payment ledger.
type PaymentService interface {
	Record(ctx context.Context, tx pgx.Tx, input RecordPaymentInput) (*models.Payment, error)
	FindByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Payment, error)
	GetForUser(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, error)
	History(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error)
	InvalidateHistory(ctx context.Context, userID uuid.UUID) error
}

type paymentService struct {
	paymentRepo repositories.PaymentRepository
	cache       caching.CacheService
	historyTTL  time.Duration
}

func NewPaymentService(paymentRepo repositories.PaymentRepository, cache caching.CacheService, historyTTL time.Duration) PaymentService {
	return &paymentService{
		paymentRepo: paymentRepo,
		cache:       cache,
		historyTTL:  historyTTL,
	}
}

func (s *paymentService) Record(ctx context.Context, tx pgx.Tx, input RecordPaymentInput) (*models.Payment, error) {
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInputValidation)
	}
	if input.OrderID == "" || input.PaymentID == "" || input.Signature == "" {
		return nil, fmt.Errorf("%w: order id, payment id and signature are required", ErrInputValidation)
	}
	if math.IsNaN(input.Amount) || input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInputValidation)
	}

	currency := input.Currency
	if currency == "" {
		currency = "INR"
	}

	payment := &models.Payment{
		ID:                   uuid.New(),
		UserID:               input.UserID,
		OrderID:              input.OrderID,
		PaymentID:            input.PaymentID,
		Signature:            input.Signature,
		Amount:               input.Amount,
		Currency:             strings.ToUpper(currency),
		Status:               models.PaymentStatusSuccess,
		Plan:                 input.Plan,
		Duration:             input.Duration,
		Shift:                input.Shift,
		SeatType:             input.SeatType,
		RegistrationIncluded: input.RegistrationIncluded,
		LockerIncluded:       input.LockerIncluded,
	}

	if err := s.paymentRepo.CreateTx(ctx, tx, payment); err != nil {
		if errors.Is(err, repositories.ErrMissingReference) {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return payment, nil
}

// FindByGatewayRefs returns the first payment recorded for the pair, or nil when none exists.
func (s *paymentService) FindByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByGatewayRefs(ctx, orderID, paymentID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return payment, nil
}

// GetForUser returns the payment only when it belongs to userID.
func (s *paymentService) GetForUser(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if payment.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// History lists the user's payments newest first, served from cache when possible.
func (s *paymentService) History(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	// The version must be read before the store so that an invalidation racing
	// with this read retires whatever we write below.
	cacheable := s.cache != nil
	var version int64
	if cacheable {
		cached, v, err := s.cache.GetPaymentHistory(ctx, userID)
		if err != nil {
			log.Printf("WARN: payment history cache read failed for user %s: %v", userID, err)
			cacheable = false
		} else if cached != nil {
			return cached, nil
		}
		version = v
	}

	payments, err := s.paymentRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if cacheable {
		if err := s.cache.SetPaymentHistory(ctx, userID, version, payments, s.historyTTL); err != nil {
			log.Printf("WARN: payment history cache write failed for user %s: %v", userID, err)
		}
	}
	return payments, nil
}

func (s *paymentService) InvalidateHistory(ctx context.Context, userID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeletePaymentHistory(ctx, userID)
}
