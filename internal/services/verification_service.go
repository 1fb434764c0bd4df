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

// VerificationState is a step of the payment verification pipeline.
type VerificationState string

const (
	StateReceived              VerificationState = "RECEIVED"
	StateInputValidated        VerificationState = "INPUT_VALIDATED"
	StateSignatureChecked      VerificationState = "SIGNATURE_CHECKED"
	StateOrderFetched          VerificationState = "ORDER_FETCHED"
	StatePaymentRecorded       VerificationState = "PAYMENT_RECORDED"
	StateSubscriptionActivated VerificationState = "SUBSCRIPTION_ACTIVATED"
	StateSeatAttempted         VerificationState = "SEAT_ALLOCATION_ATTEMPTED"
	StateComplete              VerificationState = "COMPLETE"

	StateRejectedBadInput        VerificationState = "REJECTED_BAD_INPUT"
	StateRejectedBadSignature    VerificationState = "REJECTED_BAD_SIGNATURE"
	StateRejectedOrderFetch      VerificationState = "REJECTED_ORDER_FETCH_FAILED"
	StateRejectedUnauthenticated VerificationState = "REJECTED_UNAUTHENTICATED"
	StateRejectedInProgress      VerificationState = "REJECTED_IN_PROGRESS"
	StateFailedPersistence       VerificationState = "FAILED_PERSISTENCE"
)

// SeatOutcome reports what happened to the optional seat claim. It never
// affects whether the verification itself succeeded.
type SeatOutcome string

const (
	SeatAllocated   SeatOutcome = "ALLOCATED"
	SeatUnavailable SeatOutcome = "UNAVAILABLE"
	SeatSkipped     SeatOutcome = "SKIPPED"
	SeatFailed      SeatOutcome = "FAILED"
)

// VerificationError is returned for every rejected or failed verification.
// State is the terminal state the pipeline stopped in.
type VerificationError struct {
	State VerificationState
	Err   error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment verification %s: %v", strings.ToLower(string(e.State)), e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// VerifyRequest is a client's proof of payment plus the purchase details.
// ClientAmount is informational only; the recorded amount comes from the gateway.
type VerifyRequest struct {
	UserID               uuid.UUID
	OrderID              string
	PaymentID            string
	Signature            string
	Plan                 string
	Duration             string
	Shift                string
	SeatType             string
	ClientAmount         float64
	RegistrationIncluded bool
	LockerIncluded       bool
}

type SeatResult struct {
	Status SeatOutcome  `json:"status"`
	Seat   *models.Seat `json:"seat,omitempty"`
}

type VerificationResult struct {
	State        VerificationState
	Payment      *models.Payment
	Subscription *models.Subscription
	Seat         SeatResult
	Duplicate    bool
}

// ReceiptScheduler queues receipt generation for a recorded payment.
type ReceiptScheduler interface {
	EnqueueReceipt(ctx context.Context, paymentID uuid.UUID) error
}

type VerificationOptions struct {
	// Dedupe makes a repeated (order, payment) verification return the
	// existing records instead of appending new ones.
	Dedupe  bool
	LockTTL time.Duration
}

// VerificationDependencies groups the collaborators of the orchestrator.
type VerificationDependencies struct {
	Verifier      SignatureVerifier
	Gateway       PaymentGateway
	Transactor    repositories.Transactor
	Payments      PaymentService
	Subscriptions SubscriptionService
	Seats         SeatAllocator
	Users         repositories.UserRepository
	Cache         caching.CacheService
	Receipts      ReceiptScheduler
}

type VerificationService interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error)
}

type verificationService struct {
	deps VerificationDependencies
	opts VerificationOptions
}

func NewVerificationService(deps VerificationDependencies, opts VerificationOptions) VerificationService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &verificationService{deps: deps, opts: opts}
}

func reject(state VerificationState, err error) error {
	return &VerificationError{State: state, Err: err}
}

// Verify turns a payment proof into a ledger entry, an active subscription and,
// when a seat type was requested, a seat. The payment, subscription and user
// pointer are written in one transaction; the seat claim runs after commit and
// its failure is reported in the result rather than as an error.
func (s *verificationService) Verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	if req.UserID == uuid.Nil {
		return nil, reject(StateRejectedUnauthenticated, ErrUnauthenticated)
	}

	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	req.Signature = strings.TrimSpace(req.Signature)
	req.Plan = strings.TrimSpace(req.Plan)
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" || req.Plan == "" {
		return nil, reject(StateRejectedBadInput,
			fmt.Errorf("%w: missing required fields: orderId, paymentId, signature, plan", ErrInputValidation))
	}

	if !s.deps.Verifier.Verify(req.OrderID, req.PaymentID, req.Signature) {
		log.Printf("WARN: signature mismatch for order %s payment %s", req.OrderID, req.PaymentID)
		return nil, reject(StateRejectedBadSignature, ErrSignatureInvalid)
	}

	if s.opts.Dedupe {
		release, err := s.lock(ctx, req)
		if err != nil {
			return nil, err
		}
		defer release()

		existing, err := s.findExisting(ctx, req)
		if errors.Is(err, ErrInputValidation) {
			return nil, reject(StateRejectedBadInput, err)
		}
		if err != nil {
			return nil, reject(StateFailedPersistence, err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	order, err := s.deps.Gateway.FetchOrder(ctx, req.OrderID)
	if err != nil {
		log.Printf("WARN: order fetch failed for order %s: %v", req.OrderID, err)
		if !errors.Is(err, ErrOrderFetchFailed) {
			err = fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
		}
		return nil, reject(StateRejectedOrderFetch, err)
	}
	if order.ID != req.OrderID || order.Amount <= 0 {
		return nil, reject(StateRejectedOrderFetch,
			fmt.Errorf("%w: gateway returned order %q with amount %d", ErrOrderFetchFailed, order.ID, order.Amount))
	}

	amount := order.MajorAmount()
	if req.ClientAmount > 0 && math.Abs(req.ClientAmount-amount) >= 0.01 {
		log.Printf("DEBUG: client amount %.2f differs from gateway amount %.2f for order %s; using gateway amount",
			req.ClientAmount, amount, req.OrderID)
	}

	var (
		payment      *models.Payment
		subscription *models.Subscription
	)
	err = s.deps.Transactor.WithinTx(ctx, func(tx pgx.Tx) error {
		var err error
		payment, err = s.deps.Payments.Record(ctx, tx, RecordPaymentInput{
			UserID:               req.UserID,
			OrderID:              req.OrderID,
			PaymentID:            req.PaymentID,
			Signature:            req.Signature,
			Amount:               amount,
			Currency:             order.Currency,
			Plan:                 req.Plan,
			Duration:             req.Duration,
			Shift:                req.Shift,
			SeatType:             req.SeatType,
			RegistrationIncluded: req.RegistrationIncluded,
			LockerIncluded:       req.LockerIncluded,
		})
		if err != nil {
			return err
		}

		subscription, err = s.deps.Subscriptions.Activate(ctx, tx, ActivateInput{
			UserID:     req.UserID,
			Plan:       req.Plan,
			Duration:   req.Duration,
			Shift:      req.Shift,
			SeatType:   req.SeatType,
			OrderID:    req.OrderID,
			PaymentID:  req.PaymentID,
			Signature:  req.Signature,
			AmountPaid: amount,
		})
		return err
	})
	if err != nil {
		log.Printf("WARN: persisting verified payment for order %s failed: %v", req.OrderID, err)
		if !errors.Is(err, ErrPersistence) {
			err = fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return nil, reject(StateFailedPersistence, err)
	}

	// The payment is final from here on; a client disconnect must not abort
	// the seat claim halfway.
	postCommit := context.WithoutCancel(ctx)

	seat := s.allocateSeat(postCommit, req, subscription)
	s.afterCommit(postCommit, req.UserID, payment)

	return &VerificationResult{
		State:        StateComplete,
		Payment:      payment,
		Subscription: subscription,
		Seat:         seat,
	}, nil
}

func (s *verificationService) lock(ctx context.Context, req VerifyRequest) (func(), error) {
	noop := func() {}
	if s.deps.Cache == nil {
		return noop, nil
	}
	release, acquired, err := s.deps.Cache.AcquireVerifyLock(ctx, req.OrderID, req.PaymentID, s.opts.LockTTL)
	if err != nil {
		log.Printf("WARN: verify lock unavailable for order %s, continuing without it: %v", req.OrderID, err)
		return noop, nil
	}
	if !acquired {
		return nil, reject(StateRejectedInProgress, ErrVerificationInProgress)
	}
	return release, nil
}

func (s *verificationService) findExisting(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	payment, err := s.deps.Payments.FindByGatewayRefs(ctx, req.OrderID, req.PaymentID)
	if err != nil || payment == nil {
		return nil, err
	}
	if payment.UserID != req.UserID {
		return nil, fmt.Errorf("%w: payment already recorded for another user", ErrInputValidation)
	}

	subscription, err := s.deps.Subscriptions.FindByGatewayRefs(ctx, req.OrderID, req.PaymentID)
	if err != nil {
		return nil, err
	}

	seat := SeatResult{Status: SeatSkipped}
	if subscription != nil && subscription.SeatID != nil {
		seat.Status = SeatAllocated
	}
	return &VerificationResult{
		State:        StateComplete,
		Payment:      payment,
		Subscription: subscription,
		Seat:         seat,
		Duplicate:    true,
	}, nil
}

func (s *verificationService) allocateSeat(ctx context.Context, req VerifyRequest, subscription *models.Subscription) SeatResult {
	seatType, ok := models.ParseSeatType(req.SeatType)
	if !ok {
		return SeatResult{Status: SeatSkipped}
	}

	claimant := Claimant{UserID: req.UserID}
	if user, err := s.deps.Users.GetByID(ctx, req.UserID); err != nil {
		log.Printf("WARN: could not load user %s for seat claim: %v", req.UserID, err)
	} else {
		claimant.Name = user.Name
	}

	seat, err := s.deps.Seats.Allocate(ctx, seatType, models.OccupancyForShift(req.Shift), claimant)
	if errors.Is(err, ErrNoSeatAvailable) {
		log.Printf("WARN: no %s seat available for order %s", seatType, req.OrderID)
		return SeatResult{Status: SeatUnavailable}
	}
	if err != nil {
		log.Printf("WARN: seat allocation failed for order %s: %v", req.OrderID, err)
		return SeatResult{Status: SeatFailed}
	}

	if err := s.deps.Subscriptions.AttachSeat(ctx, subscription.ID, seat); err != nil {
		log.Printf("WARN: attaching seat %s to subscription %s failed, releasing it: %v", seat.SeatNumber, subscription.ID, err)
		if relErr := s.deps.Seats.Release(ctx, seat.ID); relErr != nil {
			log.Printf("WARN: compensating release of seat %s failed: %v", seat.ID, relErr)
		}
		return SeatResult{Status: SeatFailed}
	}

	subscription.SeatID = &seat.ID
	subscription.SeatNumber = &seat.SeatNumber
	return SeatResult{Status: SeatAllocated, Seat: seat}
}

func (s *verificationService) afterCommit(ctx context.Context, userID uuid.UUID, payment *models.Payment) {
	if err := s.deps.Payments.InvalidateHistory(ctx, userID); err != nil {
		log.Printf("WARN: failed to invalidate payment history for user %s: %v", userID, err)
	}
	if s.deps.Receipts == nil {
		return
	}
	if err := s.deps.Receipts.EnqueueReceipt(ctx, payment.ID); err != nil {
		log.Printf("WARN: failed to enqueue receipt for payment %s: %v", payment.ID, err)
	}
}
