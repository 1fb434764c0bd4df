package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartlibrary/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, subscription *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Subscription, error)
	AttachSeat(ctx context.Context, id uuid.UUID, seatID uuid.UUID, seatNumber string) error
	ExpireLapsed(ctx context.Context, now time.Time) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	db DBTX
}

func NewSubscriptionRepo(db DBTX) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

const subscriptionColumns = `id, user_id, plan, status, start_date, expiry_date, razorpay_order_id, razorpay_payment_id, razorpay_signature, duration, shift, seat_type, amount_paid, seat_number, seat_id, created_at, updated_at`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(&s.ID, &s.UserID, &s.Plan, &s.Status, &s.StartDate, &s.ExpiryDate, &s.RazorpayOrderID,
		&s.RazorpayPaymentID, &s.RazorpaySignature, &s.Duration, &s.Shift, &s.SeatType, &s.AmountPaid,
		&s.SeatNumber, &s.SeatID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *subscriptionRepo) CreateTx(ctx context.Context, tx pgx.Tx, subscription *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, plan, status, start_date, expiry_date, razorpay_order_id, razorpay_payment_id, razorpay_signature, duration, shift, seat_type, amount_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := tx.QueryRow(ctx, query, subscription.ID, subscription.UserID, subscription.Plan, subscription.Status,
		subscription.StartDate, subscription.ExpiryDate, subscription.RazorpayOrderID, subscription.RazorpayPaymentID,
		subscription.RazorpaySignature, subscription.Duration, subscription.Shift, subscription.SeatType,
		subscription.AmountPaid).Scan(&subscription.CreatedAt, &subscription.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

func (r *subscriptionRepo) GetByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE razorpay_order_id = $1 AND razorpay_payment_id = $2 ORDER BY created_at ASC LIMIT 1`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, orderID, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by gateway refs: %w", err)
	}
	return s, nil
}

func (r *subscriptionRepo) AttachSeat(ctx context.Context, id uuid.UUID, seatID uuid.UUID, seatNumber string) error {
	query := `UPDATE subscriptions SET seat_id = $1, seat_number = $2, updated_at = NOW() WHERE id = $3`
	tag, err := r.db.Exec(ctx, query, seatID, seatNumber, id)
	if err != nil {
		return fmt.Errorf("failed to attach seat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireLapsed flips every Active subscription whose expiry is at or before now
// to Expired and returns the affected rows.
func (r *subscriptionRepo) ExpireLapsed(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	query := `
		UPDATE subscriptions SET status = $1, updated_at = NOW()
		WHERE status = $2 AND expiry_date <= $3
		RETURNING ` + subscriptionColumns
	rows, err := r.db.Query(ctx, query, models.SubscriptionStatusExpired, models.SubscriptionStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	defer rows.Close()

	var expired []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		expired = append(expired, s)
	}
	return expired, rows.Err()
}
