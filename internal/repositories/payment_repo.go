package repositories

import (
	"context"
	"errors"
	"fmt"

	"smartlibrary/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepository is append-only: there is deliberately no update or delete.
type PaymentRepository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, payment *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error)
}

type paymentRepo struct {
	db DBTX
}

func NewPaymentRepo(db DBTX) PaymentRepository {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, user_id, order_id, payment_id, signature, amount, currency, status, plan, duration, shift, seat_type, registration_included, locker_included, created_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.PaymentID, &p.Signature, &p.Amount, &p.Currency, &p.Status,
		&p.Plan, &p.Duration, &p.Shift, &p.SeatType, &p.RegistrationIncluded, &p.LockerIncluded, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepo) CreateTx(ctx context.Context, tx pgx.Tx, payment *models.Payment) error {
	query := `
		INSERT INTO payments (id, user_id, order_id, payment_id, signature, amount, currency, status, plan, duration, shift, seat_type, registration_included, locker_included, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query, payment.ID, payment.UserID, payment.OrderID, payment.PaymentID, payment.Signature,
		payment.Amount, payment.Currency, payment.Status, payment.Plan, payment.Duration, payment.Shift, payment.SeatType,
		payment.RegistrationIncluded, payment.LockerIncluded).Scan(&payment.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("failed to insert payment for user %s: %w", payment.UserID, ErrMissingReference)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// GetByGatewayRefs returns the earliest payment recorded for the order/payment pair.
func (r *paymentRepo) GetByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 AND payment_id = $2 ORDER BY created_at ASC LIMIT 1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, orderID, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by gateway refs: %w", err)
	}
	return p, nil
}

// ListByUser returns the user's payments, newest first.
func (r *paymentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*models.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}
