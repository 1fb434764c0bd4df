package repositories

import (
	"context"
	"errors"
	"fmt"

	"smartlibrary/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository only reads profile data and maintains the current
// subscription pointer. Accounts themselves are managed elsewhere.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetCurrentSubscriptionTx(ctx context.Context, tx pgx.Tx, userID, subscriptionID uuid.UUID) error
}

type userRepo struct {
	db DBTX
}

func NewUserRepo(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, name, email, current_subscription_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Name, &user.Email, &user.CurrentSubscriptionID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// SetCurrentSubscriptionTx overwrites the user's pointer; the last writer wins.
func (r *userRepo) SetCurrentSubscriptionTx(ctx context.Context, tx pgx.Tx, userID, subscriptionID uuid.UUID) error {
	query := `UPDATE users SET current_subscription_id = $1, updated_at = NOW() WHERE id = $2`
	tag, err := tx.Exec(ctx, query, subscriptionID, userID)
	if err != nil {
		return fmt.Errorf("failed to update current subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
