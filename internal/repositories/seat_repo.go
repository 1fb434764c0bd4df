package repositories

import (
	"context"
	"errors"
	"fmt"

	"smartlibrary/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SeatRepository interface {
	ClaimAvailable(ctx context.Context, seatType models.SeatType, claim models.SeatClaim) (*models.Seat, error)
	Release(ctx context.Context, seatID uuid.UUID) error
	ReleaseHeldBy(ctx context.Context, seatID, userID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Seat, error)
	Availability(ctx context.Context) (map[models.SeatType]models.SeatAvailability, error)
}

type seatRepo struct {
	db DBTX
}

func NewSeatRepo(db DBTX) SeatRepository {
	return &seatRepo{db: db}
}

const seatColumns = `id, seat_number, type, occupied, occupied_by, occupancy_type, user_id, created_at, updated_at`

func scanSeat(row pgx.Row) (*models.Seat, error) {
	s := &models.Seat{}
	err := row.Scan(&s.ID, &s.SeatNumber, &s.Type, &s.Occupied, &s.OccupiedBy, &s.OccupancyType, &s.UserID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ClaimAvailable marks the lowest-numbered free seat of the given type as
// occupied in a single statement. Concurrent callers skip rows locked by
// each other, so no seat is handed out twice. ErrNotFound means the pool of
// that type is exhausted.
func (r *seatRepo) ClaimAvailable(ctx context.Context, seatType models.SeatType, claim models.SeatClaim) (*models.Seat, error) {
	query := `
		UPDATE seats
		SET occupied = TRUE, occupied_by = $2, occupancy_type = $3, user_id = $4, updated_at = NOW()
		WHERE id = (
			SELECT id FROM seats
			WHERE type = $1 AND occupied = FALSE
			ORDER BY seat_number
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND occupied = FALSE
		RETURNING ` + seatColumns
	seat, err := scanSeat(r.db.QueryRow(ctx, query, seatType, claim.Name, claim.Occupancy, claim.UserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim seat: %w", err)
	}
	return seat, nil
}

// Release returns a seat to the unoccupied baseline, clearing every occupant field at once.
func (r *seatRepo) Release(ctx context.Context, seatID uuid.UUID) error {
	query := `
		UPDATE seats
		SET occupied = FALSE, occupied_by = NULL, occupancy_type = NULL, user_id = NULL, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, seatID)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseHeldBy frees the seat only while userID still occupies it.
func (r *seatRepo) ReleaseHeldBy(ctx context.Context, seatID, userID uuid.UUID) error {
	query := `
		UPDATE seats
		SET occupied = FALSE, occupied_by = NULL, occupancy_type = NULL, user_id = NULL, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	tag, err := r.db.Exec(ctx, query, seatID, userID)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *seatRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Seat, error) {
	query := `SELECT ` + seatColumns + ` FROM seats WHERE id = $1`
	seat, err := scanSeat(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seat: %w", err)
	}
	return seat, nil
}

func (r *seatRepo) Availability(ctx context.Context) (map[models.SeatType]models.SeatAvailability, error) {
	query := `
		SELECT type, COUNT(*), COUNT(*) FILTER (WHERE occupied = FALSE)
		FROM seats
		GROUP BY type
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count seats: %w", err)
	}
	defer rows.Close()

	result := map[models.SeatType]models.SeatAvailability{
		models.SeatTypeRegular: {},
		models.SeatTypeSpecial: {},
	}
	for rows.Next() {
		var (
			seatType         models.SeatType
			total, available int
		)
		if err := rows.Scan(&seatType, &total, &available); err != nil {
			return nil, fmt.Errorf("failed to scan seat counts: %w", err)
		}
		result[seatType] = models.SeatAvailability{Total: total, Available: available}
	}
	return result, rows.Err()
}
