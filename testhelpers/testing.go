package testhelpers

import (
	"context"
	"fmt"
	"os"
	"testing"

	"smartlibrary/internal/migrations"
	"smartlibrary/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func() error
}

// SetupTestDB connects to TEST_DATABASE_URL and migrates it. Tests are skipped
// when the variable is unset so the unit suite runs without Postgres.
func SetupTestDB(t *testing.T, connString string) *TestDB {
	t.Helper()

	if connString == "" {
		connString = os.Getenv("TEST_DATABASE_URL")
	}
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database test")
	}

	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := migrations.Up(pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &TestDB{
		Pool: pool,
		Cleanup: func() error {
			pool.Close()
			return nil
		},
	}
}

// SetupTestUser inserts a user row and returns it.
func SetupTestUser(t *testing.T, db *TestDB, name string) *models.User {
	t.Helper()

	user := &models.User{
		ID:    uuid.New(),
		Name:  name,
		Email: fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
	}
	query := `INSERT INTO users (id, name, email) VALUES ($1, $2, $3) RETURNING created_at, updated_at`
	if err := db.Pool.QueryRow(context.Background(), query, user.ID, user.Name, user.Email).Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// SetupTestSeats provisions count free seats of the given type with unique
// numbers and returns their ids.
func SetupTestSeats(t *testing.T, db *TestDB, seatType models.SeatType, count int) []uuid.UUID {
	t.Helper()

	prefix := uuid.NewString()[:8]
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		query := `INSERT INTO seats (id, seat_number, type) VALUES ($1, $2, $3)`
		if _, err := db.Pool.Exec(context.Background(), query, id, fmt.Sprintf("%s-%02d", prefix, i+1), seatType); err != nil {
			t.Fatalf("Failed to create test seat: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

// OccupyAllSeats marks every free seat as taken so a test starts from an exhausted pool.
func OccupyAllSeats(t *testing.T, db *TestDB, seatType models.SeatType, occupant uuid.UUID) {
	t.Helper()

	query := `
		UPDATE seats SET occupied = TRUE, occupied_by = 'fixture', occupancy_type = 'FULL_DAY', user_id = $2
		WHERE type = $1 AND occupied = FALSE
	`
	if _, err := db.Pool.Exec(context.Background(), query, seatType, occupant); err != nil {
		t.Fatalf("Failed to occupy seats: %v", err)
	}
}
