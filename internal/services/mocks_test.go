package services

import (
	"context"
	"io"
	"time"

	"smartlibrary/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

// Mock repositories

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) CreateTx(ctx context.Context, tx pgx.Tx, payment *models.Payment) error {
	args := m.Called(ctx, tx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Payment, error) {
	args := m.Called(ctx, orderID, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) CreateTx(ctx context.Context, tx pgx.Tx, subscription *models.Subscription) error {
	args := m.Called(ctx, tx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetByGatewayRefs(ctx context.Context, orderID, paymentID string) (*models.Subscription, error) {
	args := m.Called(ctx, orderID, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) AttachSeat(ctx context.Context, id uuid.UUID, seatID uuid.UUID, seatNumber string) error {
	args := m.Called(ctx, id, seatID, seatNumber)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) ExpireLapsed(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

type MockSeatRepository struct {
	mock.Mock
}

func (m *MockSeatRepository) ClaimAvailable(ctx context.Context, seatType models.SeatType, claim models.SeatClaim) (*models.Seat, error) {
	args := m.Called(ctx, seatType, claim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Seat), args.Error(1)
}

func (m *MockSeatRepository) Release(ctx context.Context, seatID uuid.UUID) error {
	args := m.Called(ctx, seatID)
	return args.Error(0)
}

func (m *MockSeatRepository) ReleaseHeldBy(ctx context.Context, seatID, userID uuid.UUID) error {
	args := m.Called(ctx, seatID, userID)
	return args.Error(0)
}

func (m *MockSeatRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Seat, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Seat), args.Error(1)
}

func (m *MockSeatRepository) Availability(ctx context.Context) (map[models.SeatType]models.SeatAvailability, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.SeatType]models.SeatAvailability), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) SetCurrentSubscriptionTx(ctx context.Context, tx pgx.Tx, userID, subscriptionID uuid.UUID) error {
	args := m.Called(ctx, tx, userID, subscriptionID)
	return args.Error(0)
}

// fakeTransactor runs fn with a nil transaction and records the outcome.
type fakeTransactor struct {
	beginErr   error
	committed  int
	rolledBack int
}

func (f *fakeTransactor) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	if err := fn(nil); err != nil {
		f.rolledBack++
		return err
	}
	f.committed++
	return nil
}

// Mock services

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetPaymentHistory(ctx context.Context, userID uuid.UUID) ([]*models.Payment, int64, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Payment), args.Get(1).(int64), args.Error(2)
}

func (m *MockCacheService) SetPaymentHistory(ctx context.Context, userID uuid.UUID, version int64, payments []*models.Payment, ttl time.Duration) error {
	args := m.Called(ctx, userID, version, payments, ttl)
	return args.Error(0)
}

func (m *MockCacheService) DeletePaymentHistory(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCacheService) AcquireVerifyLock(ctx context.Context, orderID, paymentID string, ttl time.Duration) (func(), bool, error) {
	args := m.Called(ctx, orderID, paymentID, ttl)
	var release func()
	if fn, ok := args.Get(0).(func()); ok {
		release = fn
	}
	return release, args.Bool(1), args.Error(2)
}

func (m *MockCacheService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreateOrder(ctx context.Context, plan string, amount float64) (*models.Order, error) {
	args := m.Called(ctx, plan, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockPaymentGateway) FetchOrder(ctx context.Context, orderID string) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type MockSeatAllocator struct {
	mock.Mock
}

func (m *MockSeatAllocator) Allocate(ctx context.Context, seatType models.SeatType, occupancy models.OccupancyType, claimant Claimant) (*models.Seat, error) {
	args := m.Called(ctx, seatType, occupancy, claimant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Seat), args.Error(1)
}

func (m *MockSeatAllocator) Release(ctx context.Context, seatID uuid.UUID) error {
	args := m.Called(ctx, seatID)
	return args.Error(0)
}

func (m *MockSeatAllocator) ReleaseHeldBy(ctx context.Context, seatID, userID uuid.UUID) error {
	args := m.Called(ctx, seatID, userID)
	return args.Error(0)
}

func (m *MockSeatAllocator) Availability(ctx context.Context) (map[models.SeatType]models.SeatAvailability, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.SeatType]models.SeatAvailability), args.Error(1)
}

type MockReceiptScheduler struct {
	mock.Mock
}

func (m *MockReceiptScheduler) EnqueueReceipt(ctx context.Context, paymentID uuid.UUID) error {
	args := m.Called(ctx, paymentID)
	return args.Error(0)
}

type MockMinioService struct {
	mock.Mock
}

func (m *MockMinioService) UploadObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) error {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, contentType)
	return args.Error(0)
}

func (m *MockMinioService) GetPresignedURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, bucketName, objectName, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockMinioService) ObjectExists(ctx context.Context, bucketName, objectName string) (bool, error) {
	args := m.Called(ctx, bucketName, objectName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinioService) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinioService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	args := m.Called(ctx, bucketName)
	return args.Error(0)
}
