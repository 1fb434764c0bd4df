package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"smartlibrary/internal/models"
	"smartlibrary/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type VerificationServiceTestSuite struct {
	suite.Suite
	gateway     *MockPaymentGateway
	paymentRepo *MockPaymentRepository
	subRepo     *MockSubscriptionRepository
	userRepo    *MockUserRepository
	seats       *MockSeatAllocator
	cache       *MockCacheService
	receipts    *MockReceiptScheduler
	transactor  *fakeTransactor
	userID      uuid.UUID
	ctx         context.Context
}

func (suite *VerificationServiceTestSuite) SetupTest() {
	suite.gateway = new(MockPaymentGateway)
	suite.paymentRepo = new(MockPaymentRepository)
	suite.subRepo = new(MockSubscriptionRepository)
	suite.userRepo = new(MockUserRepository)
	suite.seats = new(MockSeatAllocator)
	suite.cache = new(MockCacheService)
	suite.receipts = new(MockReceiptScheduler)
	suite.transactor = &fakeTransactor{}
	suite.userID = uuid.New()
	suite.ctx = context.Background()
}

func (suite *VerificationServiceTestSuite) TearDownTest() {
	suite.gateway.AssertExpectations(suite.T())
	suite.paymentRepo.AssertExpectations(suite.T())
	suite.subRepo.AssertExpectations(suite.T())
	suite.userRepo.AssertExpectations(suite.T())
	suite.seats.AssertExpectations(suite.T())
	suite.cache.AssertExpectations(suite.T())
	suite.receipts.AssertExpectations(suite.T())
}

func TestVerificationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(VerificationServiceTestSuite))
}

func (suite *VerificationServiceTestSuite) newService(opts VerificationOptions) VerificationService {
	payments := NewPaymentService(suite.paymentRepo, suite.cache, time.Minute)
	subscriptions := NewSubscriptionService(suite.subRepo, suite.userRepo, suite.seats)
	return NewVerificationService(VerificationDependencies{
		Verifier:      NewSignatureVerifier(testSecret, false),
		Gateway:       suite.gateway,
		Transactor:    suite.transactor,
		Payments:      payments,
		Subscriptions: subscriptions,
		Seats:         suite.seats,
		Users:         suite.userRepo,
		Cache:         suite.cache,
		Receipts:      suite.receipts,
	}, opts)
}

func (suite *VerificationServiceTestSuite) request(seatType string) VerifyRequest {
	return VerifyRequest{
		UserID:       suite.userID,
		OrderID:      "order_ABC",
		PaymentID:    "pay_XYZ",
		Signature:    Sign(testSecret, "order_ABC", "pay_XYZ"),
		Plan:         "Premium",
		Duration:     "3 Months",
		Shift:        "Morning",
		SeatType:     seatType,
		ClientAmount: 1,
	}
}

func (suite *VerificationServiceTestSuite) expectFetch(amount int64) {
	suite.gateway.On("FetchOrder", suite.ctx, "order_ABC").
		Return(&models.Order{ID: "order_ABC", Amount: amount, Currency: "INR", Status: "paid"}, nil)
}

func (suite *VerificationServiceTestSuite) expectPersist() {
	suite.paymentRepo.On("CreateTx", suite.ctx, nil, mock.AnythingOfType("*models.Payment")).Return(nil)
	suite.subRepo.On("CreateTx", suite.ctx, nil, mock.AnythingOfType("*models.Subscription")).Return(nil)
	suite.userRepo.On("SetCurrentSubscriptionTx", suite.ctx, nil, suite.userID, mock.AnythingOfType("uuid.UUID")).Return(nil)
}

func (suite *VerificationServiceTestSuite) expectAfterCommit() {
	suite.cache.On("DeletePaymentHistory", mock.Anything, suite.userID).Return(nil)
	suite.receipts.On("EnqueueReceipt", mock.Anything, mock.AnythingOfType("uuid.UUID")).Return(nil)
}

func stateOf(err error) VerificationState {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.State
	}
	return ""
}

func (suite *VerificationServiceTestSuite) TestVerify_HappyPathWithSeat() {
	seat := &models.Seat{ID: uuid.New(), SeatNumber: "R-03", Type: models.SeatTypeRegular, Occupied: true}

	suite.expectFetch(50000)
	suite.expectPersist()
	suite.userRepo.On("GetByID", mock.Anything, suite.userID).Return(&models.User{ID: suite.userID, Name: "Asha"}, nil)
	suite.seats.On("Allocate", mock.Anything, models.SeatTypeRegular, models.OccupancyMorning,
		Claimant{UserID: suite.userID, Name: "Asha"}).Return(seat, nil)
	suite.subRepo.On("AttachSeat", mock.Anything, mock.AnythingOfType("uuid.UUID"), seat.ID, "R-03").Return(nil)
	suite.expectAfterCommit()

	result, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request("regular"))
	suite.Require().NoError(err)

	suite.Equal(StateComplete, result.State)
	suite.False(result.Duplicate)
	suite.Equal(500.0, result.Payment.Amount, "amount comes from the gateway order, not the client")
	suite.Equal(500.0, result.Subscription.AmountPaid)
	suite.Equal(models.PaymentStatusSuccess, result.Payment.Status)
	suite.Equal(SeatAllocated, result.Seat.Status)
	suite.Equal(seat, result.Seat.Seat)
	suite.Equal(seat.ID, *result.Subscription.SeatID)
	suite.Equal("R-03", *result.Subscription.SeatNumber)
	suite.Equal(1, suite.transactor.committed)
}

func (suite *VerificationServiceTestSuite) TestVerify_NoSeatRequested() {
	for _, seatType := range []string{"NONE", "", "vip"} {
		suite.SetupTest()
		suite.expectFetch(50000)
		suite.expectPersist()
		suite.expectAfterCommit()

		result, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request(seatType))
		suite.Require().NoError(err)
		suite.Equal(SeatSkipped, result.Seat.Status)
		suite.Nil(result.Seat.Seat)
		suite.seats.AssertNotCalled(suite.T(), "Allocate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		suite.TearDownTest()
	}
}

func (suite *VerificationServiceTestSuite) TestVerify_SeatUnavailableStillSucceeds() {
	suite.expectFetch(50000)
	suite.expectPersist()
	suite.userRepo.On("GetByID", mock.Anything, suite.userID).Return(&models.User{ID: suite.userID, Name: "Asha"}, nil)
	suite.seats.On("Allocate", mock.Anything, models.SeatTypeSpecial, models.OccupancyMorning, mock.Anything).
		Return(nil, ErrNoSeatAvailable)
	suite.expectAfterCommit()

	result, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request("SPECIAL"))
	suite.Require().NoError(err)
	suite.Equal(SeatUnavailable, result.Seat.Status)
	suite.NotNil(result.Payment)
	suite.NotNil(result.Subscription)
	suite.Nil(result.Subscription.SeatID)
}

func (suite *VerificationServiceTestSuite) TestVerify_SeatStoreErrorReportedAsFailed() {
	suite.expectFetch(50000)
	suite.expectPersist()
	suite.userRepo.On("GetByID", mock.Anything, suite.userID).Return(nil, errors.New("lookup failed"))
	suite.seats.On("Allocate", mock.Anything, models.SeatTypeRegular, models.OccupancyMorning, Claimant{UserID: suite.userID}).
		Return(nil, errors.New("connection reset"))
	suite.expectAfterCommit()

	result, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request("REGULAR"))
	suite.Require().NoError(err)
	suite.Equal(SeatFailed, result.Seat.Status)
}

func (suite *VerificationServiceTestSuite) TestVerify_AttachFailureReleasesSeat() {
	seat := &models.Seat{ID: uuid.New(), SeatNumber: "R-01"}

	suite.expectFetch(50000)
	suite.expectPersist()
	suite.userRepo.On("GetByID", mock.Anything, suite.userID).Return(&models.User{ID: suite.userID, Name: "Asha"}, nil)
	suite.seats.On("Allocate", mock.Anything, models.SeatTypeRegular, models.OccupancyMorning, mock.Anything).Return(seat, nil)
	suite.subRepo.On("AttachSeat", mock.Anything, mock.Anything, seat.ID, "R-01").Return(errors.New("timeout"))
	suite.seats.On("Release", mock.Anything, seat.ID).Return(nil)
	suite.expectAfterCommit()

	result, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request("REGULAR"))
	suite.Require().NoError(err)
	suite.Equal(SeatFailed, result.Seat.Status)
	suite.Nil(result.Subscription.SeatID)
}

func (suite *VerificationServiceTestSuite) TestVerify_PostCommitSurvivesCancelledRequest() {
	ctx, cancel := context.WithCancel(context.Background())
	seat := &models.Seat{ID: uuid.New(), SeatNumber: "R-02"}

	suite.gateway.On("FetchOrder", ctx, "order_ABC").Return(&models.Order{ID: "order_ABC", Amount: 50000}, nil)
	suite.paymentRepo.On("CreateTx", ctx, nil, mock.Anything).Return(nil)
	suite.subRepo.On("CreateTx", ctx, nil, mock.Anything).Return(nil)
	suite.userRepo.On("SetCurrentSubscriptionTx", ctx, nil, suite.userID, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).Return(nil)
	suite.userRepo.On("GetByID", mock.Anything, suite.userID).Return(&models.User{Name: "Asha"}, nil)
	suite.seats.On("Allocate", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }),
		models.SeatTypeRegular, models.OccupancyMorning, mock.Anything).Return(seat, nil)
	suite.subRepo.On("AttachSeat", mock.Anything, mock.Anything, seat.ID, "R-02").Return(nil)
	suite.expectAfterCommit()

	result, err := suite.newService(VerificationOptions{}).Verify(ctx, suite.request("REGULAR"))
	suite.Require().NoError(err)
	suite.Equal(SeatAllocated, result.Seat.Status)
}

func (suite *VerificationServiceTestSuite) TestVerify_Unauthenticated() {
	req := suite.request("REGULAR")
	req.UserID = uuid.Nil

	_, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, req)
	suite.ErrorIs(err, ErrUnauthenticated)
	suite.Equal(StateRejectedUnauthenticated, stateOf(err))
}

func (suite *VerificationServiceTestSuite) TestVerify_MissingFields() {
	mutations := map[string]func(*VerifyRequest){
		"order id":   func(r *VerifyRequest) { r.OrderID = "" },
		"payment id": func(r *VerifyRequest) { r.PaymentID = " " },
		"signature":  func(r *VerifyRequest) { r.Signature = "" },
		"plan":       func(r *VerifyRequest) { r.Plan = "" },
	}
	for name, mutate := range mutations {
		req := suite.request("REGULAR")
		mutate(&req)
		_, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, req)
		suite.ErrorIs(err, ErrInputValidation, name)
		suite.Equal(StateRejectedBadInput, stateOf(err), name)
	}
	suite.gateway.AssertNotCalled(suite.T(), "FetchOrder", mock.Anything, mock.Anything)
}

func (suite *VerificationServiceTestSuite) TestVerify_BadSignatureNeverReachesGateway() {
	req := suite.request("REGULAR")
	req.Signature = Sign(testSecret, "order_ABC", "pay_OTHER")

	_, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, req)
	suite.ErrorIs(err, ErrSignatureInvalid)
	suite.Equal(StateRejectedBadSignature, stateOf(err))
	suite.gateway.AssertNotCalled(suite.T(), "FetchOrder", mock.Anything, mock.Anything)
	suite.Equal(0, suite.transactor.committed+suite.transactor.rolledBack)
}

func (suite *VerificationServiceTestSuite) TestVerify_TestSignatureRequiresOptIn() {
	req := suite.request("NONE")
	req.Signature = "test_signature_abc"

	_, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, req)
	suite.ErrorIs(err, ErrSignatureInvalid)
}

func (suite *VerificationServiceTestSuite) TestVerify_OrderFetchFailureWritesNothing() {
	suite.gateway.On("FetchOrder", suite.ctx, "order_ABC").Return(nil, errors.New("context deadline exceeded"))

	_, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request("REGULAR"))
	suite.ErrorIs(err, ErrOrderFetchFailed)
	suite.Equal(StateRejectedOrderFetch, stateOf(err))
	suite.Equal(0, suite.transactor.committed+suite.transactor.rolledBack)
}

func (suite *VerificationServiceTestSuite) TestVerify_OrderMismatchRejected() {
	suite.gateway.On("FetchOrder", suite.ctx, "order_ABC").Return(&models.Order{ID: "order_OTHER", Amount: 50000}, nil)

	_, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request("REGULAR"))
	suite.ErrorIs(err, ErrOrderFetchFailed)
}

func (suite *VerificationServiceTestSuite) TestVerify_PersistenceFailureRollsBackAndSkipsSeat() {
	suite.expectFetch(50000)
	suite.paymentRepo.On("CreateTx", suite.ctx, nil, mock.Anything).Return(nil)
	suite.subRepo.On("CreateTx", suite.ctx, nil, mock.Anything).Return(errors.New("disk full"))

	result, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request("REGULAR"))
	suite.Nil(result)
	suite.ErrorIs(err, ErrPersistence)
	suite.Equal(StateFailedPersistence, stateOf(err))
	suite.Equal(1, suite.transactor.rolledBack)
	suite.Equal(0, suite.transactor.committed)
	suite.seats.AssertNotCalled(suite.T(), "Allocate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	suite.receipts.AssertNotCalled(suite.T(), "EnqueueReceipt", mock.Anything, mock.Anything)
}

func (suite *VerificationServiceTestSuite) TestVerify_BeginFailure() {
	suite.expectFetch(50000)
	suite.transactor.beginErr = errors.New("too many connections")

	_, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request("REGULAR"))
	suite.ErrorIs(err, ErrPersistence)
	suite.Equal(StateFailedPersistence, stateOf(err))
}

func (suite *VerificationServiceTestSuite) TestVerify_EnrichmentFailuresAreNotFatal() {
	suite.expectFetch(50000)
	suite.expectPersist()
	suite.cache.On("DeletePaymentHistory", mock.Anything, suite.userID).Return(errors.New("redis down"))
	suite.receipts.On("EnqueueReceipt", mock.Anything, mock.Anything).Return(errors.New("queue down"))

	result, err := suite.newService(VerificationOptions{}).Verify(suite.ctx, suite.request("NONE"))
	suite.Require().NoError(err)
	suite.Equal(StateComplete, result.State)
}

func (suite *VerificationServiceTestSuite) TestVerify_AppendModeRecordsDuplicates() {
	suite.expectFetch(50000)
	suite.expectPersist()
	suite.expectAfterCommit()

	service := suite.newService(VerificationOptions{})
	first, err := service.Verify(suite.ctx, suite.request("NONE"))
	suite.Require().NoError(err)
	second, err := service.Verify(suite.ctx, suite.request("NONE"))
	suite.Require().NoError(err)

	suite.NotEqual(first.Payment.ID, second.Payment.ID)
	suite.False(second.Duplicate)
	suite.paymentRepo.AssertNumberOfCalls(suite.T(), "CreateTx", 2)
	suite.Equal(2, suite.transactor.committed)
}

func (suite *VerificationServiceTestSuite) TestVerify_DedupeModeReturnsExisting() {
	existing := &models.Payment{ID: uuid.New(), UserID: suite.userID, OrderID: "order_ABC", PaymentID: "pay_XYZ", Amount: 500}
	seatID := uuid.New()
	sub := &models.Subscription{ID: uuid.New(), UserID: suite.userID, SeatID: &seatID}
	released := false

	suite.cache.On("AcquireVerifyLock", suite.ctx, "order_ABC", "pay_XYZ", 30*time.Second).
		Return(func() { released = true }, true, nil)
	suite.paymentRepo.On("GetByGatewayRefs", suite.ctx, "order_ABC", "pay_XYZ").Return(existing, nil)
	suite.subRepo.On("GetByGatewayRefs", suite.ctx, "order_ABC", "pay_XYZ").Return(sub, nil)

	result, err := suite.newService(VerificationOptions{Dedupe: true}).Verify(suite.ctx, suite.request("REGULAR"))
	suite.Require().NoError(err)
	suite.True(result.Duplicate)
	suite.Equal(existing, result.Payment)
	suite.Equal(sub, result.Subscription)
	suite.Equal(SeatAllocated, result.Seat.Status)
	suite.True(released)
	suite.gateway.AssertNotCalled(suite.T(), "FetchOrder", mock.Anything, mock.Anything)
	suite.Equal(0, suite.transactor.committed)
}

func (suite *VerificationServiceTestSuite) TestVerify_DedupeModeFirstVerificationRecords() {
	suite.cache.On("AcquireVerifyLock", suite.ctx, "order_ABC", "pay_XYZ", 30*time.Second).Return(func() {}, true, nil)
	suite.paymentRepo.On("GetByGatewayRefs", suite.ctx, "order_ABC", "pay_XYZ").Return(nil, repositories.ErrNotFound)
	suite.expectFetch(50000)
	suite.expectPersist()
	suite.expectAfterCommit()

	result, err := suite.newService(VerificationOptions{Dedupe: true}).Verify(suite.ctx, suite.request("NONE"))
	suite.Require().NoError(err)
	suite.False(result.Duplicate)
	suite.Equal(1, suite.transactor.committed)
}

func (suite *VerificationServiceTestSuite) TestVerify_DedupeModeLockOutageFallsThrough() {
	suite.cache.On("AcquireVerifyLock", suite.ctx, "order_ABC", "pay_XYZ", 30*time.Second).Return(nil, false, errors.New("redis down"))
	suite.paymentRepo.On("GetByGatewayRefs", suite.ctx, "order_ABC", "pay_XYZ").Return(nil, repositories.ErrNotFound)
	suite.expectFetch(50000)
	suite.expectPersist()
	suite.expectAfterCommit()

	result, err := suite.newService(VerificationOptions{Dedupe: true}).Verify(suite.ctx, suite.request("NONE"))
	suite.Require().NoError(err)
	suite.Equal(StateComplete, result.State)
}

func (suite *VerificationServiceTestSuite) TestVerify_DedupeModeConcurrentDuplicateRejected() {
	suite.cache.On("AcquireVerifyLock", suite.ctx, "order_ABC", "pay_XYZ", 30*time.Second).Return(nil, false, nil)

	_, err := suite.newService(VerificationOptions{Dedupe: true}).Verify(suite.ctx, suite.request("REGULAR"))
	suite.ErrorIs(err, ErrVerificationInProgress)
	suite.Equal(StateRejectedInProgress, stateOf(err))
}

func (suite *VerificationServiceTestSuite) TestVerify_DedupeModeRejectsOtherUsersPayment() {
	suite.cache.On("AcquireVerifyLock", suite.ctx, "order_ABC", "pay_XYZ", 30*time.Second).Return(func() {}, true, nil)
	suite.paymentRepo.On("GetByGatewayRefs", suite.ctx, "order_ABC", "pay_XYZ").
		Return(&models.Payment{ID: uuid.New(), UserID: uuid.New()}, nil)

	_, err := suite.newService(VerificationOptions{Dedupe: true}).Verify(suite.ctx, suite.request("REGULAR"))
	suite.ErrorIs(err, ErrInputValidation)
	suite.Equal(StateRejectedBadInput, stateOf(err))

	var verr *VerificationError
	suite.Require().True(errors.As(err, &verr))
	suite.Equal("invalid input: payment already recorded for another user", verr.Err.Error())
	suite.Zero(suite.transactor.committed)
}

func TestVerificationError_Unwraps(t *testing.T) {
	err := error(&VerificationError{State: StateRejectedBadSignature, Err: ErrSignatureInvalid})
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatal("expected VerificationError to unwrap to its cause")
	}
	if err.Error() != "payment verification rejected_bad_signature: invalid payment signature" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
