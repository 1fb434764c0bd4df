package handlers

import (
	"errors"
	"log"
	"net/http"

	"smartlibrary/internal/common"
	"smartlibrary/internal/models"
	"smartlibrary/internal/services"

	"github.com/labstack/echo/v4"
)

// PaymentHandlers handles HTTP requests for payments, receipts and seat availability
type PaymentHandlers struct {
	gateway  services.PaymentGateway
	verifier services.VerificationService
	payments services.PaymentService
	receipts services.ReceiptService
	seats    services.SeatAllocator
}

// NewPaymentHandlers creates a new payment handlers instance
func NewPaymentHandlers(gateway services.PaymentGateway, verifier services.VerificationService, payments services.PaymentService,
	receipts services.ReceiptService, seats services.SeatAllocator) *PaymentHandlers {
	return &PaymentHandlers{
		gateway:  gateway,
		verifier: verifier,
		payments: payments,
		receipts: receipts,
		seats:    seats,
	}
}

type createOrderRequest struct {
	Plan   string  `json:"plan" validate:"required,max=64"`
	Amount float64 `json:"amount" validate:"gt=0"`
}

type addOns struct {
	Registration bool `json:"registration"`
	Locker       bool `json:"locker"`
}

type verifyPaymentRequest struct {
	OrderID   string  `json:"orderId" validate:"required"`
	PaymentID string  `json:"paymentId" validate:"required"`
	Signature string  `json:"signature" validate:"required"`
	Plan      string  `json:"plan" validate:"required,max=64"`
	Duration  string  `json:"duration" validate:"max=32"`
	Shift     string  `json:"shift" validate:"max=32"`
	SeatType  string  `json:"seatType" validate:"max=16"`
	Amount    float64 `json:"amount" validate:"gte=0"`
	AddOns    addOns  `json:"addOns"`
}

type verifyPaymentResponse struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message"`
	Subscription *models.Subscription `json:"subscription"`
	Payment      *models.Payment      `json:"payment"`
	Seat         services.SeatResult  `json:"seat"`
	Duplicate    bool                 `json:"duplicate"`
}

// CreateOrder handles POST /payment/order
func (h *PaymentHandlers) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return common.SendValidationErrors(c, validationDetails(err))
	}

	order, err := h.gateway.CreateOrder(ctx, req.Plan, req.Amount)
	if err != nil {
		return sendServiceError(c, err)
	}

	return c.JSON(http.StatusOK, order)
}

// VerifyPayment handles POST /payment/verify
func (h *PaymentHandlers) VerifyPayment(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return common.SendValidationErrors(c, validationDetails(err))
	}

	result, err := h.verifier.Verify(ctx, services.VerifyRequest{
		UserID:               userID,
		OrderID:              req.OrderID,
		PaymentID:            req.PaymentID,
		Signature:            req.Signature,
		Plan:                 req.Plan,
		Duration:             req.Duration,
		Shift:                req.Shift,
		SeatType:             req.SeatType,
		ClientAmount:         req.Amount,
		RegistrationIncluded: req.AddOns.Registration,
		LockerIncluded:       req.AddOns.Locker,
	})
	if err != nil {
		return sendServiceError(c, err)
	}

	message := "Payment verified and subscription activated"
	if result.Duplicate {
		message = "Payment already verified"
	}

	return c.JSON(http.StatusOK, verifyPaymentResponse{
		Success:      true,
		Message:      message,
		Subscription: result.Subscription,
		Payment:      result.Payment,
		Seat:         result.Seat,
		Duplicate:    result.Duplicate,
	})
}

// GetPaymentHistory handles GET /payment/history
func (h *PaymentHandlers) GetPaymentHistory(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	history, err := h.payments.History(ctx, userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"history": history,
	})
}

// GetReceipt handles GET /payment/:id/receipt
func (h *PaymentHandlers) GetReceipt(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	paymentID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	link, err := h.receipts.LinkFor(ctx, userID, paymentID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return c.JSON(http.StatusOK, link)
}

// GetSeatAvailability handles GET /seats/availability
func (h *PaymentHandlers) GetSeatAvailability(c echo.Context) error {
	availability, err := h.seats.Availability(c.Request().Context())
	if err != nil {
		return sendServiceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"seats": availability,
	})
}

// sendServiceError maps service sentinels onto the error envelope. Persistence
// details are logged here and never returned.
func sendServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return common.SendUnauthorizedError(c)
	case errors.Is(err, services.ErrSignatureInvalid):
		return common.SendClientError(c, "Invalid payment signature")
	case errors.Is(err, services.ErrInputValidation):
		return common.SendClientError(c, clientMessage(err))
	case errors.Is(err, services.ErrUserNotFound):
		return common.SendNotFoundError(c, "User")
	case errors.Is(err, services.ErrPaymentNotFound):
		return common.SendNotFoundError(c, "Payment")
	case errors.Is(err, services.ErrReceiptNotReady):
		return common.SendNotFoundError(c, "Receipt")
	case errors.Is(err, services.ErrVerificationInProgress):
		return common.SendConflictError(c, "Payment verification already in progress")
	case errors.Is(err, services.ErrOrderFetchFailed):
		return common.SendUpstreamError(c, "Could not confirm the order with the payment gateway")
	case errors.Is(err, services.ErrOrderCreateFailed):
		return common.SendUpstreamError(c, "Could not create the order with the payment gateway")
	default:
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
		return common.SendServerError(c, "Internal server error")
	}
}

// clientMessage strips the pipeline state prefix from verification errors.
func clientMessage(err error) string {
	var verr *services.VerificationError
	if errors.As(err, &verr) {
		return verr.Err.Error()
	}
	return err.Error()
}
