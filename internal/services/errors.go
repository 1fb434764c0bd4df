package services

import "errors"

var (
	ErrInputValidation        = errors.New("invalid input")
	ErrUnauthenticated        = errors.New("user not authenticated")
	ErrSignatureInvalid       = errors.New("invalid payment signature")
	ErrOrderFetchFailed       = errors.New("failed to fetch order from payment gateway")
	ErrOrderCreateFailed      = errors.New("failed to create order with payment gateway")
	ErrNoSeatAvailable        = errors.New("no seat available")
	ErrPersistence            = errors.New("failed to persist payment state")
	ErrVerificationInProgress = errors.New("payment verification already in progress")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrReceiptNotReady        = errors.New("receipt not generated yet")
	ErrUserNotFound           = errors.New("user not found")
)
