package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"smartlibrary/internal/models"
	"smartlibrary/internal/repositories"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
)

const receiptContentType = "application/pdf"

// ReceiptLink is a time-limited download link for a payment receipt.
type ReceiptLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReceiptService interface {
	Generate(ctx context.Context, paymentID uuid.UUID) error
	LinkFor(ctx context.Context, userID, paymentID uuid.UUID) (*ReceiptLink, error)
}

type receiptService struct {
	paymentRepo repositories.PaymentRepository
	payments    PaymentService
	storage     MinioService
	bucket      string
	urlExpiry   time.Duration
	now         func() time.Time
}

func NewReceiptService(paymentRepo repositories.PaymentRepository, payments PaymentService, storage MinioService, bucket string, urlExpiry time.Duration) ReceiptService {
	return &receiptService{
		paymentRepo: paymentRepo,
		payments:    payments,
		storage:     storage,
		bucket:      bucket,
		urlExpiry:   urlExpiry,
		now:         time.Now,
	}
}

func ReceiptObjectName(paymentID uuid.UUID) string {
	return fmt.Sprintf("receipts/%s.pdf", paymentID.String())
}

// Generate renders the payment's receipt and stores it. Regenerating overwrites
// the previous object.
func (s *receiptService) Generate(ctx context.Context, paymentID uuid.UUID) error {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrPaymentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}

	data, err := RenderReceiptPDF(payment)
	if err != nil {
		return err
	}

	if err := s.storage.UploadObject(ctx, s.bucket, ReceiptObjectName(paymentID), bytes.NewReader(data), int64(len(data)), receiptContentType); err != nil {
		return fmt.Errorf("failed to upload receipt: %w", err)
	}
	return nil
}

func (s *receiptService) LinkFor(ctx context.Context, userID, paymentID uuid.UUID) (*ReceiptLink, error) {
	if _, err := s.payments.GetForUser(ctx, userID, paymentID); err != nil {
		return nil, err
	}

	object := ReceiptObjectName(paymentID)
	exists, err := s.storage.ObjectExists(ctx, s.bucket, object)
	if err != nil {
		return nil, fmt.Errorf("failed to check receipt: %w", err)
	}
	if !exists {
		return nil, ErrReceiptNotReady
	}

	url, err := s.storage.GetPresignedURL(ctx, s.bucket, object, s.urlExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign receipt: %w", err)
	}
	return &ReceiptLink{URL: url, ExpiresAt: s.now().Add(s.urlExpiry)}, nil
}

// RenderReceiptPDF lays out a one-page receipt for a recorded payment.
func RenderReceiptPDF(payment *models.Payment) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	marginX := 20.0
	marginY := 20.0
	pdf.SetMargins(marginX, marginY, marginX)
	pdf.SetAutoPageBreak(true, marginY)

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)
	pdf.SetXY(marginX, marginY)
	pdf.Cell(0, 10, "SMART LIBRARY PAYMENT RECEIPT")
	pdf.Ln(15)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Receipt No: %s", payment.ID.String()))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Date: %s", payment.CreatedAt.Format("02-Jan-2006 15:04")))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Order ID: %s", payment.OrderID))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Payment ID: %s", payment.PaymentID))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	colWidths := []float64{60, 110}
	pdf.CellFormat(colWidths[0], 8, "Item", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colWidths[1], 8, "Details", "1", 0, "L", true, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"Plan", payment.Plan},
		{"Duration", payment.Duration},
		{"Shift", payment.Shift},
		{"Seat type", payment.SeatType},
		{"Registration", yesNo(payment.RegistrationIncluded)},
		{"Locker", yesNo(payment.LockerIncluded)},
		{"Status", payment.Status},
	}
	for _, row := range rows {
		pdf.CellFormat(colWidths[0], 8, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[1], 8, row[1], "1", 0, "L", false, 0, "")
		pdf.Ln(8)
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(colWidths[0], 9, "Amount paid", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colWidths[1], 9, fmt.Sprintf("%s %.2f", payment.Currency, payment.Amount), "1", 0, "R", true, 0, "")
	pdf.Ln(14)

	pdf.SetFont("Arial", "I", 9)
	pdf.Cell(0, 6, "This is a computer generated receipt and does not require a signature.")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
