package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"smartlibrary/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type definitions
const (
	TypeReceiptGenerate = "receipt:generate"

	ReceiptQueue    = "receipts"
	receiptMaxRetry = 5
)

// ReceiptPayload defines the payload for receipt generation tasks
type ReceiptPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
}

// NewReceiptTask creates a new receipt generation task
func NewReceiptTask(paymentID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(ReceiptPayload{PaymentID: paymentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReceiptGenerate, data), nil
}

// TaskEnqueuer is the part of *asynq.Client the scheduler needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReceiptScheduler queues receipt generation on asynq.
type ReceiptScheduler struct {
	client TaskEnqueuer
}

func NewReceiptScheduler(client TaskEnqueuer) *ReceiptScheduler {
	return &ReceiptScheduler{client: client}
}

// EnqueueReceipt queues one receipt per payment. The task id is derived from
// the payment so a repeated enqueue is a no-op while the first is pending.
func (s *ReceiptScheduler) EnqueueReceipt(ctx context.Context, paymentID uuid.UUID) error {
	task, err := NewReceiptTask(paymentID)
	if err != nil {
		return fmt.Errorf("failed to build receipt task: %w", err)
	}

	info, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(ReceiptQueue),
		asynq.MaxRetry(receiptMaxRetry),
		asynq.TaskID("receipt:"+paymentID.String()),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue receipt task: %w", err)
	}

	log.Printf("Enqueued receipt task %s for payment %s", info.ID, paymentID)
	return nil
}

// ReceiptTaskHandler renders and stores receipts off the request path.
type ReceiptTaskHandler struct {
	receipts services.ReceiptService
}

func NewReceiptTaskHandler(receipts services.ReceiptService) *ReceiptTaskHandler {
	return &ReceiptTaskHandler{receipts: receipts}
}

// Register attaches the handler to an asynq mux.
func (h *ReceiptTaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReceiptGenerate, h.HandleReceiptGenerate)
}

// HandleReceiptGenerate handles receipt generation tasks
func (h *ReceiptTaskHandler) HandleReceiptGenerate(ctx context.Context, t *asynq.Task) error {
	var payload ReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal receipt payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.PaymentID == uuid.Nil {
		return fmt.Errorf("receipt payload has no payment id: %w", asynq.SkipRetry)
	}

	log.Printf("Generating receipt for payment %s", payload.PaymentID)

	if err := h.receipts.Generate(ctx, payload.PaymentID); err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			log.Printf("Dropping receipt task for unknown payment %s", payload.PaymentID)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		log.Printf("Receipt generation failed for payment %s: %v", payload.PaymentID, err)
		return err
	}

	log.Printf("Receipt stored for payment %s", payload.PaymentID)
	return nil
}

// NewReceiptWorker builds the asynq server that drains the receipt queue.
func NewReceiptWorker(redisOpt asynq.RedisClientOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{ReceiptQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("Task %s failed: %v", task.Type(), err)
		}),
	})
}
