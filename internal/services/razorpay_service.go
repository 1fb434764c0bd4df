package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"smartlibrary/internal/models"

	"github.com/labstack/gommon/random"
)

const (
	defaultRazorpayBaseURL = "https://api.razorpay.com/v1"
	maxReceiptLength       = 40
)

// PaymentGateway creates payment intents and re-reads them as the source of
// truth for what was paid.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, plan string, amount float64) (*models.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*models.Order, error)
}

// GatewayOptions are shared by the live and mock gateways.
type GatewayOptions struct {
	Currency     string
	FetchTimeout time.Duration
}

func (o GatewayOptions) withDefaults() GatewayOptions {
	if o.Currency == "" {
		o.Currency = "INR"
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	return o
}

type razorpayGateway struct {
	apiKey    string
	apiSecret string
	baseURL   string
	opts      GatewayOptions
	http      *http.Client
	now       func() time.Time
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// NewRazorpayGateway creates a client for the Razorpay orders API. An empty
// baseURL selects the production endpoint.
func NewRazorpayGateway(apiKey, apiSecret, baseURL string, opts GatewayOptions) PaymentGateway {
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	return &razorpayGateway{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		opts:      opts.withDefaults(),
		http:      &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

// toMinorUnits validates a create-order request and converts the major-unit
// amount to paise. Nothing reaches the network when this fails.
func toMinorUnits(plan string, amount float64) (int64, error) {
	if strings.TrimSpace(plan) == "" {
		return 0, fmt.Errorf("%w: plan is required", ErrInputValidation)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be a positive number", ErrInputValidation)
	}
	minor := int64(math.Round(amount * 100))
	if minor <= 0 {
		return 0, fmt.Errorf("%w: amount is below the smallest currency unit", ErrInputValidation)
	}
	return minor, nil
}

func newReceipt(now time.Time) string {
	receipt := "rcpt_" + strconv.FormatInt(now.UnixMilli(), 10)
	if len(receipt) > maxReceiptLength {
		receipt = receipt[:maxReceiptLength]
	}
	return receipt
}

func orderNotes(plan string, now time.Time) map[string]string {
	return map[string]string{
		"plan":      plan,
		"timestamp": now.UTC().Format(time.RFC3339),
	}
}

func (g *razorpayGateway) CreateOrder(ctx context.Context, plan string, amount float64) (*models.Order, error) {
	minor, err := toMinorUnits(plan, amount)
	if err != nil {
		return nil, err
	}

	now := g.now()
	req := createOrderRequest{
		Amount:   minor,
		Currency: g.opts.Currency,
		Receipt:  newReceipt(now),
		Notes:    orderNotes(plan, now),
	}

	order, err := g.doOrderRequest(ctx, http.MethodPost, "/orders", req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderCreateFailed, err)
	}
	return order, nil
}

// FetchOrder re-reads an order from the gateway under the configured timeout.
func (g *razorpayGateway) FetchOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInputValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.FetchTimeout)
	defer cancel()

	order, err := g.doOrderRequest(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	return order, nil
}

func (g *razorpayGateway) doOrderRequest(ctx context.Context, method, path string, body interface{}) (*models.Order, error) {
	status, payload, err := g.makeRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		var apiErr razorpayErrorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Description != "" {
			return nil, fmt.Errorf("gateway returned %d: %s", status, apiErr.Error.Description)
		}
		return nil, fmt.Errorf("gateway returned %d", status)
	}

	var order models.Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	if order.ID == "" || order.Amount <= 0 {
		return nil, errors.New("gateway returned an incomplete order")
	}
	return &order, nil
}

func (g *razorpayGateway) makeRequest(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.SetBasicAuth(g.apiKey, g.apiSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}

// mockGateway stands in for Razorpay when RAZORPAY_MOCK_MODE is enabled.
// Orders it creates are remembered so a later fetch reports the same amount;
// only the most recent mockOrderLimit orders are kept.
type mockGateway struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	created     []string
	limit       int
	fetchAmount int64
	opts        GatewayOptions
	now         func() time.Time
}

const mockOrderLimit = 1024

func NewMockGateway(fetchAmount int64, opts GatewayOptions) PaymentGateway {
	return &mockGateway{
		orders:      make(map[string]*models.Order),
		limit:       mockOrderLimit,
		fetchAmount: fetchAmount,
		opts:        opts.withDefaults(),
		now:         time.Now,
	}
}

func (g *mockGateway) CreateOrder(ctx context.Context, plan string, amount float64) (*models.Order, error) {
	minor, err := toMinorUnits(plan, amount)
	if err != nil {
		return nil, err
	}

	now := g.now()
	order := &models.Order{
		ID:        "order_" + random.String(14, random.Alphanumeric),
		Entity:    "order",
		Amount:    minor,
		AmountDue: minor,
		Currency:  g.opts.Currency,
		Receipt:   newReceipt(now),
		Status:    "created",
		Notes:     orderNotes(plan, now),
		CreatedAt: now.Unix(),
	}

	g.mu.Lock()
	g.orders[order.ID] = order
	g.created = append(g.created, order.ID)
	if len(g.created) > g.limit {
		delete(g.orders, g.created[0])
		g.created = g.created[1:]
	}
	g.mu.Unlock()

	copied := *order
	return &copied, nil
}

func (g *mockGateway) FetchOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInputValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}

	g.mu.Lock()
	order, ok := g.orders[orderID]
	g.mu.Unlock()
	if ok {
		copied := *order
		return &copied, nil
	}

	return &models.Order{
		ID:        orderID,
		Entity:    "order",
		Amount:    g.fetchAmount,
		AmountDue: g.fetchAmount,
		Currency:  g.opts.Currency,
		Status:    "created",
		CreatedAt: g.now().Unix(),
	}, nil
}
