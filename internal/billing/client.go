package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	wferrors "github.com/chatwave/console/internal/errors"
	"github.com/rs/zerolog/log"
)

// Client talks to the billing backend (tiers, orders, subscription).
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	backoff    retryBackoff
	rngFn      func() float64
}

// ClientConfig holds configuration for the billing client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// Retries bounds how often transport failures are retried per call.
	Retries int
}

// NewClient creates a billing API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("billing base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
		log.Debug().Str("base_url", base).Msg("No protocol specified for billing API, defaulting to HTTPS")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		backoff: retryBackoff{
			initial:    500 * time.Millisecond,
			multiplier: 2,
			jitter:     0.2,
			max:        5 * time.Second,
		},
		rngFn: rand.Float64,
	}, nil
}

// retryBackoff computes the delay before the next transport retry.
type retryBackoff struct {
	initial    time.Duration
	multiplier float64
	jitter     float64
	max        time.Duration
}

func (b retryBackoff) nextDelay(attempt int, rng float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(b.initial)
	if base <= 0 {
		base = float64(500 * time.Millisecond)
	}
	multiplier := b.multiplier
	if multiplier <= 1 {
		multiplier = 2
	}
	delay := base * math.Pow(multiplier, float64(attempt))
	if b.jitter > 0 {
		j := b.jitter
		if j > 1 {
			j = 1
		}
		delay = delay * (1 + (rng*2-1)*j)
	}
	if b.max > 0 && delay > float64(b.max) {
		delay = float64(b.max)
	}
	return time.Duration(delay)
}

// doJSON performs one HTTP round trip and decodes a JSON response body.
// Transport failures come back as retryable network errors.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wferrors.New(wferrors.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode >= 500 {
			return wferrors.New(wferrors.KindNetwork, op, apiErr).WithStatusCode(resp.StatusCode)
		}
		return wferrors.New(wferrors.KindGateway, op, apiErr).WithStatusCode(resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// doJSONRetry wraps doJSON with bounded retries for retryable failures.
func (c *Client) doJSONRetry(ctx context.Context, op, method, path string, body, out interface{}) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.doJSON(ctx, op, method, path, body, out)
		if lastErr == nil || !wferrors.IsRetryable(lastErr) || attempt >= c.retries {
			return lastErr
		}

		delay := c.backoff.nextDelay(attempt, c.rngFn())
		log.Warn().
			Err(lastErr).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("Billing API call failed, retrying")

		select {
		case <-ctx.Done():
			return wferrors.New(wferrors.KindNetwork, op, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// FetchTiers returns the purchasable tiers as sent by the backend.
func (c *Client) FetchTiers(ctx context.Context) ([]Tier, error) {
	var tiers []Tier
	if err := c.doJSONRetry(ctx, "fetch_tiers", http.MethodGet, "/tiers", nil, &tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

type createOrderRequest struct {
	TierID       string       `json:"tier_id"`
	BillingCycle BillingCycle `json:"billing_cycle"`
}

// CreateOrder asks the backend for a payment session. The backend guarantees
// idempotent creation: a pending order for the same user is returned as-is
// rather than duplicated, so callers must not assume a fresh order.
func (c *Client) CreateOrder(ctx context.Context, tierID string, cycle BillingCycle) (*CheckoutSession, error) {
	var session CheckoutSession
	err := c.doJSONRetry(ctx, "create_order", http.MethodPost, "/orders",
		createOrderRequest{TierID: tierID, BillingCycle: cycle}, &session)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(session.OrderID) == "" || strings.TrimSpace(session.PaymentURL) == "" {
		return nil, wferrors.New(wferrors.KindGateway, "create_order",
			fmt.Errorf("backend returned incomplete session")).WithTier(tierID)
	}
	return &session, nil
}

type orderStatusResponse struct {
	Status OrderStatus `json:"status"`
}

// GetOrderStatus returns the current status of an order.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", wferrors.New(wferrors.KindValidation, "get_order_status",
			fmt.Errorf("order ID is required"))
	}
	var resp orderStatusResponse
	if err := c.doJSONRetry(ctx, "get_order_status", http.MethodGet, "/orders/"+orderID, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// GetSubscription returns the authenticated user's active subscription,
// or nil when none exists yet.
func (c *Client) GetSubscription(ctx context.Context) (*Subscription, error) {
	var sub Subscription
	err := c.doJSONRetry(ctx, "get_subscription", http.MethodGet, "/subscription", nil, &sub)
	if err != nil {
		var wfErr *wferrors.WorkflowError
		if errors.As(err, &wfErr) && wfErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(sub.TierID) == "" {
		return nil, nil
	}
	return &sub, nil
}
