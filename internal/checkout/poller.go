package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/chatwave/console/internal/billing"
	wferrors "github.com/chatwave/console/internal/errors"
	"github.com/rs/zerolog/log"
)

// OrderStatusGetter is the read side of the billing API the poller needs.
type OrderStatusGetter interface {
	GetOrderStatus(ctx context.Context, orderID string) (billing.OrderStatus, error)
}

// StatusPoller repeatedly queries an order's status on a fixed interval
// until a terminal outcome, cancellation, or the deadline.
type StatusPoller struct {
	statuses OrderStatusGetter
	interval time.Duration
	deadline time.Duration

	// maxAttempts additionally bounds the run; 0 means deadline-only.
	maxAttempts int

	nowFn func() time.Time
}

// NewStatusPoller creates a poller with the given cadence and budget.
func NewStatusPoller(statuses OrderStatusGetter, interval, deadline time.Duration) *StatusPoller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if deadline <= 0 {
		deadline = 2 * time.Minute
	}
	return &StatusPoller{
		statuses: statuses,
		interval: interval,
		deadline: deadline,
		nowFn:    time.Now,
	}
}

// Poll blocks until the order reaches a terminal status or the budget runs
// out. Exceeding the deadline returns a timeout error; the order itself stays
// pending server-side, so the user is told to check back later rather than
// that the purchase failed. Cancelling ctx stops the run without a terminal
// result, and the caller must not provision afterwards.
func (p *StatusPoller) Poll(ctx context.Context, orderID string) (billing.OrderStatus, error) {
	start := p.nowFn()
	cutoff := start.Add(p.deadline)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			pollOutcomesTotal.WithLabelValues("cancelled").Inc()
			return "", fmt.Errorf("polling cancelled for order %s: %w", orderID, err)
		}

		pollAttemptsTotal.Inc()
		status, err := p.statuses.GetOrderStatus(ctx, orderID)
		if err != nil {
			// Transient failures burn budget but do not end the run; the
			// order is still pending as far as anyone knows.
			log.Warn().
				Err(err).
				Str("order_id", orderID).
				Int("attempt", attempt).
				Msg("Order status poll failed")
		} else if status.Terminal() {
			pollOutcomesTotal.WithLabelValues(string(status)).Inc()
			log.Info().
				Str("order_id", orderID).
				Str("status", string(status)).
				Int("attempts", attempt).
				Msg("Order reached terminal status")
			return status, nil
		}

		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			pollOutcomesTotal.WithLabelValues("timeout").Inc()
			return "", p.timeoutError(orderID, attempt)
		}
		if !p.nowFn().Before(cutoff) {
			pollOutcomesTotal.WithLabelValues("timeout").Inc()
			return "", p.timeoutError(orderID, attempt)
		}

		select {
		case <-ctx.Done():
			pollOutcomesTotal.WithLabelValues("cancelled").Inc()
			return "", fmt.Errorf("polling cancelled for order %s: %w", orderID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *StatusPoller) timeoutError(orderID string, attempts int) error {
	return wferrors.New(wferrors.KindTimeout, "poll_order_status",
		fmt.Errorf("no terminal status after %d attempts within %s", attempts, p.deadline)).
		WithOrder(orderID)
}
