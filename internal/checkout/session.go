package checkout

import (
	"context"
	"fmt"

	"github.com/chatwave/console/internal/billing"
	"github.com/rs/zerolog/log"
)

// OrderCreator is the write side of the billing API the session needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, tierID string, cycle billing.BillingCycle) (*billing.CheckoutSession, error)
}

// GatewaySession creates a payment order and prepares the hand-off to the
// external payment gateway.
type GatewaySession struct {
	orders OrderCreator
	store  *CheckpointStore

	// redirect performs the full-page navigation to the gateway. Optional;
	// when nil the caller forwards the payment URL to the UI instead.
	redirect func(url string)
}

// NewGatewaySession creates a session manager.
func NewGatewaySession(orders OrderCreator, store *CheckpointStore) *GatewaySession {
	return &GatewaySession{orders: orders, store: store}
}

// SetRedirect installs a navigation hook invoked after the checkpoint is
// durable. The hand-off tears the process down, so nothing may run after it.
func (g *GatewaySession) SetRedirect(fn func(url string)) {
	g.redirect = fn
}

// Initiate creates (or re-uses) the payment order and persists the order ID
// before any navigation happens. The backend creates orders idempotently, so
// a pending order for the same tier and cycle comes back unchanged; the
// session additionally short-circuits on a locally cached pending order to
// skip the round trip entirely.
func (g *GatewaySession) Initiate(ctx context.Context, tierID string, cycle billing.BillingCycle) (*billing.CheckoutSession, error) {
	pending, err := g.store.PendingOrder()
	if err != nil {
		return nil, fmt.Errorf("check cached pending order: %w", err)
	}
	if pending != nil && pending.TierID == tierID && pending.Cycle == cycle && pending.PaymentURL != "" {
		log.Info().
			Str("order_id", pending.OrderID).
			Str("tier_id", tierID).
			Msg("Re-using cached pending order for gateway hand-off")
		session := &billing.CheckoutSession{OrderID: pending.OrderID, PaymentURL: pending.PaymentURL}
		g.handOff(session)
		return session, nil
	}

	session, err := g.orders.CreateOrder(ctx, tierID, cycle)
	if err != nil {
		ordersCreatedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// The checkpoint must be durable before the redirect leaves the app;
	// it is the only state that survives the navigation.
	if err := g.store.SetPendingOrder(session.OrderID, tierID, cycle, session.PaymentURL); err != nil {
		ordersCreatedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("persist order checkpoint: %w", err)
	}
	ordersCreatedTotal.WithLabelValues("success").Inc()

	log.Info().
		Str("order_id", session.OrderID).
		Str("tier_id", tierID).
		Str("billing_cycle", string(cycle)).
		Msg("Payment order created, handing off to gateway")

	g.handOff(session)
	return session, nil
}

func (g *GatewaySession) handOff(session *billing.CheckoutSession) {
	if g.redirect != nil {
		g.redirect(session.PaymentURL)
	}
}
