package checkout

import (
	"fmt"
	"time"

	"github.com/chatwave/console/internal/billing"
	wferrors "github.com/chatwave/console/internal/errors"
	"github.com/chatwave/console/internal/platforms"
	"github.com/rs/zerolog/log"
)

// Activation is the result of provisioning a completed order.
type Activation struct {
	// Subscription is the updated local projection of the paid-for tier.
	Subscription billing.Subscription

	// PendingConnections lists the entitled platforms not yet connected,
	// for the external onboarding flow to pick up.
	PendingConnections []string
}

// Provisioner activates the purchased tier after a confirmed payment.
type Provisioner struct {
	store    *CheckpointStore
	registry *platforms.Registry
	nowFn    func() time.Time
}

// NewProvisioner creates a provisioner.
func NewProvisioner(store *CheckpointStore, registry *platforms.Registry) *Provisioner {
	return &Provisioner{
		store:    store,
		registry: registry,
		nowFn:    time.Now,
	}
}

// Activate provisions access for a completed order. Idempotent per order:
// an already-processed order returns (nil, nil) and changes nothing. On
// success the pending checkpoint is cleared and the processed marker set in
// one atomic write, so a failed or interrupted write leaves both untouched
// and the activation is retried on next load. A provisioning failure is a
// local-state problem only; the payment stands and nothing here may treat
// the order as anything but paid.
func (p *Provisioner) Activate(orderID string, tier billing.Tier, cycle billing.BillingCycle) (*Activation, error) {
	processed, err := p.store.IsProcessed(orderID)
	if err != nil {
		return nil, wferrors.New(wferrors.KindProvisioning, "activate", err).WithOrder(orderID)
	}
	if processed {
		log.Info().
			Str("order_id", orderID).
			Msg("Order already provisioned, skipping activation")
		return nil, nil
	}

	activation := &Activation{
		Subscription: billing.Subscription{
			TierID:   tier.ID,
			Cycle:    cycle,
			RenewsAt: p.renewalTime(cycle),
		},
		PendingConnections: p.registry.Diff(tier.Platforms),
	}

	if err := p.store.CompleteOrder(orderID); err != nil {
		provisioningTotal.WithLabelValues("error").Inc()
		return nil, wferrors.New(wferrors.KindProvisioning, "activate",
			fmt.Errorf("record completed order: %w", err)).WithOrder(orderID)
	}
	provisioningTotal.WithLabelValues("success").Inc()

	log.Info().
		Str("order_id", orderID).
		Str("tier_id", tier.ID).
		Str("billing_cycle", string(cycle)).
		Strs("pending_connections", activation.PendingConnections).
		Msg("Subscription activated")

	return activation, nil
}

func (p *Provisioner) renewalTime(cycle billing.BillingCycle) time.Time {
	now := p.nowFn().UTC()
	if cycle == billing.CycleAnnual {
		return now.AddDate(1, 0, 0)
	}
	return now.AddDate(0, 1, 0)
}
