package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chatwave/console/internal/billing"
	wferrors "github.com/chatwave/console/internal/errors"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// SubscriptionGetter is the read side of the billing API the orchestrator
// uses to refresh the local subscription projection.
type SubscriptionGetter interface {
	GetSubscription(ctx context.Context) (*billing.Subscription, error)
}

// ErrorInfo is the client-facing rendering of a workflow error.
type ErrorInfo struct {
	Kind      wferrors.Kind `json:"kind"`
	Message   string        `json:"message"`
	OrderID   string        `json:"order_id,omitempty"`
	Retryable bool          `json:"retryable"`
}

// Snapshot is the orchestrator state the UI renders from.
type Snapshot struct {
	InstanceID         string                `json:"instance_id"`
	State              State                 `json:"state"`
	TierID             string                `json:"tier_id,omitempty"`
	Cycle              billing.BillingCycle  `json:"billing_cycle,omitempty"`
	OrderID            string                `json:"order_id,omitempty"`
	ResumableOrderID   string                `json:"resumable_order_id,omitempty"`
	Subscription       *billing.Subscription `json:"subscription,omitempty"`
	PendingConnections []string              `json:"pending_connections,omitempty"`
	Error              *ErrorInfo            `json:"error,omitempty"`
}

// Orchestrator is the state machine composing selection, payment, polling,
// and provisioning. It is the only component the surrounding UI talks to.
type Orchestrator struct {
	mu sync.Mutex

	instanceID string
	state      State

	catalog     *billing.Catalog
	selector    *TierSelector
	session     *GatewaySession
	poller      *StatusPoller
	provisioner *Provisioner
	store       *CheckpointStore
	subs        SubscriptionGetter

	chosenTier         billing.Tier
	cycle              billing.BillingCycle
	orderID            string
	resumableOrderID   string
	subscription       *billing.Subscription
	pendingConnections []string
	lastErr            *wferrors.WorkflowError

	pollCancel context.CancelFunc

	// resuming guards the whole confirm-and-provision span of Resume, not
	// just the poll: a second Resume for the same order racing the
	// provisioning step would pass the processed-marker check.
	resuming bool

	onChange func(Snapshot)
}

// NewOrchestrator wires the workflow components together. The workflow
// starts in tier selection; persisted checkpoints are picked up by
// ResumeFromCheckpoint on application load.
func NewOrchestrator(catalog *billing.Catalog, selector *TierSelector, session *GatewaySession,
	poller *StatusPoller, provisioner *Provisioner, store *CheckpointStore, subs SubscriptionGetter) *Orchestrator {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return &Orchestrator{
		instanceID:  ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String(),
		state:       StateSelectingTier,
		catalog:     catalog,
		selector:    selector,
		session:     session,
		poller:      poller,
		provisioner: provisioner,
		store:       store,
		subs:        subs,
	}
}

// OnChange installs a listener invoked with a snapshot after every state
// change. Used to push updates to connected UI clients.
func (o *Orchestrator) OnChange(fn func(Snapshot)) {
	o.mu.Lock()
	o.onChange = fn
	o.mu.Unlock()
}

// Snapshot returns the current client-visible state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		InstanceID:         o.instanceID,
		State:              o.state,
		TierID:             o.chosenTier.ID,
		Cycle:              o.cycle,
		OrderID:            o.orderID,
		ResumableOrderID:   o.resumableOrderID,
		Subscription:       o.subscription,
		PendingConnections: o.pendingConnections,
	}
	if o.lastErr != nil {
		snap.Error = &ErrorInfo{
			Kind:      o.lastErr.Kind,
			Message:   o.lastErr.Error(),
			OrderID:   o.lastErr.OrderID,
			Retryable: o.lastErr.Retryable,
		}
	}
	return snap
}

// applyLocked transitions the state machine. Invalid event/state pairs can
// legitimately arise from duplicate network callbacks, so they are logged
// no-ops rather than failures.
func (o *Orchestrator) applyLocked(event Event) bool {
	next, ok := NextState(o.state, event)
	if !ok {
		transitionsTotal.WithLabelValues(string(event), "rejected").Inc()
		log.Warn().
			Str("instance_id", o.instanceID).
			Str("state", string(o.state)).
			Str("event", string(event)).
			Msg("Ignoring event with no transition from current state")
		return false
	}
	transitionsTotal.WithLabelValues(string(event), "applied").Inc()
	log.Debug().
		Str("instance_id", o.instanceID).
		Str("from", string(o.state)).
		Str("to", string(next)).
		Str("event", string(event)).
		Msg("Workflow transition")
	o.state = next
	return true
}

func (o *Orchestrator) notify(snap Snapshot, fn func(Snapshot)) {
	if fn != nil {
		fn(snap)
	}
}

// LoadCatalog fetches the purchasable tiers. Safe to retry; no side effects
// beyond the catalog cache.
func (o *Orchestrator) LoadCatalog(ctx context.Context) ([]billing.Tier, error) {
	return o.catalog.Fetch(ctx)
}

// SelectTier validates and records the user's tier choice and moves the
// workflow to the gateway hand-off. A pending order is a conflict: no new
// order is created and the pending one is offered for resumption instead.
func (o *Orchestrator) SelectTier(tierID string, cycle billing.BillingCycle) error {
	o.mu.Lock()
	tier, err := o.selector.Select(tierID, cycle)
	if err != nil {
		var wfErr *wferrors.WorkflowError
		if errors.As(err, &wfErr) {
			o.lastErr = wfErr
			if wfErr.Kind == wferrors.KindConflict {
				o.resumableOrderID = wfErr.OrderID
			}
		}
		snap, fn := o.snapshotLocked(), o.onChange
		o.mu.Unlock()
		o.notify(snap, fn)
		return err
	}

	if o.state != StateSelectingTier {
		o.mu.Unlock()
		return wferrors.New(wferrors.KindValidation, "select_tier",
			fmt.Errorf("selection not allowed in state %s", o.state)).WithTier(tierID)
	}

	o.chosenTier = tier
	o.cycle = cycle
	o.lastErr = nil
	o.applyLocked(EventTierChosen)
	snap, fn := o.snapshotLocked(), o.onChange
	o.mu.Unlock()
	o.notify(snap, fn)
	return nil
}

// InitiateCheckout creates the payment order and returns the gateway
// session. On failure the workflow stays in the hand-off state so the user
// can retry without re-selecting.
func (o *Orchestrator) InitiateCheckout(ctx context.Context) (*billing.CheckoutSession, error) {
	o.mu.Lock()
	if o.state != StateAwaitingGateway {
		o.mu.Unlock()
		return nil, wferrors.New(wferrors.KindValidation, "initiate_checkout",
			fmt.Errorf("no tier selected (state %s)", o.state))
	}
	tier, cycle := o.chosenTier, o.cycle
	o.mu.Unlock()

	session, err := o.session.Initiate(ctx, tier.ID, cycle)

	o.mu.Lock()
	if err != nil {
		var wfErr *wferrors.WorkflowError
		if errors.As(err, &wfErr) {
			o.lastErr = wfErr
		} else {
			o.lastErr = wferrors.New(wferrors.KindGateway, "initiate_checkout", err).WithTier(tier.ID)
			err = o.lastErr
		}
		snap, fn := o.snapshotLocked(), o.onChange
		o.mu.Unlock()
		o.notify(snap, fn)
		return nil, err
	}

	o.orderID = session.OrderID
	o.lastErr = nil
	o.applyLocked(EventGatewayInitiated)
	snap, fn := o.snapshotLocked(), o.onChange
	o.mu.Unlock()
	o.notify(snap, fn)
	return session, nil
}

// ResumeFromCheckpoint reconstructs the workflow from the persisted order ID
// on application load. Without a checkpoint it only refreshes the
// subscription projection.
func (o *Orchestrator) ResumeFromCheckpoint(ctx context.Context) error {
	if err := o.RefreshSubscription(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to refresh subscription on load")
	}

	cp, err := o.store.PendingOrder()
	if err != nil {
		return fmt.Errorf("load checkout checkpoint: %w", err)
	}
	if cp == nil {
		return nil
	}

	log.Info().
		Str("order_id", cp.OrderID).
		Str("tier_id", cp.TierID).
		Msg("Found persisted order checkpoint, resuming payment confirmation")
	return o.Resume(ctx, cp.OrderID)
}

// Resume confirms payment for the given order and provisions access once it
// completes. Idempotent per order: an already-processed order is a no-op.
// Blocks until a terminal outcome, timeout, or cancellation; the API layer
// runs it in its own goroutine.
func (o *Orchestrator) Resume(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return wferrors.New(wferrors.KindValidation, "resume", fmt.Errorf("order ID is required"))
	}

	processed, err := o.store.IsProcessed(orderID)
	if err != nil {
		return fmt.Errorf("check processed orders: %w", err)
	}
	if processed {
		log.Info().Str("order_id", orderID).Msg("Order already provisioned, nothing to resume")
		return nil
	}

	tier, cycle, err := o.resolveOrderContext(ctx, orderID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.resuming {
		o.mu.Unlock()
		return wferrors.New(wferrors.KindConflict, "resume",
			fmt.Errorf("order confirmation already in progress")).WithOrder(orderID)
	}
	o.resuming = true
	// A manual resume after a timeout or failure restarts the workflow.
	if o.state.Terminal() {
		o.applyLocked(EventReset)
	}
	o.applyLocked(EventGatewayInitiated)
	o.chosenTier = tier
	o.cycle = cycle
	o.orderID = orderID
	o.resumableOrderID = ""
	o.lastErr = nil
	pollCtx, cancel := context.WithCancel(ctx)
	o.pollCancel = cancel
	snap, fn := o.snapshotLocked(), o.onChange
	o.mu.Unlock()
	o.notify(snap, fn)

	status, pollErr := o.poller.Poll(pollCtx, orderID)

	o.mu.Lock()
	o.pollCancel = nil
	if pollErr != nil {
		defer cancel()
		var wfErr *wferrors.WorkflowError
		if errors.As(pollErr, &wfErr) && wfErr.Kind == wferrors.KindTimeout {
			// Deadline exceeded with the order still pending server-side.
			// The checkpoint stays so a later resume can pick it up.
			o.lastErr = wfErr
			o.applyLocked(EventPollTimedOut)
			o.resuming = false
			snap, fn := o.snapshotLocked(), o.onChange
			o.mu.Unlock()
			o.notify(snap, fn)
			return pollErr
		}
		// Cancelled: a cancelled poller must not provision. Cancel() has
		// already reset the state machine.
		o.resuming = false
		o.mu.Unlock()
		return pollErr
	}
	cancel()

	switch status {
	case billing.OrderCompleted:
		return o.provisionLocked(orderID, tier, cycle)
	case billing.OrderFailed:
		failErr := wferrors.New(wferrors.KindGateway, "resume",
			fmt.Errorf("payment was declined")).WithOrder(orderID)
		o.lastErr = failErr
		o.applyLocked(EventPaymentFailed)
		o.clearCheckpointLocked(orderID)
		o.resuming = false
		snap, fn := o.snapshotLocked(), o.onChange
		o.mu.Unlock()
		o.notify(snap, fn)
		return failErr
	case billing.OrderExpired:
		expErr := wferrors.New(wferrors.KindGateway, "resume",
			fmt.Errorf("order expired before payment")).WithOrder(orderID)
		o.lastErr = expErr
		o.applyLocked(EventPaymentFailed)
		o.clearCheckpointLocked(orderID)
		o.resuming = false
		snap, fn := o.snapshotLocked(), o.onChange
		o.mu.Unlock()
		o.notify(snap, fn)
		return expErr
	default:
		o.resuming = false
		o.mu.Unlock()
		return fmt.Errorf("unexpected terminal status %q for order %s", status, orderID)
	}
}

// provisionLocked runs the confirmed-payment half of Resume. Called with
// o.mu held; releases it.
func (o *Orchestrator) provisionLocked(orderID string, tier billing.Tier, cycle billing.BillingCycle) error {
	o.applyLocked(EventPaymentConfirmed)
	snap, fn := o.snapshotLocked(), o.onChange
	o.mu.Unlock()
	o.notify(snap, fn)

	activation, err := o.provisioner.Activate(orderID, tier, cycle)

	o.mu.Lock()
	if err != nil {
		var wfErr *wferrors.WorkflowError
		if errors.As(err, &wfErr) {
			o.lastErr = wfErr
		} else {
			o.lastErr = wferrors.New(wferrors.KindProvisioning, "resume", err).WithOrder(orderID)
			err = o.lastErr
		}
		// The payment stands regardless; the checkpoint survives so the
		// activation is retried on next load. Surface with support contact.
		o.applyLocked(EventProvisioningFailed)
		o.resuming = false
		snap, fn := o.snapshotLocked(), o.onChange
		o.mu.Unlock()
		o.notify(snap, fn)
		return err
	}

	if activation != nil {
		o.subscription = &activation.Subscription
		o.pendingConnections = activation.PendingConnections
	}
	o.applyLocked(EventProvisioningDone)
	o.resuming = false
	snap, fn = o.snapshotLocked(), o.onChange
	o.mu.Unlock()
	o.notify(snap, fn)
	return nil
}

// resolveOrderContext recovers the tier and cycle for an order from the
// checkpoint and catalog; after a process restart nothing else survives.
func (o *Orchestrator) resolveOrderContext(ctx context.Context, orderID string) (billing.Tier, billing.BillingCycle, error) {
	tierID := ""
	cycle := billing.CycleMonthly

	cp, err := o.store.PendingOrder()
	if err != nil {
		return billing.Tier{}, "", fmt.Errorf("load checkout checkpoint: %w", err)
	}
	if cp != nil && cp.OrderID == orderID {
		tierID = cp.TierID
		if cp.Cycle.Valid() {
			cycle = cp.Cycle
		}
	}

	if tierID == "" {
		o.mu.Lock()
		tierID = o.chosenTier.ID
		if o.cycle.Valid() {
			cycle = o.cycle
		}
		o.mu.Unlock()
	}

	if !o.catalog.Loaded() {
		if _, err := o.catalog.Fetch(ctx); err != nil {
			log.Warn().Err(err).Msg("Could not fetch tier catalog while resuming")
		}
	}
	if tier, ok := o.catalog.Lookup(tierID); ok {
		return tier, cycle, nil
	}

	// The tier may have been withdrawn from sale after purchase. Activation
	// still proceeds; only the entitlement list is unavailable.
	log.Warn().
		Str("order_id", orderID).
		Str("tier_id", tierID).
		Msg("Tier for resumed order not in catalog, activating without entitlement data")
	return billing.Tier{ID: tierID}, cycle, nil
}

func (o *Orchestrator) clearCheckpointLocked(orderID string) {
	if err := o.store.ClearPendingOrder(); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Failed to clear order checkpoint")
	}
}

// Cancel stops any running poll and returns the workflow to tier selection.
// The pending order, if any, is left untouched server-side and offered for
// resumption.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.pollCancel != nil {
		o.pollCancel()
		o.pollCancel = nil
	}
	o.resetLocked()
	snap, fn := o.snapshotLocked(), o.onChange
	o.mu.Unlock()
	o.notify(snap, fn)
}

// Reset returns the workflow to tier selection after completion or failure
// ("try again" / "choose a different plan").
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.resetLocked()
	snap, fn := o.snapshotLocked(), o.onChange
	o.mu.Unlock()
	o.notify(snap, fn)
}

func (o *Orchestrator) resetLocked() {
	o.applyLocked(EventReset)
	o.chosenTier = billing.Tier{}
	o.cycle = ""
	o.orderID = ""
	o.lastErr = nil
	o.pendingConnections = nil

	if cp, err := o.store.PendingOrder(); err == nil && cp != nil {
		o.resumableOrderID = cp.OrderID
	} else {
		o.resumableOrderID = ""
	}
}

// RefreshSubscription re-queries the backend for the active subscription.
func (o *Orchestrator) RefreshSubscription(ctx context.Context) error {
	sub, err := o.subs.GetSubscription(ctx)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.subscription = sub
	o.mu.Unlock()
	return nil
}

// Subscription returns the local projection of the active subscription.
func (o *Orchestrator) Subscription() *billing.Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.subscription
}
