// Package checkout implements the subscription purchase workflow: tier
// selection, payment gateway hand-off, payment confirmation polling, and
// entitlement provisioning.
package checkout

// State is the client-visible workflow state. Derived, never persisted;
// the only durable checkpoint is the in-flight order ID.
type State string

const (
	StateSelectingTier      State = "selecting_tier"
	StateAwaitingGateway    State = "awaiting_gateway"
	StateConfirmingPayment  State = "confirming_payment"
	StateProvisioningAccess State = "provisioning_access"
	StateComplete           State = "complete"
	StateFailed             State = "failed"
)

// Terminal reports whether the workflow has finished.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Event drives workflow state transitions.
type Event string

const (
	EventTierChosen         Event = "tier_chosen"
	EventGatewayInitiated   Event = "gateway_initiated"
	EventPaymentConfirmed   Event = "payment_confirmed"
	EventPaymentFailed      Event = "payment_failed"
	EventPollTimedOut       Event = "poll_timed_out"
	EventProvisioningDone   Event = "provisioning_done"
	EventProvisioningFailed Event = "provisioning_failed"
	EventReset              Event = "reset"
)

type transition struct {
	From  State
	Event Event
}

// eventTransitions is the full transition table. Forward-only, except Reset
// which returns to tier selection from anywhere (explicit user action or
// cancel). GatewayInitiated from SelectingTier covers workflow reconstruction
// after the gateway redirect tore down the process.
var eventTransitions = map[transition]State{
	{StateSelectingTier, EventTierChosen}:         StateAwaitingGateway,
	{StateAwaitingGateway, EventGatewayInitiated}: StateConfirmingPayment,
	{StateSelectingTier, EventGatewayInitiated}:   StateConfirmingPayment,

	{StateConfirmingPayment, EventPaymentConfirmed}: StateProvisioningAccess,
	{StateConfirmingPayment, EventPaymentFailed}:    StateFailed,
	{StateConfirmingPayment, EventPollTimedOut}:     StateFailed,

	{StateProvisioningAccess, EventProvisioningDone}:   StateComplete,
	{StateProvisioningAccess, EventProvisioningFailed}: StateFailed,

	{StateSelectingTier, EventReset}:      StateSelectingTier,
	{StateAwaitingGateway, EventReset}:    StateSelectingTier,
	{StateConfirmingPayment, EventReset}:  StateSelectingTier,
	{StateProvisioningAccess, EventReset}: StateSelectingTier,
	{StateComplete, EventReset}:           StateSelectingTier,
	{StateFailed, EventReset}:             StateSelectingTier,
}

// NextState returns the state reached by applying event in state from.
// ok is false for invalid event/state pairs, which callers treat as logged
// no-ops since duplicate network callbacks can produce them legitimately.
func NextState(from State, event Event) (State, bool) {
	to, ok := eventTransitions[transition{From: from, Event: event}]
	return to, ok
}

// ValidEventsFrom returns the events that have a transition from the state.
func ValidEventsFrom(from State) []Event {
	var events []Event
	for tr := range eventTransitions {
		if tr.From == from {
			events = append(events, tr.Event)
		}
	}
	return events
}
