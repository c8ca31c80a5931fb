package billing

import "time"

// BillingCycle selects how a tier is billed.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

// Valid reports whether the cycle is one of the known values.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleAnnual
}

// OrderStatus is the lifecycle state of a billing order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
	OrderExpired   OrderStatus = "expired"
)

// Terminal reports whether the status will never change again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderCompleted, OrderFailed, OrderExpired:
		return true
	}
	return false
}

// Tier is a purchasable plan. Immutable once fetched.
type Tier struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MonthlyPrice int64    `json:"monthly_price"`
	AnnualPrice  int64    `json:"annual_price,omitempty"`
	Platforms    []string `json:"platforms"`
	Features     []string `json:"features"`
}

// annualMonths is the number of monthly payments an annual plan costs.
// Two months free compared to paying monthly.
const annualMonths = 10

// EffectiveAnnualPrice returns the annual price, defaulting to ten months
// of the monthly price when the backend omits one.
func (t Tier) EffectiveAnnualPrice() int64 {
	if t.AnnualPrice > 0 {
		return t.AnnualPrice
	}
	return t.MonthlyPrice * annualMonths
}

// PriceFor returns the price for the given billing cycle.
func (t Tier) PriceFor(cycle BillingCycle) int64 {
	if cycle == CycleAnnual {
		return t.EffectiveAnnualPrice()
	}
	return t.MonthlyPrice
}

// Order is a single billing transaction attempt. Owned by the backend;
// the console only holds a read projection.
type Order struct {
	ID        string       `json:"order_id"`
	TierID    string       `json:"tier_id"`
	Cycle     BillingCycle `json:"billing_cycle"`
	Status    OrderStatus  `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// CheckoutSession is the result of creating an order: the order to track
// and the gateway URL the user must be sent to.
type CheckoutSession struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
}

// Subscription is the user's currently active, paid-for tier.
type Subscription struct {
	TierID   string       `json:"tier_id"`
	Cycle    BillingCycle `json:"billing_cycle"`
	RenewsAt time.Time    `json:"renews_at"`
}
