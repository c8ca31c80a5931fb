package billing

import "testing"

func TestEffectiveAnnualPrice(t *testing.T) {
	tests := []struct {
		name string
		tier Tier
		want int64
	}{
		{name: "explicit_annual", tier: Tier{MonthlyPrice: 10, AnnualPrice: 96}, want: 96},
		{name: "defaults_to_ten_months", tier: Tier{MonthlyPrice: 10}, want: 100},
		{name: "defaults_for_larger_tier", tier: Tier{MonthlyPrice: 30}, want: 300},
		{name: "zero_monthly", tier: Tier{MonthlyPrice: 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tier.EffectiveAnnualPrice(); got != tt.want {
				t.Fatalf("EffectiveAnnualPrice: got=%d want=%d", got, tt.want)
			}
		})
	}
}

func TestPriceFor(t *testing.T) {
	tier := Tier{MonthlyPrice: 25}
	if got := tier.PriceFor(CycleMonthly); got != 25 {
		t.Fatalf("monthly price: got=%d want=25", got)
	}
	if got := tier.PriceFor(CycleAnnual); got != 250 {
		t.Fatalf("annual price: got=%d want=250", got)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	tests := []struct {
		status   OrderStatus
		terminal bool
	}{
		{OrderPending, false},
		{OrderCompleted, true},
		{OrderFailed, true},
		{OrderExpired, true},
		{OrderStatus("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.terminal {
				t.Fatalf("Terminal(%s): got=%t want=%t", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestBillingCycleValid(t *testing.T) {
	if !CycleMonthly.Valid() || !CycleAnnual.Valid() {
		t.Fatal("known cycles should be valid")
	}
	if BillingCycle("weekly").Valid() {
		t.Fatal("unknown cycle should be invalid")
	}
	if BillingCycle("").Valid() {
		t.Fatal("empty cycle should be invalid")
	}
}
