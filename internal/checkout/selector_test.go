package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/chatwave/console/internal/billing"
	wferrors "github.com/chatwave/console/internal/errors"
)

type staticTiers []billing.Tier

func (s staticTiers) FetchTiers(_ context.Context) ([]billing.Tier, error) {
	return s, nil
}

func newTestSelector(t *testing.T, tiers []billing.Tier) (*TierSelector, *CheckpointStore) {
	t.Helper()
	catalog := billing.NewCatalog(staticTiers(tiers))
	if len(tiers) > 0 {
		if _, err := catalog.Fetch(context.Background()); err != nil {
			t.Fatalf("catalog fetch: %v", err)
		}
	}
	store := NewCheckpointStore(t.TempDir())
	return NewTierSelector(catalog, store), store
}

func TestSelectValidTier(t *testing.T) {
	selector, _ := newTestSelector(t, []billing.Tier{
		{ID: "t1", MonthlyPrice: 10},
		{ID: "t2", MonthlyPrice: 30},
	})

	tier, err := selector.Select("t2", billing.CycleMonthly)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if tier.ID != "t2" {
		t.Fatalf("unexpected tier: %+v", tier)
	}
}

func TestSelectValidationErrors(t *testing.T) {
	selector, _ := newTestSelector(t, []billing.Tier{{ID: "t1", MonthlyPrice: 10}})

	tests := []struct {
		name   string
		tierID string
		cycle  billing.BillingCycle
	}{
		{name: "empty_tier", tierID: "", cycle: billing.CycleMonthly},
		{name: "unknown_tier", tierID: "t9", cycle: billing.CycleMonthly},
		{name: "bad_cycle", tierID: "t1", cycle: billing.BillingCycle("weekly")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := selector.Select(tt.tierID, tt.cycle)
			if !errors.Is(err, wferrors.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSelectEmptyCatalog(t *testing.T) {
	selector, _ := newTestSelector(t, nil)
	_, err := selector.Select("t1", billing.CycleMonthly)
	if !errors.Is(err, wferrors.ErrValidation) {
		t.Fatalf("expected validation error for unfetched catalog, got %v", err)
	}
}

func TestSelectConflictsWithPendingOrder(t *testing.T) {
	selector, store := newTestSelector(t, []billing.Tier{
		{ID: "t1", MonthlyPrice: 10},
		{ID: "t2", MonthlyPrice: 30},
	})
	if err := store.SetPendingOrder("o1", "t1", billing.CycleMonthly, "https://pay.example/o1"); err != nil {
		t.Fatalf("SetPendingOrder: %v", err)
	}

	// Any selection conflicts while an order is pending, including for a
	// different tier.
	for _, tierID := range []string{"t1", "t2"} {
		_, err := selector.Select(tierID, billing.CycleMonthly)
		if !errors.Is(err, wferrors.ErrConflict) {
			t.Fatalf("select %s: expected conflict error, got %v", tierID, err)
		}
		var wfErr *wferrors.WorkflowError
		if !errors.As(err, &wfErr) || wfErr.OrderID != "o1" {
			t.Fatalf("conflict should carry the pending order ID, got %+v", wfErr)
		}
	}
}
