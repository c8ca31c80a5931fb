package checkout

import (
	"fmt"
	"strings"

	"github.com/chatwave/console/internal/billing"
	wferrors "github.com/chatwave/console/internal/errors"
)

// TierSelector validates a tier choice against the last-fetched catalog and
// the pending-order invariant.
type TierSelector struct {
	catalog *billing.Catalog
	store   *CheckpointStore
}

// NewTierSelector creates a selector.
func NewTierSelector(catalog *billing.Catalog, store *CheckpointStore) *TierSelector {
	return &TierSelector{catalog: catalog, store: store}
}

// Select validates the choice and returns the chosen tier. A pending order
// yields a conflict error carrying that order's ID so the UI can offer to
// resume it instead; no new order is created here.
func (s *TierSelector) Select(tierID string, cycle billing.BillingCycle) (billing.Tier, error) {
	tierID = strings.TrimSpace(tierID)
	if tierID == "" {
		return billing.Tier{}, wferrors.New(wferrors.KindValidation, "select_tier",
			fmt.Errorf("tier ID is required"))
	}
	if !cycle.Valid() {
		return billing.Tier{}, wferrors.New(wferrors.KindValidation, "select_tier",
			fmt.Errorf("unknown billing cycle %q", cycle)).WithTier(tierID)
	}
	if !s.catalog.Loaded() {
		return billing.Tier{}, wferrors.New(wferrors.KindValidation, "select_tier",
			fmt.Errorf("tier catalog has not been fetched")).WithTier(tierID)
	}

	tier, ok := s.catalog.Lookup(tierID)
	if !ok {
		return billing.Tier{}, wferrors.New(wferrors.KindValidation, "select_tier",
			fmt.Errorf("tier %q not in catalog", tierID)).WithTier(tierID)
	}

	pending, err := s.store.PendingOrder()
	if err != nil {
		return billing.Tier{}, fmt.Errorf("check pending order: %w", err)
	}
	if pending != nil {
		return billing.Tier{}, wferrors.New(wferrors.KindConflict, "select_tier",
			fmt.Errorf("order %s is still pending", pending.OrderID)).
			WithTier(tierID).WithOrder(pending.OrderID)
	}

	return tier, nil
}
