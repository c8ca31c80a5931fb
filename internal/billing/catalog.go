package billing

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// TierFetcher is the read side of the billing API the catalog needs.
type TierFetcher interface {
	FetchTiers(ctx context.Context) ([]Tier, error)
}

// Catalog holds the last-fetched set of purchasable tiers, ordered ascending
// by effective monthly price for display.
type Catalog struct {
	fetcher TierFetcher

	mu    sync.RWMutex
	tiers []Tier
}

// NewCatalog creates a catalog backed by the given fetcher.
func NewCatalog(fetcher TierFetcher) *Catalog {
	return &Catalog{fetcher: fetcher}
}

// Fetch retrieves the tiers from the backend, normalizes them, and replaces
// the cached set. The read has no side effects beyond the cache update, so
// callers may retry freely on network failure.
func (c *Catalog) Fetch(ctx context.Context) ([]Tier, error) {
	tiers, err := c.fetcher.FetchTiers(ctx)
	if err != nil {
		return nil, err
	}

	normalized := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if strings.TrimSpace(t.ID) == "" {
			continue
		}
		if t.AnnualPrice <= 0 {
			t.AnnualPrice = t.EffectiveAnnualPrice()
		}
		normalized = append(normalized, t)
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].MonthlyPrice < normalized[j].MonthlyPrice
	})

	c.mu.Lock()
	c.tiers = normalized
	c.mu.Unlock()

	return c.Tiers(), nil
}

// Tiers returns a copy of the cached tier list.
func (c *Catalog) Tiers() []Tier {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Lookup finds a tier by ID in the cached set.
func (c *Catalog) Lookup(tierID string) (Tier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, t := range c.tiers {
		if t.ID == tierID {
			return t, true
		}
	}
	return Tier{}, false
}

// Loaded reports whether a catalog has been fetched yet.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tiers) > 0
}
