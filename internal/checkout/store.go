package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chatwave/console/internal/billing"
)

const checkpointFile = "checkout.json"

// Checkpoint is the durable client-side record of an in-flight purchase.
// OrderID is the one piece of state that must survive the full-page gateway
// redirect; ProcessedOrders guards provisioning against being re-triggered
// by duplicate terminal observations.
type Checkpoint struct {
	OrderID         string               `json:"order_id,omitempty"`
	TierID          string               `json:"tier_id,omitempty"`
	Cycle           billing.BillingCycle `json:"billing_cycle,omitempty"`
	PaymentURL      string               `json:"payment_url,omitempty"`
	ProcessedOrders []string             `json:"processed_orders,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// CheckpointStore persists the checkout checkpoint as a single JSON file
// under the data directory, written atomically via rename.
type CheckpointStore struct {
	dataDir string
	mu      sync.Mutex
}

// NewCheckpointStore creates a store rooted at dataDir.
func NewCheckpointStore(dataDir string) *CheckpointStore {
	return &CheckpointStore{dataDir: dataDir}
}

func (s *CheckpointStore) path() string {
	return filepath.Join(s.dataDir, checkpointFile)
}

// Load returns the current checkpoint. A missing or empty file means no
// workflow is in progress and returns (nil, nil).
func (s *CheckpointStore) Load() (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *CheckpointStore) loadLocked() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkout checkpoint: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkout checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *CheckpointStore) saveLocked(cp *Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint is required")
	}
	cp.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkout checkpoint: %w", err)
	}

	path := s.path()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp checkout checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit checkout checkpoint: %w", err)
	}
	return nil
}

// SetPendingOrder records the in-flight order before the gateway hand-off.
func (s *CheckpointStore) SetPendingOrder(orderID, tierID string, cycle billing.BillingCycle, paymentURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.loadLocked()
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &Checkpoint{}
	}
	cp.OrderID = strings.TrimSpace(orderID)
	cp.TierID = strings.TrimSpace(tierID)
	cp.Cycle = cycle
	cp.PaymentURL = strings.TrimSpace(paymentURL)
	return s.saveLocked(cp)
}

// ClearPendingOrder removes the in-flight order record while keeping the
// processed-order markers.
func (s *CheckpointStore) ClearPendingOrder() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.loadLocked()
	if err != nil {
		return err
	}
	if cp == nil {
		return nil
	}
	cp.OrderID = ""
	cp.TierID = ""
	cp.Cycle = ""
	cp.PaymentURL = ""
	return s.saveLocked(cp)
}

// PendingOrder returns the persisted in-flight order checkpoint, if any.
func (s *CheckpointStore) PendingOrder() (*Checkpoint, error) {
	cp, err := s.Load()
	if err != nil {
		return nil, err
	}
	if cp == nil || strings.TrimSpace(cp.OrderID) == "" {
		return nil, nil
	}
	return cp, nil
}

// CompleteOrder clears the pending order and records its processed marker in
// a single write. The two must never be separated: a crash after clearing but
// before marking would leave no checkpoint to retry from while the order is
// paid, so either both land or neither does.
func (s *CheckpointStore) CompleteOrder(orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.loadLocked()
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &Checkpoint{}
	}
	cp.OrderID = ""
	cp.TierID = ""
	cp.Cycle = ""
	cp.PaymentURL = ""
	if !containsOrder(cp.ProcessedOrders, orderID) {
		cp.ProcessedOrders = append(cp.ProcessedOrders, orderID)
	}
	return s.saveLocked(cp)
}

func containsOrder(ids []string, orderID string) bool {
	for _, id := range ids {
		if id == orderID {
			return true
		}
	}
	return false
}

// MarkProcessed records that a completed order has been acted on. Only set
// after successful activation so a failed activation is retried on reload.
func (s *CheckpointStore) MarkProcessed(orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.loadLocked()
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &Checkpoint{}
	}
	if containsOrder(cp.ProcessedOrders, orderID) {
		return nil
	}
	cp.ProcessedOrders = append(cp.ProcessedOrders, orderID)
	return s.saveLocked(cp)
}

// IsProcessed reports whether the order has already been acted on.
func (s *CheckpointStore) IsProcessed(orderID string) (bool, error) {
	cp, err := s.Load()
	if err != nil {
		return false, err
	}
	if cp == nil {
		return false, nil
	}
	return containsOrder(cp.ProcessedOrders, strings.TrimSpace(orderID)), nil
}
