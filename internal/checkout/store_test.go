package checkout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chatwave/console/internal/billing"
)

func TestCheckpointStoreLoadMissing(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())
	cp, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp != nil {
		t.Fatalf("expected nil checkpoint for missing file, got %+v", cp)
	}
}

func TestCheckpointStoreSetAndClearPendingOrder(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())

	if err := store.SetPendingOrder("o1", "t2", billing.CycleAnnual, "https://pay.example/o1"); err != nil {
		t.Fatalf("SetPendingOrder: %v", err)
	}

	pending, err := store.PendingOrder()
	if err != nil {
		t.Fatalf("PendingOrder: %v", err)
	}
	if pending == nil {
		t.Fatal("expected pending order")
	}
	if pending.OrderID != "o1" || pending.TierID != "t2" || pending.Cycle != billing.CycleAnnual {
		t.Fatalf("unexpected checkpoint: %+v", pending)
	}

	if err := store.ClearPendingOrder(); err != nil {
		t.Fatalf("ClearPendingOrder: %v", err)
	}
	pending, err = store.PendingOrder()
	if err != nil {
		t.Fatalf("PendingOrder after clear: %v", err)
	}
	if pending != nil {
		t.Fatalf("expected no pending order after clear, got %+v", pending)
	}
}

func TestCheckpointSurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()

	store := NewCheckpointStore(dir)
	if err := store.SetPendingOrder("o1", "t2", billing.CycleMonthly, "https://pay.example/o1"); err != nil {
		t.Fatalf("SetPendingOrder: %v", err)
	}

	// A fresh store simulates the process restarting after the gateway
	// redirect tore it down.
	reloaded := NewCheckpointStore(dir)
	pending, err := reloaded.PendingOrder()
	if err != nil {
		t.Fatalf("PendingOrder: %v", err)
	}
	if pending == nil || pending.OrderID != "o1" {
		t.Fatalf("expected persisted order o1, got %+v", pending)
	}
}

func TestProcessedMarkers(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())

	processed, err := store.IsProcessed("o1")
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if processed {
		t.Fatal("order should not be processed yet")
	}

	if err := store.MarkProcessed("o1"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	processed, err = store.IsProcessed("o1")
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if !processed {
		t.Fatal("order should be processed")
	}

	// Marking again is a no-op, not a duplicate entry.
	if err := store.MarkProcessed("o1"); err != nil {
		t.Fatalf("MarkProcessed again: %v", err)
	}
	cp, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cp.ProcessedOrders) != 1 {
		t.Fatalf("expected 1 processed marker, got %d", len(cp.ProcessedOrders))
	}
}

func TestClearPendingKeepsProcessedMarkers(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())

	if err := store.SetPendingOrder("o1", "t1", billing.CycleMonthly, "https://pay.example/o1"); err != nil {
		t.Fatalf("SetPendingOrder: %v", err)
	}
	if err := store.MarkProcessed("o0"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if err := store.ClearPendingOrder(); err != nil {
		t.Fatalf("ClearPendingOrder: %v", err)
	}

	processed, err := store.IsProcessed("o0")
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if !processed {
		t.Fatal("processed markers must survive clearing the pending order")
	}
}

func TestCheckpointWriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	store := NewCheckpointStore(dir)

	if err := store.SetPendingOrder("o1", "t1", billing.CycleMonthly, "https://pay.example/o1"); err != nil {
		t.Fatalf("SetPendingOrder: %v", err)
	}

	// No temp file left behind after a successful commit.
	if _, err := os.Stat(filepath.Join(dir, checkpointFile+".tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be gone, stat err=%v", err)
	}
}

func TestCompleteOrderClearsAndMarksTogether(t *testing.T) {
	dir := t.TempDir()
	store := NewCheckpointStore(dir)
	if err := store.SetPendingOrder("o1", "t2", billing.CycleMonthly, "https://pay.example/o1"); err != nil {
		t.Fatalf("SetPendingOrder: %v", err)
	}

	if err := store.CompleteOrder("o1"); err != nil {
		t.Fatalf("CompleteOrder: %v", err)
	}

	reloaded := NewCheckpointStore(dir)
	pending, err := reloaded.PendingOrder()
	if err != nil {
		t.Fatalf("PendingOrder: %v", err)
	}
	if pending != nil {
		t.Fatalf("expected checkpoint cleared, got %+v", pending)
	}
	processed, err := reloaded.IsProcessed("o1")
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if !processed {
		t.Fatal("expected processed marker after completion")
	}
}

func TestCompleteOrderFailedWriteKeepsCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store := NewCheckpointStore(dir)
	if err := store.SetPendingOrder("o1", "t2", billing.CycleMonthly, "https://pay.example/o1"); err != nil {
		t.Fatalf("SetPendingOrder: %v", err)
	}

	// Block the temp-file path so the commit cannot be written. The clear
	// and the marker land together or not at all: an interrupted completion
	// must leave the pending order in place to retry from.
	blocker := filepath.Join(dir, checkpointFile+".tmp")
	if err := os.Mkdir(blocker, 0o700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := store.CompleteOrder("o1"); err == nil {
		t.Fatal("expected write failure")
	}
	if err := os.Remove(blocker); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	pending, err := store.PendingOrder()
	if err != nil {
		t.Fatalf("PendingOrder: %v", err)
	}
	if pending == nil || pending.OrderID != "o1" {
		t.Fatalf("failed completion must keep the checkpoint, got %+v", pending)
	}
	processed, err := store.IsProcessed("o1")
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if processed {
		t.Fatal("failed completion must not leave a processed marker")
	}
}

func TestCompleteOrderRequiresOrderID(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())
	if err := store.CompleteOrder(" "); err == nil {
		t.Fatal("expected error for empty order ID")
	}
}

func TestMarkProcessedRequiresOrderID(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())
	if err := store.MarkProcessed("  "); err == nil {
		t.Fatal("expected error for empty order ID")
	}
}
