package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatwave/console/internal/billing"
	wferrors "github.com/chatwave/console/internal/errors"
)

type scriptedStatuses struct {
	mu       sync.Mutex
	statuses []billing.OrderStatus
	errs     []error
	calls    int
}

func (s *scriptedStatuses) GetOrderStatus(_ context.Context, _ string) (billing.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.statuses) {
		return s.statuses[i], nil
	}
	return billing.OrderPending, nil
}

func (s *scriptedStatuses) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestPollStopsOnTerminalStatus(t *testing.T) {
	statuses := &scriptedStatuses{statuses: []billing.OrderStatus{
		billing.OrderPending,
		billing.OrderPending,
		billing.OrderCompleted,
	}}
	poller := NewStatusPoller(statuses, time.Millisecond, time.Second)

	status, err := poller.Poll(context.Background(), "o1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status != billing.OrderCompleted {
		t.Fatalf("unexpected status: %s", status)
	}
	if got := statuses.callCount(); got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}
}

func TestPollStopsOnFailedStatus(t *testing.T) {
	statuses := &scriptedStatuses{statuses: []billing.OrderStatus{billing.OrderFailed}}
	poller := NewStatusPoller(statuses, time.Millisecond, time.Second)

	status, err := poller.Poll(context.Background(), "o1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status != billing.OrderFailed {
		t.Fatalf("unexpected status: %s", status)
	}
}

func TestPollDeadlineExceeded(t *testing.T) {
	statuses := &scriptedStatuses{}
	poller := NewStatusPoller(statuses, time.Millisecond, time.Second)

	// Drive the deadline from a fake clock: the second check is already
	// past the cutoff.
	now := time.Now()
	var calls int
	poller.nowFn = func() time.Time {
		calls++
		if calls == 1 {
			return now
		}
		return now.Add(2 * time.Second)
	}

	_, err := poller.Poll(context.Background(), "o1")
	if !errors.Is(err, wferrors.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	var wfErr *wferrors.WorkflowError
	if !errors.As(err, &wfErr) || wfErr.OrderID != "o1" {
		t.Fatalf("timeout should carry the order ID, got %+v", wfErr)
	}
}

func TestPollMaxAttempts(t *testing.T) {
	statuses := &scriptedStatuses{}
	poller := NewStatusPoller(statuses, time.Millisecond, time.Hour)
	poller.maxAttempts = 3

	_, err := poller.Poll(context.Background(), "o1")
	if !errors.Is(err, wferrors.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if got := statuses.callCount(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestPollToleratesTransientErrors(t *testing.T) {
	statuses := &scriptedStatuses{
		errs:     []error{errors.New("connection refused"), nil},
		statuses: []billing.OrderStatus{"", billing.OrderCompleted},
	}
	poller := NewStatusPoller(statuses, time.Millisecond, time.Second)

	status, err := poller.Poll(context.Background(), "o1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status != billing.OrderCompleted {
		t.Fatalf("unexpected status: %s", status)
	}
}

func TestPollCancellation(t *testing.T) {
	statuses := &scriptedStatuses{}
	poller := NewStatusPoller(statuses, 50*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := poller.Poll(ctx, "o1")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poll did not stop after cancellation")
	}
}

func TestPollCancelledBeforeStart(t *testing.T) {
	statuses := &scriptedStatuses{}
	poller := NewStatusPoller(statuses, time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := poller.Poll(ctx, "o1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := statuses.callCount(); got != 0 {
		t.Fatalf("cancelled poll must not query status, got %d calls", got)
	}
}
