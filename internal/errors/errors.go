package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflicting pending order")
	ErrNetwork      = errors.New("network failure")
	ErrGateway      = errors.New("payment gateway unavailable")
	ErrTimeout      = errors.New("payment confirmation timed out")
	ErrProvisioning = errors.New("entitlement provisioning failed")
)

// Kind categorizes a checkout workflow error.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindNetwork      Kind = "network"
	KindGateway      Kind = "gateway"
	KindTimeout      Kind = "timeout"
	KindProvisioning Kind = "provisioning"
)

// WorkflowError is a structured error for checkout workflow operations.
type WorkflowError struct {
	Kind       Kind
	Op         string // Operation that failed (e.g., "fetch_tiers", "create_order")
	OrderID    string // Order involved, if any
	TierID     string // Tier involved, if any
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *WorkflowError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s failed for order %s: %v", e.Op, e.OrderID, e.Err)
	}
	if e.TierID != "" {
		return fmt.Sprintf("%s failed for tier %s: %v", e.Op, e.TierID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is so callers can match on the base error types.
func (e *WorkflowError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrGateway:
		return e.Kind == KindGateway
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrProvisioning:
		return e.Kind == KindProvisioning
	}

	return errors.Is(e.Err, target)
}

// New creates a WorkflowError of the given kind.
func New(kind Kind, op string, err error) *WorkflowError {
	return &WorkflowError{
		Kind:      kind,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: kind == KindNetwork,
	}
}

// WithOrder attaches the order ID to the error.
func (e *WorkflowError) WithOrder(orderID string) *WorkflowError {
	e.OrderID = orderID
	return e
}

// WithTier attaches the tier ID to the error.
func (e *WorkflowError) WithTier(tierID string) *WorkflowError {
	e.TierID = tierID
	return e
}

// WithStatusCode attaches an HTTP status code and adjusts retryability.
func (e *WorkflowError) WithStatusCode(code int) *WorkflowError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

// KindOf returns the kind of a workflow error, or an empty kind otherwise.
func KindOf(err error) Kind {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Retryable
	}
	return errors.Is(err, ErrNetwork)
}
