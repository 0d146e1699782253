package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Entry states.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// KindEmail replays an email.SendRequest.
const KindEmail = "email"

// DefaultMaxAttempts bounds retries when an entry does not set its own limit.
const DefaultMaxAttempts = 5

var (
	ErrEmptyKind    = errors.New("outbox kind is required")
	ErrEmptyPayload = errors.New("outbox payload is required")
)

// Entry is one side effect that failed inline and waits for a retry.
type Entry struct {
	ID              string
	Kind            string
	Payload         string // JSON, decoded by the executor registered for Kind
	Status          string
	Attempts        int
	MaxAttempts     int
	LastAttemptedAt time.Time
	CreatedAt       time.Time
	LastError       string
}

// New builds a pending entry. The inline attempt that failed counts as the first one.
// PRE: kind and payload are non-empty
// POST: returns a validated pending entry with a fresh id
func New(kind, payload string, cause error, now time.Time) (Entry, error) {
	e := Entry{
		ID:              uuid.NewString(),
		Kind:            kind,
		Payload:         payload,
		Status:          StatusPending,
		Attempts:        1,
		MaxAttempts:     DefaultMaxAttempts,
		LastAttemptedAt: now,
		CreatedAt:       now,
	}
	if cause != nil {
		e.LastError = cause.Error()
	}
	return e, e.Validate()
}

// Validate checks the fields every stored entry needs.
func (e Entry) Validate() error {
	if e.Kind == "" {
		return ErrEmptyKind
	}
	if e.Payload == "" {
		return ErrEmptyPayload
	}
	if e.CreatedAt.IsZero() {
		return errors.New("created_at must be set")
	}
	return nil
}

// IsTerminal reports whether the entry will never be attempted again.
func (e Entry) IsTerminal() bool {
	return e.Status == StatusDelivered || e.Status == StatusFailed
}

// NextRetryDelay is base * 2^(attempts-1), capped at limit.
// PRE: base > 0
// POST: returns a delay in [base, limit]
func (e Entry) NextRetryDelay(base, limit time.Duration) time.Duration {
	d := base
	for i := 1; i < e.Attempts && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

// Due reports whether a pending entry's backoff has elapsed at now.
func (e Entry) Due(now time.Time, base, limit time.Duration) bool {
	if e.IsTerminal() {
		return false
	}
	if e.LastAttemptedAt.IsZero() {
		return true
	}
	return !now.Before(e.LastAttemptedAt.Add(e.NextRetryDelay(base, limit)))
}

// Record applies the outcome of one attempt made at now.
// POST: delivered on success; failed once MaxAttempts is reached; pending otherwise
func (e *Entry) Record(err error, now time.Time) {
	e.Attempts++
	e.LastAttemptedAt = now
	if err == nil {
		e.Status = StatusDelivered
		e.LastError = ""
		return
	}
	e.LastError = err.Error()
	limit := e.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	if e.Attempts >= limit {
		e.Status = StatusFailed
	}
}
