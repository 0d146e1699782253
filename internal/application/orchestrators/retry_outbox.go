package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"eduadmin/internal/adapters/email"
	outboxStore "eduadmin/internal/adapters/storage/outbox"
	domain "eduadmin/internal/domain/outbox"
)

// ActionExecutor replays one kind of outbox payload.
type ActionExecutor interface {
	Execute(ctx context.Context, payload string) error
}

// OutboxProcessor retries side effects that failed inline, with exponential backoff.
type OutboxProcessor struct {
	store     outboxStore.Store
	executors map[string]ActionExecutor
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
	now       func() time.Time
}

// NewOutboxProcessor binds executors by entry kind.
func NewOutboxProcessor(store outboxStore.Store, executors map[string]ActionExecutor) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		baseDelay: 30 * time.Second,
		maxDelay:  time.Hour,
		batchSize: 20,
		now:       time.Now,
	}
}

// ProcessPending attempts every pending entry whose backoff has elapsed.
// PRE: none
// POST: each attempted entry is saved with its new status; returns the number delivered
func (p *OutboxProcessor) ProcessPending(ctx context.Context) (int, error) {
	entries, err := p.store.ListPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox entries: %w", err)
	}
	delivered := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		now := p.now()
		if !entry.Due(now, p.baseDelay, p.maxDelay) {
			continue
		}
		exec, ok := p.executors[entry.Kind]
		if !ok {
			entry.Record(fmt.Errorf("no executor for kind %q", entry.Kind), now)
		} else {
			entry.Record(exec.Execute(ctx, entry.Payload), now)
		}
		switch entry.Status {
		case domain.StatusDelivered:
			delivered++
			zap.S().Infow("outbox_event", "event", "delivered", "entry_id", entry.ID, "kind", entry.Kind, "attempt", entry.Attempts)
		case domain.StatusFailed:
			zap.S().Errorw("outbox_event", "event", "gave_up", "entry_id", entry.ID, "kind", entry.Kind, "error", entry.LastError)
		default:
			zap.S().Warnw("outbox_event", "event", "retry_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "error", entry.LastError)
		}
		if err := p.store.Save(ctx, entry); err != nil {
			zap.S().Errorw("outbox_save_failed", "entry_id", entry.ID, "error", err)
		}
	}
	return delivered, nil
}

// EmailExecutor replays a JSON-encoded email.SendRequest.
type EmailExecutor struct {
	Sender email.Sender
}

// Execute decodes payload and hands it to the sender.
// PRE: payload is a JSON email.SendRequest
func (e EmailExecutor) Execute(ctx context.Context, payload string) error {
	var req email.SendRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return fmt.Errorf("decode email payload: %w", err)
	}
	_, err := e.Sender.Send(ctx, req)
	return err
}

// StartBackgroundWorker runs ProcessPending every interval until ctx ends.
func StartBackgroundWorker(ctx context.Context, p *OutboxProcessor, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				zap.S().Infow("outbox_worker_stopped")
				return
			case <-ticker.C:
				if _, err := p.ProcessPending(ctx); err != nil && ctx.Err() == nil {
					zap.S().Errorw("outbox_worker_failed", "error", err)
				}
			}
		}
	}()
}
