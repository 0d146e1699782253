package outbox

import (
	"context"
	"time"

	domain "eduadmin/internal/domain/outbox"
)

// Store persists entries waiting for a retry.
type Store interface {
	// Save inserts or replaces e.
	// PRE: e.Validate() == nil
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns up to limit pending entries, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)

	// PurgeTerminal deletes delivered and failed entries created before cutoff.
	// POST: returns the number of rows removed
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)
}
