package settlement

import (
	"context"
	"time"

	"routeledger/internal/core/id"
)

// Repository persists archives and the settlement journal.
// Archives are append-only: there is no update or delete.
type Repository interface {
	CreateArchive(ctx context.Context, a *Archive) error
	GetArchive(ctx context.Context, archiveID id.ID) (*Archive, error)

	// ListArchives returns archives dated within [from, to] (zero bound = open),
	// ordered by date and sequence.
	ListArchives(ctx context.Context, from, to time.Time) ([]*Archive, error)

	CreateIntent(ctx context.Context, i *Intent) error
	UpdateIntent(ctx context.Context, i *Intent) error
	ListIntents(ctx context.Context, status IntentStatus) ([]*Intent, error)
}
