package out

import (
	"context"

	"triage_server/core/domain"
)

// HistoryRepository persists classification records. Implementations must
// support concurrent Insert calls from independent requests.
type HistoryRepository interface {
	// EnsureSchema creates tables/indexes if missing. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error
	// Insert stores rec and fills in rec.ID and rec.CreatedAt.
	Insert(ctx context.Context, rec *domain.HistoryRecord) error
	// ListRecent returns up to limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error)
	// ListAll returns every record, oldest first.
	ListAll(ctx context.Context) ([]*domain.HistoryRecord, error)
	Ping(ctx context.Context) error
}
