package port

import (
	"context"
	"time"

	"github.com/rl1809/review-platform/internal/core/domain"
)

// OrderLog is the append-only order stream read through a consumer group.
type OrderLog interface {
	EnsureGroup(ctx context.Context) error

	// ReadNew blocks up to block for entries never delivered to the group.
	// A timeout yields an empty slice and a nil error.
	ReadNew(ctx context.Context, consumer string, count int64, block time.Duration) ([]domain.OrderEntry, error)

	// ReadPending returns up to count entries delivered to consumer but not yet acknowledged,
	// starting after the entry id after ("0" for the head), with their delivery counts.
	ReadPending(ctx context.Context, consumer, after string, count int64) ([]domain.OrderEntry, error)

	Ack(ctx context.Context, entryID string) error

	// DeadLetter copies the entry to the dead-letter stream and acknowledges it.
	DeadLetter(ctx context.Context, entry domain.OrderEntry, reason string) error
}
