package audit

import "context"

// Store persists audit entries. Interface owned by the domain;
// implementations handle batching, rotation, and durability.
type Store interface {
	// Append stores entries. Implementations must treat the trail as
	// append-only: entries are never rewritten or removed on write.
	Append(ctx context.Context, entries ...Entry) error

	// Flush forces pending entries to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}
