package domain

import (
	"context"

	decode "github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
)

// ReaderPort reads the legacy message store
type ReaderPort interface {
	// MaxRowID returns the highest message ROWID, 0 when the table is empty
	MaxRowID(ctx context.Context) (int64, error)
	// After returns up to limit messages with ROWID greater than rowID,
	// in ascending ROWID order
	After(ctx context.Context, rowID int64, limit int) ([]Message, error)
	// Recent returns the newest limit messages, newest first
	Recent(ctx context.Context, limit int) ([]Message, error)
}

// SubscriberPort lets consumers receive message events. The returned cancel
// detaches the subscription; slow subscribers drop events rather than block
type SubscriberPort interface {
	Subscribe(buffer int) (<-chan Event, func())
}

// PollerPort drives the store watermark loop
type PollerPort interface {
	Run(ctx context.Context) error
}

// Ports bundles cross-module dependencies injected into the messages module
type Ports struct {
	Reader    ReaderPort
	Submitter decode.SubmitterPort
}
