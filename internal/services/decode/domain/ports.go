package domain

import (
	"context"
	"time"
)

// SubmitterPort accepts decode work
type SubmitterPort interface {
	// Submit enqueues one opaque payload for decoding, non-blocking.
	// Rejects with a CapacityExceeded error when the batch cache is full
	Submit(ctx context.Context, payload []byte) (Handle, error)
}

// FlusherPort fails all outstanding work, used on shutdown/restart boundaries
type FlusherPort interface {
	Flush()
}

// HelperPort is the seam to the external decoder process.
// One call covers a whole batch; answers are correlated per entry id
type HelperPort interface {
	Send(ctx context.Context, requestID string, entries []RequestEntry, timeout time.Duration) ([]ResponseEntry, error)
}

// Ports bundles cross-module dependencies injected into the decode module
type Ports struct {
	Helper HelperPort
}
