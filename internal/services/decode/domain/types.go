// Package domain defines the types and interfaces for the decode service
package domain

import (
	"context"
	"encoding/json"
)

// Handle is the completion handle returned to a decode caller.
// The caller never holds the work item itself, only this read-only view
type Handle interface {
	// ID returns the correlation id assigned at submission
	ID() string
	// AwaitResult blocks until the item is terminal or ctx is done.
	// May be awaited by multiple observers; all observe the same outcome
	AwaitResult(ctx context.Context) (json.RawMessage, error)
	// Done is closed once the item is terminal
	Done() <-chan struct{}
	// Terminal reports whether the item has resolved
	Terminal() bool
}

// RequestEntry is one payload in a bulk decode request to the helper
type RequestEntry struct {
	ID      string
	Payload []byte
}

// ResponseEntry is one decoded body in a helper response
type ResponseEntry struct {
	ID   string
	Body json.RawMessage
}
