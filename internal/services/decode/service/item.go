package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Item is a single pending decode request. It is owned by exactly one batch
// for its lifetime; callers only ever see the domain.Handle view
type Item struct {
	id      string
	payload []byte

	mu       sync.Mutex
	terminal bool
	result   json.RawMessage
	err      error
	done     chan struct{}
}

// NewItem creates a non-terminal item with a fresh correlation id
func NewItem(payload []byte) *Item {
	return &Item{
		id:      uuid.NewString(),
		payload: payload,
		done:    make(chan struct{}),
	}
}

// ID returns the correlation id
func (it *Item) ID() string { return it.id }

// Payload returns the opaque input bytes
func (it *Item) Payload() []byte { return it.payload }

// Complete resolves the item with a decoded body. No-op when already terminal
func (it *Item) Complete(result json.RawMessage) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.terminal {
		return
	}
	it.terminal = true
	it.result = result
	close(it.done)
}

// Fail resolves the item with a failure cause. No-op when already terminal
func (it *Item) Fail(cause error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.terminal {
		return
	}
	it.terminal = true
	it.err = cause
	close(it.done)
}

// Err returns the failure cause once terminal, nil otherwise
func (it *Item) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err
}

// Terminal reports whether the item has resolved
func (it *Item) Terminal() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.terminal
}

// Done is closed once the item is terminal
func (it *Item) Done() <-chan struct{} { return it.done }

// AwaitResult blocks until the item resolves or ctx is done
func (it *Item) AwaitResult(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-it.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.err != nil {
		return nil, it.err
	}
	return it.result, nil
}
