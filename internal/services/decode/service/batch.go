package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	perr "github.com/AKSizov/bluebubbles-server/internal/platform/errors"
	"github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"

	"github.com/google/uuid"
)

// State is the batch lifecycle state
type State uint8

// Batch states. Once a batch leaves StateFilling it never returns to it
const (
	StateFilling State = iota
	StatePending
	StateProcessing
	StateCompleted
	StateFailed
)

// String implements fmt.Stringer for logs
func (s State) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Batch is a bounded, time-boxed group of items sent to the helper together.
// It is owned by the dispatcher; it calls the helper but does not own it
type Batch struct {
	id       string
	capacity int

	mu         sync.Mutex
	state      State
	flushed    bool
	items      []*Item
	observers  []func(*Batch)
	fillTimer  *time.Timer
	terminalAt time.Time
}

// NewBatch creates a filling batch whose fill-deadline timer is already armed
func NewBatch(capacity int, fillDeadline time.Duration) *Batch {
	b := &Batch{
		id:       uuid.NewString(),
		capacity: capacity,
		state:    StateFilling,
	}
	b.fillTimer = time.AfterFunc(fillDeadline, b.ready)
	return b
}

// ID returns the batch id, also used as the helper request correlation id
func (b *Batch) ID() string { return b.id }

// State returns the current lifecycle state
func (b *Batch) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Len returns the current item count
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Items returns a snapshot of the item set
func (b *Batch) Items() []*Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Item, len(b.items))
	copy(out, b.items)
	return out
}

// Accepting reports whether Add can still succeed
func (b *Batch) Accepting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateFilling && !b.flushed && len(b.items) < b.capacity
}

// Add appends an item while filling. The capacity trigger fires the
// readiness observers, so callers must not hold locks the observers take
func (b *Batch) Add(it *Item) error {
	b.mu.Lock()
	if b.flushed || b.state != StateFilling {
		state := b.state
		b.mu.Unlock()
		return perr.InvalidArgf("batch %s not accepting items (state %s)", b.id, state)
	}
	if len(b.items) >= b.capacity {
		b.mu.Unlock()
		return perr.InvalidArgf("batch %s at capacity %d", b.id, b.capacity)
	}
	b.items = append(b.items, it)
	full := len(b.items) == b.capacity
	b.mu.Unlock()

	if full {
		b.ready()
	}
	return nil
}

// OnReady registers a readiness observer. Observers fire exactly once at the
// FILLING->PENDING transition; registering after the transition fires now
func (b *Batch) OnReady(fn func(*Batch)) {
	b.mu.Lock()
	if b.state == StateFilling && !b.flushed {
		b.observers = append(b.observers, fn)
		b.mu.Unlock()
		return
	}
	past := b.state != StateFilling
	b.mu.Unlock()
	if past {
		fn(b)
	}
}

// ready performs the FILLING->PENDING transition. Idempotent: a second
// trigger (size threshold and deadline racing) is a no-op
func (b *Batch) ready() {
	b.mu.Lock()
	if b.flushed || b.state != StateFilling {
		b.mu.Unlock()
		return
	}
	b.state = StatePending
	b.fillTimer.Stop()
	obs := b.observers
	b.observers = nil
	b.mu.Unlock()

	for _, fn := range obs {
		fn(b)
	}
}

// claim performs PENDING->PROCESSING, reserving the batch for one caller
func (b *Batch) claim() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed || b.state != StatePending {
		return false
	}
	b.state = StateProcessing
	return true
}

// setTerminal records the terminal state and timestamp
func (b *Batch) setTerminal(s State) {
	b.mu.Lock()
	b.state = s
	b.terminalAt = time.Now()
	b.mu.Unlock()
}

// Process claims the batch and issues exactly one decode call covering all
// of its items. Ids answered by the helper complete their items; ids the
// response omits fail with NoResponse; a failed call fails every item.
// Returns false when the batch could not be claimed (already taken/flushed)
func (b *Batch) Process(ctx context.Context, helper domain.HelperPort, timeout time.Duration) bool {
	if !b.claim() {
		return false
	}

	items := b.Items()
	if len(items) == 0 {
		// never dispatch an empty batch
		b.setTerminal(StateCompleted)
		return true
	}

	entries := make([]domain.RequestEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, domain.RequestEntry{ID: it.ID(), Payload: it.Payload()})
	}

	resp, err := helper.Send(ctx, b.id, entries, timeout)
	if err != nil {
		for _, it := range items {
			it.Fail(err)
		}
		b.setTerminal(StateFailed)
		return true
	}

	byID := make(map[string]json.RawMessage, len(resp))
	for _, e := range resp {
		byID[e.ID] = e.Body
	}
	for _, it := range items {
		if body, ok := byID[it.ID()]; ok {
			it.Complete(body)
			continue
		}
		it.Fail(perr.NoResponsef("no response from helper for item %s", it.ID()))
	}
	b.setTerminal(StateCompleted)
	return true
}

// Flush fails all non-terminal items with reason and clears observers.
// It does not move the batch to COMPLETED/FAILED; a flushed batch is
// discarded without accounting and never retried
func (b *Batch) Flush(reason error) {
	b.mu.Lock()
	if b.flushed {
		b.mu.Unlock()
		return
	}
	b.flushed = true
	b.fillTimer.Stop()
	b.observers = nil
	items := make([]*Item, len(b.items))
	copy(items, b.items)
	if b.terminalAt.IsZero() {
		b.terminalAt = time.Now()
	}
	b.mu.Unlock()

	for _, it := range items {
		it.Fail(reason)
	}
}

// Terminal reports whether the batch reached COMPLETED/FAILED or was flushed
func (b *Batch) Terminal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed || b.state == StateCompleted || b.state == StateFailed
}

// TerminalAt returns when the batch became terminal (zero while live)
func (b *Batch) TerminalAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.terminalAt
}
