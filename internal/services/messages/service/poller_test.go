package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	perr "github.com/AKSizov/bluebubbles-server/internal/platform/errors"
	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
	"github.com/AKSizov/bluebubbles-server/internal/platform/telemetry"
	decode "github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
	"github.com/AKSizov/bluebubbles-server/internal/services/messages/domain"
)

// fakeReader serves messages from a mutable in-memory slice
type fakeReader struct {
	mu   sync.Mutex
	rows []domain.Message
}

func (f *fakeReader) add(m domain.Message) {
	f.mu.Lock()
	f.rows = append(f.rows, m)
	f.mu.Unlock()
}

func (f *fakeReader) MaxRowID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rows) == 0 {
		return 0, nil
	}
	return f.rows[len(f.rows)-1].RowID, nil
}

func (f *fakeReader) After(_ context.Context, rowID int64, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.rows {
		if m.RowID > rowID && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeReader) Recent(_ context.Context, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.rows[i])
	}
	return out, nil
}

// fakeHandle resolves immediately
type fakeHandle struct {
	body json.RawMessage
	err  error
	done chan struct{}
}

func newFakeHandle(body json.RawMessage, err error) *fakeHandle {
	done := make(chan struct{})
	close(done)
	return &fakeHandle{body: body, err: err, done: done}
}

func (h *fakeHandle) ID() string            { return "fake" }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Terminal() bool        { return true }
func (h *fakeHandle) AwaitResult(context.Context) (json.RawMessage, error) {
	return h.body, h.err
}

// fakeSubmitter echoes payloads as decoded JSON strings
type fakeSubmitter struct {
	submitErr error
	awaitErr  error
}

func (f *fakeSubmitter) Submit(_ context.Context, payload []byte) (decode.Handle, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	body, _ := json.Marshal(string(payload))
	return newFakeHandle(body, f.awaitErr), nil
}

func testPoller(reader domain.ReaderPort, submitter decode.SubmitterPort, hub *Hub) *Poller {
	return NewPoller(Config{
		Interval:     5 * time.Millisecond,
		BatchLimit:   50,
		AwaitTimeout: time.Second,
	}, reader, submitter, hub, logger.Named("poller-test"), telemetry.New())
}

func TestPollerEmitsOnlyNewRows(t *testing.T) {
	reader := &fakeReader{}
	reader.add(domain.Message{RowID: 1, GUID: "old", Text: "pre-existing"})

	hub := NewHub()
	events, cancel := hub.Subscribe(16)
	defer cancel()

	p := testPoller(reader, &fakeSubmitter{}, hub)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond) // let the watermark settle
	reader.add(domain.Message{RowID: 2, GUID: "new", AttributedBody: []byte("rich")})

	select {
	case ev := <-events:
		if ev.Message.GUID != "new" {
			t.Fatalf("guid = %q, want new (old rows must not replay)", ev.Message.GUID)
		}
		if string(ev.Message.DecodedBody) != `"rich"` {
			t.Fatalf("decoded body = %s", ev.Message.DecodedBody)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event within deadline")
	}
}

func TestPollerFallsBackOnDecodeFailure(t *testing.T) {
	reader := &fakeReader{}
	hub := NewHub()
	events, cancel := hub.Subscribe(16)
	defer cancel()

	p := testPoller(reader, &fakeSubmitter{awaitErr: perr.Timeoutf("helper gone")}, hub)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	reader.add(domain.Message{RowID: 1, GUID: "g", Text: "plain", AttributedBody: []byte("rich")})

	select {
	case ev := <-events:
		if ev.Message.Text != "plain" {
			t.Fatalf("text = %q", ev.Message.Text)
		}
		if ev.Message.DecodedBody != nil {
			t.Fatalf("decoded body must be empty on failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event within deadline")
	}
}

func TestPollerDerivesEventType(t *testing.T) {
	reader := &fakeReader{}
	hub := NewHub()
	events, cancel := hub.Subscribe(16)
	defer cancel()

	p := testPoller(reader, &fakeSubmitter{}, hub)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	reader.add(domain.Message{RowID: 1, GUID: "in", From: "them"})
	reader.add(domain.Message{RowID: 2, GUID: "out", IsFromMe: true})

	want := map[string]string{"in": domain.EventNewMessage, "out": domain.EventMessageFromMe}
	for i := 0; i < len(want); i++ {
		select {
		case ev := <-events:
			if ev.Type != want[ev.Message.GUID] {
				t.Fatalf("event type for %q = %q, want %q", ev.Message.GUID, ev.Type, want[ev.Message.GUID])
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no event within deadline")
		}
	}
}

func TestPollerSurvivesSubmitRejection(t *testing.T) {
	reader := &fakeReader{}
	hub := NewHub()
	events, cancel := hub.Subscribe(16)
	defer cancel()

	p := testPoller(reader, &fakeSubmitter{submitErr: perr.CapacityExceededf("full")}, hub)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	reader.add(domain.Message{RowID: 1, GUID: "g", Text: "still goes out", AttributedBody: []byte("rich")})

	select {
	case ev := <-events:
		if ev.Message.Text != "still goes out" {
			t.Fatalf("text = %q", ev.Message.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event within deadline")
	}
}
