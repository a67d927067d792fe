package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	perr "github.com/AKSizov/bluebubbles-server/internal/platform/errors"
	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
	"github.com/AKSizov/bluebubbles-server/internal/platform/telemetry"
	"github.com/AKSizov/bluebubbles-server/internal/platform/testkit"
	"github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
)

func testConfig() Config {
	return Config{
		BatchSize:       2,
		FillDeadline:    20 * time.Millisecond,
		MaxBatches:      8,
		InterBatchDelay: 0,
		RequestTimeout:  time.Second,
	}
}

func newTestDispatcher(cfg Config, helper domain.HelperPort) *Dispatcher {
	return NewDispatcher(cfg, helper, logger.Named("dispatcher-test"), telemetry.New())
}

func TestDispatcherSubmitAndAwait(t *testing.T) {
	d := newTestDispatcher(testConfig(), &fakeHelper{})

	h1, err := d.Submit(context.Background(), []byte("one"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h2, err := d.Submit(context.Background(), []byte("two"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res1, err := h1.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if string(res1) != `"one"` {
		t.Fatalf("result = %s", res1)
	}
	if _, err := h2.AwaitResult(ctx); err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
}

func TestDispatcherDeadlineDispatchesShortBatch(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 100
	d := newTestDispatcher(cfg, &fakeHelper{})

	h, err := d.Submit(context.Background(), []byte("solo"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := h.AwaitResult(ctx); err != nil {
		t.Fatalf("short batch must dispatch on deadline: %v", err)
	}
}

func TestDispatcherProcessesOneBatchAtATime(t *testing.T) {
	var inFlight, maxInFlight atomic.Int64
	var mu sync.Mutex
	var order []string

	helper := &fakeHelper{fn: func(_ string, entries []domain.RequestEntry) ([]domain.ResponseEntry, error) {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		mu.Lock()
		order = append(order, string(entries[0].Payload))
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)

		out := make([]domain.ResponseEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, domain.ResponseEntry{ID: e.ID, Body: json.RawMessage(`null`)})
		}
		return out, nil
	}}

	cfg := testConfig()
	cfg.BatchSize = 1
	d := newTestDispatcher(cfg, helper)

	handles := make([]domain.Handle, 0, 3)
	for _, p := range []string{"first", "second", "third"} {
		h, err := d.Submit(context.Background(), []byte(p))
		if err != nil {
			t.Fatalf("Submit %s: %v", p, err)
		}
		handles = append(handles, h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, h := range handles {
		if _, err := h.AwaitResult(ctx); err != nil {
			t.Fatalf("AwaitResult: %v", err)
		}
	}

	if maxInFlight.Load() != 1 {
		t.Fatalf("max concurrent helper calls = %d, want 1", maxInFlight.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third"}
	for i, p := range want {
		if order[i] != p {
			t.Fatalf("batch order = %v, want %v", order, want)
		}
	}
}

func TestDispatcherCapacityBackpressure(t *testing.T) {
	release := make(chan struct{})
	helper := &fakeHelper{fn: func(_ string, entries []domain.RequestEntry) ([]domain.ResponseEntry, error) {
		<-release
		out := make([]domain.ResponseEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, domain.ResponseEntry{ID: e.ID, Body: json.RawMessage(`null`)})
		}
		return out, nil
	}}

	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.MaxBatches = 2
	cfg.FillDeadline = time.Hour
	d := newTestDispatcher(cfg, helper)

	h1, err := d.Submit(context.Background(), []byte("a"))
	if err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	h2, err := d.Submit(context.Background(), []byte("b"))
	if err != nil {
		t.Fatalf("Submit b: %v", err)
	}

	// cache full, nothing terminal to prune
	if _, err := d.Submit(context.Background(), []byte("c")); !perr.IsCode(err, perr.ErrorCodeCapacityExceeded) {
		t.Fatalf("want capacity exceeded, got %v", err)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := h1.AwaitResult(ctx); err != nil {
		t.Fatalf("AwaitResult a: %v", err)
	}
	if _, err := h2.AwaitResult(ctx); err != nil {
		t.Fatalf("AwaitResult b: %v", err)
	}

	// terminal batches free slots via pruning
	h3, err := d.Submit(context.Background(), []byte("c"))
	if err != nil {
		t.Fatalf("Submit after prune: %v", err)
	}
	if _, err := h3.AwaitResult(ctx); err != nil {
		t.Fatalf("AwaitResult c: %v", err)
	}
}

func TestDispatcherPruneEvictsTerminalBatches(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.MaxBatches = 1
	d := newTestDispatcher(cfg, &fakeHelper{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		h, err := d.Submit(context.Background(), []byte("x"))
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if _, err := h.AwaitResult(ctx); err != nil {
			t.Fatalf("AwaitResult %d: %v", i, err)
		}
	}

	if got := d.Cached(); got > 1 {
		t.Fatalf("cache holds %d batches, want <= 1", got)
	}
}

func TestDispatcherFlushFailsOutstandingWork(t *testing.T) {
	release := make(chan struct{})
	helper := &fakeHelper{fn: func(_ string, entries []domain.RequestEntry) ([]domain.ResponseEntry, error) {
		<-release
		return nil, nil
	}}

	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.FillDeadline = time.Hour
	d := newTestDispatcher(cfg, helper)

	h, err := d.Submit(context.Background(), []byte("doomed"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	d.Flush()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := h.AwaitResult(ctx); !perr.IsCode(err, perr.ErrorCodeFlushed) {
		t.Fatalf("want flushed, got %v", err)
	}
	if got := d.Cached(); got != 0 {
		t.Fatalf("cache holds %d batches after flush, want 0", got)
	}

	// dispatcher stays usable after a flush
	h2, err := d.Submit(context.Background(), []byte("fresh"))
	if err != nil {
		t.Fatalf("Submit after flush: %v", err)
	}
	testkit.Eventually(t, time.Second, 5*time.Millisecond, h2.Terminal)
}

func TestDispatcherSubmitRacesFillDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 4
	cfg.FillDeadline = time.Millisecond
	cfg.MaxBatches = 1024
	d := newTestDispatcher(cfg, &fakeHelper{})

	// the deadline timer constantly closes the filling batch underneath
	// concurrent submitters; capacity is the only admissible rejection
	var wg sync.WaitGroup
	errs := make(chan error, 512)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				if _, err := d.Submit(context.Background(), []byte("x")); err != nil {
					errs <- err
				}
				time.Sleep(250 * time.Microsecond)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !perr.IsCode(err, perr.ErrorCodeCapacityExceeded) {
			t.Fatalf("submit surfaced %v", err)
		}
	}
}

func TestDispatcherSubmitCancelledContext(t *testing.T) {
	d := newTestDispatcher(testConfig(), &fakeHelper{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Submit(ctx, []byte("x")); err == nil {
		t.Fatalf("want context error")
	}
}
