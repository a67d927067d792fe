package service

import (
	"context"
	"sync"
	"time"

	perr "github.com/AKSizov/bluebubbles-server/internal/platform/errors"
	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
	"github.com/AKSizov/bluebubbles-server/internal/platform/telemetry"
	"github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
)

// pruneAges are the eviction thresholds tried in order when the cache is
// full. Each pass evicts terminal batches at least that old; the final
// zero threshold evicts every terminal batch
var pruneAges = [...]time.Duration{30 * time.Second, 10 * time.Second, 5 * time.Second, 0}

// Config holds the dispatcher tuning knobs
type Config struct {
	// BatchSize is the per-batch capacity that triggers early dispatch
	BatchSize int `validate:"required,min=1"`
	// FillDeadline bounds how long a batch waits for more items
	FillDeadline time.Duration `validate:"required"`
	// MaxBatches bounds the batch cache; exceeding it rejects submissions
	MaxBatches int `validate:"required,min=1"`
	// InterBatchDelay is the pause between consecutive helper dispatches
	InterBatchDelay time.Duration `validate:"min=0"`
	// RequestTimeout bounds one helper call covering a whole batch
	RequestTimeout time.Duration `validate:"required"`
}

// Dispatcher accumulates decode submissions into batches and feeds them to
// the helper one at a time. It implements domain.SubmitterPort and
// domain.FlusherPort
type Dispatcher struct {
	cfg     Config
	helper  domain.HelperPort
	log     logger.Logger
	metrics *telemetry.Metrics

	mu         sync.Mutex
	batches    []*Batch // FIFO by creation
	filling    *Batch   // youngest batch, nil when none accepts
	processing bool
}

// NewDispatcher builds a dispatcher over the given helper port
func NewDispatcher(cfg Config, helper domain.HelperPort, log *logger.Logger, m *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		helper:  helper,
		log:     log.With().Str("component", "dispatcher").Logger(),
		metrics: m,
	}
}

// Submit enqueues one payload for decoding and returns its completion handle.
// Non-blocking: when the cache is full even after pruning it rejects with a
// CapacityExceeded error instead of waiting
func (d *Dispatcher) Submit(ctx context.Context, payload []byte) (domain.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	it := NewItem(payload)
	d.mu.Lock()
	for {
		b := d.filling
		if b == nil || !b.Accepting() {
			if len(d.batches) >= d.cfg.MaxBatches && !d.pruneLocked() {
				d.mu.Unlock()
				d.metrics.CapacityRejections.Inc()
				return nil, perr.CapacityExceededf("batch cache full (%d batches)", d.cfg.MaxBatches)
			}
			b = NewBatch(d.cfg.BatchSize, d.cfg.FillDeadline)
			b.OnReady(func(*Batch) { go d.drain() })
			d.batches = append(d.batches, b)
			d.filling = b
			d.metrics.BatchesCached.Set(float64(len(d.batches)))
		}
		if err := b.Add(it); err != nil {
			// the fill deadline fired between Accepting and Add; a fresh
			// batch on the next pass accepts
			d.filling = nil
			continue
		}
		break
	}
	d.mu.Unlock()

	d.metrics.ItemsSubmitted.Inc()
	return it, nil
}

// drain processes pending batches oldest-first, one at a time, pausing
// between batches. Safe to call from any goroutine; extra calls while a
// drain is running are no-ops
func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if d.processing {
			d.mu.Unlock()
			return
		}
		var next *Batch
		for _, b := range d.batches {
			if b.State() == StatePending {
				next = b
				break
			}
		}
		if next == nil {
			d.mu.Unlock()
			return
		}
		d.processing = true
		d.mu.Unlock()

		d.process(next)
		if d.cfg.InterBatchDelay > 0 {
			time.Sleep(d.cfg.InterBatchDelay)
		}

		d.mu.Lock()
		d.processing = false
		d.mu.Unlock()
	}
}

// process runs one batch through the helper and records the outcome
func (d *Dispatcher) process(b *Batch) {
	size := b.Len()
	start := time.Now()
	if !b.Process(context.Background(), d.helper, d.cfg.RequestTimeout) {
		return
	}

	result := "completed"
	if b.State() == StateFailed {
		result = "failed"
	}
	d.metrics.BatchesProcessed.WithLabelValues(result).Inc()
	d.metrics.BatchFillSize.Observe(float64(size))
	for _, it := range b.Items() {
		d.metrics.ItemsResolved.WithLabelValues(outcomeLabel(it.Err())).Inc()
	}

	d.log.Debug().
		Str("batch_id", b.ID()).
		Str("result", result).
		Int("items", size).
		Dur("took", time.Since(start)).
		Msg("batch processed")
}

// pruneLocked evicts terminal batches in progressively younger age bands
// until the cache has room. Caller holds d.mu. Reports whether a slot freed
func (d *Dispatcher) pruneLocked() bool {
	now := time.Now()
	evicted := 0
	for _, age := range pruneAges {
		kept := d.batches[:0]
		for _, b := range d.batches {
			if b.Terminal() && now.Sub(b.TerminalAt()) >= age {
				evicted++
				continue
			}
			kept = append(kept, b)
		}
		d.batches = kept
		if len(d.batches) < d.cfg.MaxBatches {
			break
		}
	}
	if evicted > 0 {
		d.metrics.PruneEvictions.Add(float64(evicted))
		d.metrics.BatchesCached.Set(float64(len(d.batches)))
		d.log.Debug().Int("evicted", evicted).Int("cached", len(d.batches)).Msg("pruned batch cache")
	}
	return len(d.batches) < d.cfg.MaxBatches
}

// Flush fails every outstanding item and empties the batch cache. The
// dispatcher stays usable; later submissions start from a clean cache
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	batches := d.batches
	d.batches = nil
	d.filling = nil
	d.mu.Unlock()

	reason := perr.Flushedf("dispatcher flushed")
	flushed := 0
	for _, b := range batches {
		for _, it := range b.Items() {
			if !it.Terminal() {
				flushed++
			}
		}
		b.Flush(reason)
	}
	d.metrics.BatchesCached.Set(0)
	if flushed > 0 {
		d.metrics.ItemsResolved.WithLabelValues("flushed").Add(float64(flushed))
	}
	d.log.Info().Int("batches", len(batches)).Int("items", flushed).Msg("flushed outstanding work")
}

// Cached returns the number of batches currently held, for introspection
func (d *Dispatcher) Cached() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func outcomeLabel(err error) string {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeTimeout:
		return "timeout"
	case perr.ErrorCodeNoResponse:
		return "no_response"
	case perr.ErrorCodeHelperFailure:
		return "helper_failure"
	case perr.ErrorCodeFlushed:
		return "flushed"
	default:
		if err != nil {
			return "error"
		}
		return "completed"
	}
}
