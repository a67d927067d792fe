package service

import (
	"context"
	"time"

	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
	"github.com/AKSizov/bluebubbles-server/internal/platform/telemetry"
	decode "github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
	"github.com/AKSizov/bluebubbles-server/internal/services/messages/domain"
)

// Config holds the poller tuning knobs
type Config struct {
	// Interval between poll passes over the store
	Interval time.Duration `validate:"required"`
	// BatchLimit caps rows read per pass
	BatchLimit int `validate:"required,min=1"`
	// AwaitTimeout bounds waiting for one decoded body
	AwaitTimeout time.Duration `validate:"required"`
}

// Poller watches the message store for new rows, has their rich-text blobs
// decoded, and fans the results out as events. Rows present before startup
// are not replayed; the watermark starts at the current store head
type Poller struct {
	cfg       Config
	reader    domain.ReaderPort
	submitter decode.SubmitterPort
	hub       *Hub
	log       logger.Logger
	metrics   *telemetry.Metrics

	watermark int64
}

// NewPoller builds a poller; Run starts it
func NewPoller(cfg Config, reader domain.ReaderPort, submitter decode.SubmitterPort, hub *Hub, log *logger.Logger, m *telemetry.Metrics) *Poller {
	return &Poller{
		cfg:       cfg,
		reader:    reader,
		submitter: submitter,
		hub:       hub,
		log:       log.With().Str("component", "poller").Logger(),
		metrics:   m,
	}
}

// Run polls until ctx is done. Returns nil on context cancellation
func (p *Poller) Run(ctx context.Context) error {
	head, err := p.reader.MaxRowID(ctx)
	if err != nil {
		return err
	}
	p.watermark = head
	p.log.Info().Int64("watermark", head).Dur("interval", p.cfg.Interval).Msg("poller started")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller stopped")
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one pass: read new rows, decode their blobs, emit events.
// Poll failures are logged and retried on the next tick, never fatal
func (p *Poller) poll(ctx context.Context) {
	p.metrics.PollTicks.Inc()

	msgs, err := p.reader.After(ctx, p.watermark, p.cfg.BatchLimit)
	if err != nil {
		p.log.Warn().Err(err).Int64("watermark", p.watermark).Msg("poll pass failed")
		return
	}
	if len(msgs) == 0 {
		return
	}
	p.metrics.MessagesSeen.Add(float64(len(msgs)))

	// submit every blob first so they share a batch, then collect results
	handles := make([]decode.Handle, len(msgs))
	for i, m := range msgs {
		if len(m.AttributedBody) == 0 {
			continue
		}
		h, err := p.submitter.Submit(ctx, m.AttributedBody)
		if err != nil {
			p.log.Warn().Err(err).Str("guid", m.GUID).Msg("decode submit rejected")
			continue
		}
		handles[i] = h
	}

	for i := range msgs {
		if h := handles[i]; h != nil {
			actx, cancel := context.WithTimeout(ctx, p.cfg.AwaitTimeout)
			body, err := h.AwaitResult(actx)
			cancel()
			if err != nil {
				// plain text still goes out; the rich body is best-effort
				p.log.Warn().Err(err).Str("guid", msgs[i].GUID).Msg("decode failed")
			} else {
				msgs[i].DecodedBody = body
			}
		}
		p.watermark = msgs[i].RowID
		kind := domain.EventNewMessage
		if msgs[i].IsFromMe {
			kind = domain.EventMessageFromMe
		}
		p.hub.Publish(domain.Event{Type: kind, Message: msgs[i]})
		p.metrics.EventsEmitted.WithLabelValues(kind).Inc()
	}
}
