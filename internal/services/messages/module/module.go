// Package module implements the messages module
package module

import (
	"net/http"

	"github.com/AKSizov/bluebubbles-server/internal/modkit"
	"github.com/AKSizov/bluebubbles-server/internal/modkit/httpkit"
	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
	"github.com/AKSizov/bluebubbles-server/internal/platform/net/http/bind"
	"github.com/AKSizov/bluebubbles-server/internal/services/messages/domain"
	"github.com/AKSizov/bluebubbles-server/internal/services/messages/service"
)

// Ports exposed by the messages module
type Ports struct {
	Poller domain.PollerPort
	Events domain.SubscriberPort
	Reader domain.ReaderPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs a new messages module
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("messages"),
	}, opts...)...)

	// Basic guardrails against incorrect wiring
	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("messages module: expected WithPorts(messages/domain.Ports)")
	}
	if ports.Reader == nil || ports.Submitter == nil {
		panic("messages module: Ports missing Reader or Submitter")
	}

	// Merge config + overrides
	cfg := FromConfig(deps.Cfg)
	if overrides.Interval != 0 {
		cfg.Interval = overrides.Interval
	}
	if overrides.BatchLimit != 0 {
		cfg.BatchLimit = overrides.BatchLimit
	}
	if overrides.AwaitTimeout != 0 {
		cfg.AwaitTimeout = overrides.AwaitTimeout
	}

	scfg := service.Config{
		Interval:     cfg.Interval,
		BatchLimit:   cfg.BatchLimit,
		AwaitTimeout: cfg.AwaitTimeout,
	}
	if err := bind.Get().Validator.Struct(scfg); err != nil {
		logger.Get().Panic().Err(err).Msg("messages module: invalid config")
	}

	hub := service.NewHub()
	poller := service.NewPoller(scfg, ports.Reader, ports.Submitter, hub, logger.Named("messages"), deps.Metrics)

	m := &Module{deps: deps}
	m.ports = Ports{
		Poller: poller,
		Events: hub,
		Reader: ports.Reader,
	}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "messages" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares satisfies modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ httpkit.Router) {}
