// Package module implements the decode module
package module

import (
	"net/http"

	"github.com/AKSizov/bluebubbles-server/internal/modkit"
	"github.com/AKSizov/bluebubbles-server/internal/modkit/httpkit"
	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
	"github.com/AKSizov/bluebubbles-server/internal/platform/net/http/bind"
	"github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
	"github.com/AKSizov/bluebubbles-server/internal/services/decode/service"
)

// Ports exposed by the decode module
type Ports struct {
	Submitter domain.SubmitterPort
	Flusher   domain.FlusherPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs a new decode module
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("decode"),
	}, opts...)...)

	// Basic guardrails against incorrect wiring
	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("decode module: expected WithPorts(decode/domain.Ports)")
	}
	if ports.Helper == nil {
		panic("decode module: Ports missing Helper")
	}

	// Merge config + overrides
	cfg := FromConfig(deps.Cfg)
	if overrides.BatchSize != 0 {
		cfg.BatchSize = overrides.BatchSize
	}
	if overrides.FillDeadline != 0 {
		cfg.FillDeadline = overrides.FillDeadline
	}
	if overrides.MaxBatches != 0 {
		cfg.MaxBatches = overrides.MaxBatches
	}
	if overrides.InterBatchDelay != 0 {
		cfg.InterBatchDelay = overrides.InterBatchDelay
	}
	if overrides.RequestTimeout != 0 {
		cfg.RequestTimeout = overrides.RequestTimeout
	}

	scfg := service.Config{
		BatchSize:       cfg.BatchSize,
		FillDeadline:    cfg.FillDeadline,
		MaxBatches:      cfg.MaxBatches,
		InterBatchDelay: cfg.InterBatchDelay,
		RequestTimeout:  cfg.RequestTimeout,
	}
	if err := bind.Get().Validator.Struct(scfg); err != nil {
		logger.Get().Panic().Err(err).Msg("decode module: invalid config")
	}

	dispatcher := service.NewDispatcher(scfg, ports.Helper, logger.Named("decode"), deps.Metrics)

	m := &Module{deps: deps}
	m.ports = Ports{
		Submitter: dispatcher,
		Flusher:   dispatcher,
	}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "decode" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares satisfies modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ httpkit.Router) {}
