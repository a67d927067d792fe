package modkit

import (
	"github.com/AKSizov/bluebubbles-server/internal/platform/config"
	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
	"github.com/AKSizov/bluebubbles-server/internal/platform/store"
	"github.com/AKSizov/bluebubbles-server/internal/platform/telemetry"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log     logger.Logger
	Cfg     config.Conf
	Store   *store.Store
	Metrics *telemetry.Metrics
}
