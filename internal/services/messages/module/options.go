package module

import (
	"time"

	"github.com/AKSizov/bluebubbles-server/internal/platform/config"
)

// Options holds configuration settings for the messages module
type Options struct {
	Interval     time.Duration
	BatchLimit   int
	AwaitTimeout time.Duration
}

// FromConfig extracts Options from the given config.Conf
func FromConfig(cfg config.Conf) Options {
	mf := cfg.Prefix("POLL_")
	return Options{
		Interval:     mf.MayDuration("INTERVAL", time.Second),
		BatchLimit:   mf.MayInt("BATCH_LIMIT", 100),
		AwaitTimeout: mf.MayDuration("AWAIT_TIMEOUT", 45*time.Second),
	}
}
