package module

import (
	"time"

	"github.com/AKSizov/bluebubbles-server/internal/platform/config"
)

// Options holds configuration settings for the decode module
type Options struct {
	BatchSize       int
	FillDeadline    time.Duration
	MaxBatches      int
	InterBatchDelay time.Duration
	RequestTimeout  time.Duration
}

// FromConfig extracts Options from the given config.Conf
func FromConfig(cfg config.Conf) Options {
	df := cfg.Prefix("DECODE_")
	return Options{
		BatchSize:       df.MayInt("BATCH_SIZE", 25),
		FillDeadline:    df.MayDuration("FILL_DEADLINE", 500*time.Millisecond),
		MaxBatches:      df.MayInt("MAX_BATCHES", 20),
		InterBatchDelay: df.MayDuration("INTER_BATCH_DELAY", 100*time.Millisecond),
		RequestTimeout:  df.MayDuration("REQUEST_TIMEOUT", 30*time.Second),
	}
}
