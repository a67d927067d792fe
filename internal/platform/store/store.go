// Package store opens the legacy message database for read-only access
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	perr "github.com/AKSizov/bluebubbles-server/internal/platform/errors"
	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"

	_ "modernc.org/sqlite" // cgo-free sqlite driver
)

// Config describes the sqlite message store
type Config struct {
	// Path is the filesystem path to chat.db
	Path string
	// ReadOnly opens the database with mode=ro; the bridge never writes
	ReadOnly bool
	// BusyTimeout bounds waits when Messages holds the write lock
	BusyTimeout time.Duration
	// MaxConns caps the pool; the poller needs very few
	MaxConns int
}

// Store is a thin wrapper over *sql.DB for the message database
type Store struct {
	DB   *sql.DB
	path string
	log  logger.Logger
}

// Option mutates the store during Open
type Option func(*Store)

// WithLogger attaches a logger used for open/close events
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// DSN builds the sqlite connection string for the config
func (c Config) DSN() string {
	q := url.Values{}
	if c.ReadOnly {
		q.Set("mode", "ro")
	}
	bt := c.BusyTimeout
	if bt <= 0 {
		bt = 5 * time.Second
	}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", bt.Milliseconds()))
	return "file:" + c.Path + "?" + q.Encode()
}

// Open opens the sqlite store and verifies connectivity
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Path == "" {
		return nil, perr.InvalidArgf("store: path is required")
	}

	s := &Store{path: cfg.Path, log: *logger.Named("store")}
	for _, o := range opts {
		o(s)
	}

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeStore, "store: open failed")
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 2
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, perr.Wrap(err, perr.ErrorCodeStore, "store: ping failed")
	}

	s.DB = db
	s.log.Info().Str("path", cfg.Path).Bool("read_only", cfg.ReadOnly).Msg("store opened")
	return s, nil
}

// Close closes the underlying pool
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return nil
	}
	s.log.Info().Str("path", s.path).Msg("store closing")
	return s.DB.Close()
}
