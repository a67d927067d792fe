// Package chatdb reads the legacy iMessage store (chat.db), read-only
package chatdb

import (
	"context"
	"database/sql"
	"time"

	perr "github.com/AKSizov/bluebubbles-server/internal/platform/errors"
	"github.com/AKSizov/bluebubbles-server/internal/platform/store"
	"github.com/AKSizov/bluebubbles-server/internal/services/messages/domain"
)

// appleEpoch is 2001-01-01T00:00:00Z; message dates count from it
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// appleTime converts a raw message date to wall time. Older store versions
// count seconds since the Apple epoch, newer ones nanoseconds; anything
// that would land past the year 2100 as seconds must be nanoseconds
func appleTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	const maxSeconds = 100 * 365 * 24 * 60 * 60 // ~year 2100 as seconds
	if v > maxSeconds {
		return appleEpoch.Add(time.Duration(v) * time.Nanosecond)
	}
	return appleEpoch.Add(time.Duration(v) * time.Second)
}

// Reader implements messages/domain.ReaderPort over the sqlite store
type Reader struct {
	db *store.Store
}

// NewReader builds a Reader over an opened store
func NewReader(db *store.Store) *Reader {
	return &Reader{db: db}
}

const baseSelect = `
SELECT m.ROWID, m.guid, COALESCE(m.text, ''), m.attributedBody,
       m.date, m.is_from_me, COALESCE(h.id, '')
FROM message m
LEFT JOIN handle h ON h.ROWID = m.handle_id
`

// MaxRowID returns the highest message ROWID, 0 when the table is empty
func (r *Reader) MaxRowID(ctx context.Context) (int64, error) {
	var max int64
	err := r.db.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(ROWID), 0) FROM message`).Scan(&max)
	if err != nil {
		return 0, perr.Wrap(err, perr.ErrorCodeStore, "chatdb: max rowid")
	}
	return max, nil
}

// After returns up to limit messages with ROWID greater than rowID, ascending
func (r *Reader) After(ctx context.Context, rowID int64, limit int) ([]domain.Message, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		baseSelect+`WHERE m.ROWID > ? ORDER BY m.ROWID ASC LIMIT ?`, rowID, limit)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeStore, "chatdb: select after")
	}
	return scanMessages(rows)
}

// Recent returns the newest limit messages, newest first
func (r *Reader) Recent(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		baseSelect+`ORDER BY m.ROWID DESC LIMIT ?`, limit)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeStore, "chatdb: select recent")
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m    domain.Message
			body []byte
			date int64
		)
		if err := rows.Scan(&m.RowID, &m.GUID, &m.Text, &body, &date, &m.IsFromMe, &m.From); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeStore, "chatdb: scan message")
		}
		m.AttributedBody = body
		m.SentAt = appleTime(date)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeStore, "chatdb: iterate messages")
	}
	return out, nil
}
