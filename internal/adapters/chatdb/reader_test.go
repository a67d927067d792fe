package chatdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AKSizov/bluebubbles-server/internal/platform/store"
)

const testSchema = `
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY,
	id TEXT NOT NULL
);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT NOT NULL,
	text TEXT,
	attributedBody BLOB,
	handle_id INTEGER,
	date INTEGER NOT NULL DEFAULT 0,
	is_from_me INTEGER NOT NULL DEFAULT 0
);
`

func newTestReader(t *testing.T) *Reader {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(ctx, store.Config{
		Path: filepath.Join(t.TempDir(), "chat.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(ctx) })

	if _, err := db.DB.ExecContext(ctx, testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	seed := []string{
		`INSERT INTO handle (ROWID, id) VALUES (1, '+15551234567')`,
		`INSERT INTO message (ROWID, guid, text, attributedBody, handle_id, date, is_from_me)
		 VALUES (1, 'guid-1', 'hello', X'DEADBEEF', 1, 694224000, 0)`,
		`INSERT INTO message (ROWID, guid, text, attributedBody, handle_id, date, is_from_me)
		 VALUES (2, 'guid-2', '', NULL, 1, 694224001000000000, 1)`,
		`INSERT INTO message (ROWID, guid, text, attributedBody, handle_id, date, is_from_me)
		 VALUES (3, 'guid-3', 'latest', X'00', NULL, 694224002000000000, 0)`,
	}
	for _, q := range seed {
		if _, err := db.DB.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return NewReader(db)
}

func TestReaderMaxRowID(t *testing.T) {
	r := newTestReader(t)
	max, err := r.MaxRowID(context.Background())
	if err != nil {
		t.Fatalf("MaxRowID: %v", err)
	}
	if max != 3 {
		t.Fatalf("max = %d, want 3", max)
	}
}

func TestReaderAfter(t *testing.T) {
	r := newTestReader(t)
	msgs, err := r.After(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("After: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].RowID != 2 || msgs[1].RowID != 3 {
		t.Fatalf("order = %d, %d; want ascending 2, 3", msgs[0].RowID, msgs[1].RowID)
	}
	if !msgs[0].IsFromMe {
		t.Fatalf("row 2 must be from me")
	}
	if msgs[0].From != "+15551234567" {
		t.Fatalf("from = %q", msgs[0].From)
	}
	if msgs[1].From != "" {
		t.Fatalf("null handle must scan empty, got %q", msgs[1].From)
	}
}

func TestReaderRecent(t *testing.T) {
	r := newTestReader(t)
	msgs, err := r.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].RowID != 3 || msgs[1].RowID != 2 {
		t.Fatalf("order = %d, %d; want descending 3, 2", msgs[0].RowID, msgs[1].RowID)
	}
	if len(msgs[1].AttributedBody) != 0 {
		t.Fatalf("null blob must scan empty")
	}
}

func TestAppleTime(t *testing.T) {
	want := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	secs := int64(want.Sub(appleEpoch) / time.Second)

	cases := []struct {
		name string
		in   int64
		want time.Time
	}{
		{"zero", 0, time.Time{}},
		{"seconds", secs, want},
		{"nanoseconds", secs * int64(time.Second), want},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := appleTime(tc.in); !got.Equal(tc.want) {
				t.Fatalf("appleTime(%d) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
