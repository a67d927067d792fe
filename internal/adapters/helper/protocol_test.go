package helper

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
)

func TestEncodeRequest(t *testing.T) {
	entries := []domain.RequestEntry{
		{ID: "item-1", Payload: []byte{0x01, 0x02, 0xff}},
		{ID: "item-2", Payload: []byte("plain")},
	}

	line, err := encodeRequest("req-9", entries)
	if err != nil {
		t.Fatalf("encodeRequest: %v", err)
	}

	var got wireRequest
	if err := json.Unmarshal(line, &got); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if got.ID != "req-9" {
		t.Fatalf("id = %q", got.ID)
	}
	if got.Type != "bulk-attributed-body" {
		t.Fatalf("type = %q", got.Type)
	}
	if len(got.Data) != 2 {
		t.Fatalf("data len = %d", len(got.Data))
	}
	raw, err := base64.StdEncoding.DecodeString(got.Data[0].Payload)
	if err != nil {
		t.Fatalf("payload not base64: %v", err)
	}
	if string(raw) != string(entries[0].Payload) {
		t.Fatalf("payload round trip mismatch")
	}
}

func TestToEntriesSkipsMissingIDs(t *testing.T) {
	data := []wireResponseEntry{
		{ID: "a", Body: json.RawMessage(`"ok"`)},
		{ID: "", Body: json.RawMessage(`"orphan"`)},
		{ID: "b", Body: json.RawMessage(`null`)},
	}
	out := toEntries(data)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("ids = %v, %v", out[0].ID, out[1].ID)
	}
}
