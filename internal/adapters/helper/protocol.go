// Package helper owns the external decoder process and its wire protocol
package helper

import (
	"encoding/base64"
	"encoding/json"

	"github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
)

// requestType is the only record type the decoder understands today
const requestType = "bulk-attributed-body"

// wireRequest is one newline-terminated record on the helper's stdin
type wireRequest struct {
	ID   string             `json:"id"`
	Type string             `json:"type"`
	Data []wireRequestEntry `json:"data"`
}

type wireRequestEntry struct {
	ID      string `json:"id"`
	Payload string `json:"payload"` // base64 of the raw archive bytes
}

// wireResponse is one newline-terminated record on the helper's stdout
type wireResponse struct {
	ID   string              `json:"id"`
	Data []wireResponseEntry `json:"data"`
}

type wireResponseEntry struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

// encodeRequest serializes a bulk request record, without the trailing newline
func encodeRequest(requestID string, entries []domain.RequestEntry) ([]byte, error) {
	req := wireRequest{
		ID:   requestID,
		Type: requestType,
		Data: make([]wireRequestEntry, 0, len(entries)),
	}
	for _, e := range entries {
		req.Data = append(req.Data, wireRequestEntry{
			ID:      e.ID,
			Payload: base64.StdEncoding.EncodeToString(e.Payload),
		})
	}
	return json.Marshal(req)
}

// toEntries converts a response record's data into the domain form
func toEntries(data []wireResponseEntry) []domain.ResponseEntry {
	out := make([]domain.ResponseEntry, 0, len(data))
	for _, e := range data {
		if e.ID == "" {
			continue
		}
		out = append(out, domain.ResponseEntry{ID: e.ID, Body: e.Body})
	}
	return out
}
