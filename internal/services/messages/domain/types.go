// Package domain defines the types and interfaces for the messages service
package domain

import (
	"encoding/json"
	"time"
)

// Message is one row from the legacy message store, optionally enriched
// with the decoded rich-text body
type Message struct {
	RowID          int64           `json:"row_id"`
	GUID           string          `json:"guid"`
	Text           string          `json:"text"`
	From           string          `json:"from,omitempty"`
	IsFromMe       bool            `json:"is_from_me"`
	SentAt         time.Time       `json:"sent_at"`
	AttributedBody []byte          `json:"-"`
	DecodedBody    json.RawMessage `json:"decoded_body,omitempty"`
}

// Event types fanned out to stream subscribers
const (
	EventNewMessage    = "new-message"
	EventMessageFromMe = "message-from-me"
)

// Event is one notification delivered to stream subscribers
type Event struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}
