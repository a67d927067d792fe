// Package http provides the bridge API endpoints
package http

import (
	stdctx "context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/AKSizov/bluebubbles-server/internal/modkit/httpkit"
	perr "github.com/AKSizov/bluebubbles-server/internal/platform/errors"
	decodedom "github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
	msgdom "github.com/AKSizov/bluebubbles-server/internal/services/messages/domain"
)

// Deps are the handler dependencies
type Deps struct {
	ServiceName   string
	StartedAt     time.Time
	Reader        msgdom.ReaderPort
	Submitter     decodedom.SubmitterPort
	Events        msgdom.SubscriberPort
	DecodeTimeout time.Duration
	ListLimit     int
}

type handlers struct {
	deps Deps
}

// Register mounts the API routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{deps: d}

	httpkit.Get(r, "/ping", h.ping)
	httpkit.Get(r, "/server/info", h.serverInfo)
	httpkit.Get(r, "/message", h.listMessages)
	httpkit.PostJSON(r, "/message/decode", h.decodeMessage)
	r.Get("/events/stream", h.eventsStream)
}

// PingResponse answers liveness probes
type PingResponse struct {
	Message string `json:"message"`
	Now     string `json:"now"`
}

// ServerInfoResponse describes the running bridge
type ServerInfoResponse struct {
	Name    string `json:"name"`
	Started string `json:"started"`
	Uptime  int64  `json:"uptime"`
}

// MessagesResponse wraps a message listing
type MessagesResponse struct {
	Messages []msgdom.Message `json:"messages"`
	Count    int              `json:"count"`
}

// DecodeRequest carries one raw rich-text blob, base64 encoded
type DecodeRequest struct {
	Payload string `json:"payload" validate:"required"`
}

// DecodeResponse carries the decoded structured body
type DecodeResponse struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

func (h *handlers) ping(_ *http.Request) (any, error) {
	return PingResponse{
		Message: "pong",
		Now:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *handlers) serverInfo(_ *http.Request) (any, error) {
	return ServerInfoResponse{
		Name:    h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Uptime:  int64(time.Since(h.deps.StartedAt) / time.Second),
	}, nil
}

func (h *handlers) listMessages(r *http.Request) (any, error) {
	limit := h.deps.ListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return nil, perr.InvalidArgf("limit must be a positive integer")
		}
		if n < limit {
			limit = n
		}
	}

	// after=<rowid> switches to forward pagination from that row
	if s := r.URL.Query().Get("after"); s != "" {
		after, err := strconv.ParseInt(s, 10, 64)
		if err != nil || after < 0 {
			return nil, perr.InvalidArgf("after must be a non-negative row id")
		}
		msgs, err := h.deps.Reader.After(r.Context(), after, limit)
		if err != nil {
			return nil, err
		}
		return MessagesResponse{Messages: msgs, Count: len(msgs)}, nil
	}

	msgs, err := h.deps.Reader.Recent(r.Context(), limit)
	if err != nil {
		return nil, err
	}
	return MessagesResponse{Messages: msgs, Count: len(msgs)}, nil
}

func (h *handlers) decodeMessage(r *http.Request, req DecodeRequest) (any, error) {
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		return nil, perr.InvalidArgf("payload must be base64")
	}

	handle, err := h.deps.Submitter.Submit(r.Context(), payload)
	if err != nil {
		return nil, err
	}

	ctx, cancel := stdctx.WithTimeout(r.Context(), h.deps.DecodeTimeout)
	defer cancel()
	body, err := handle.AwaitResult(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeResponse{ID: handle.ID(), Body: body}, nil
}
