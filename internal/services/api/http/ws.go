package http

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
)

// eventBuffer is the per-subscriber queue; a client that falls further
// behind misses events rather than stalling the poller
const eventBuffer = 64

// eventsStream upgrades to a WebSocket and forwards message events until
// the client goes away
func (h *handlers) eventsStream(w http.ResponseWriter, r *http.Request) {
	log := logger.C(r.Context())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	events, cancel := h.deps.Events.Subscribe(eventBuffer)
	defer cancel()

	log.Debug().Msg("event stream attached")

	ctx := conn.CloseRead(r.Context()) // no inbound protocol; detect close only
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "stream shutting down")
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				log.Debug().Err(err).Msg("event stream write failed")
				return
			}
		}
	}
}
