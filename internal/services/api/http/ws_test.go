package http

import (
	stdctx "context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	msgdom "github.com/AKSizov/bluebubbles-server/internal/services/messages/domain"
)

func TestEventsStreamDeliversEvents(t *testing.T) {
	a := newTestAPI(t, &fakeReader{}, &fakeSubmitter{})

	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
	defer cancel()

	url := strings.Replace(a.srv.URL, "http", "ws", 1) + "/events/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// subscription races the dial; retry the publish until it lands
	deadline := time.Now().Add(2 * time.Second)
	for a.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	a.hub.Publish(msgdom.Event{
		Type:    msgdom.EventNewMessage,
		Message: msgdom.Message{GUID: "g1", Text: "hi"},
	})

	var ev msgdom.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != msgdom.EventNewMessage || ev.Message.GUID != "g1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestEventsStreamClientClose(t *testing.T) {
	a := newTestAPI(t, &fakeReader{}, &fakeSubmitter{})

	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
	defer cancel()

	url := strings.Replace(a.srv.URL, "http", "ws", 1) + "/events/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "done")

	// the server side detaches its subscription once the client is gone
	deadline = time.Now().Add(2 * time.Second)
	for a.hub.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription leaked after client close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
