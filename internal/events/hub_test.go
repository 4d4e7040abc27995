package events_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/arivox/arivox/internal/events"
	"github.com/arivox/arivox/pkg/types"
)

func dialHub(t *testing.T, hub *events.Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitSubscribers(t *testing.T, hub *events.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.SubscriberCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count = %d, want %d", hub.SubscriberCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestHubDeliversTranscriptEvents(t *testing.T) {
	t.Parallel()

	hub := events.NewHub(nil, nil)
	conn := dialHub(t, hub)
	waitSubscribers(t, hub, 1)

	hub.PublishTranscript(context.Background(), types.TranscriptEvent{
		CallID:  "call-1",
		Text:    "hello there",
		IsFinal: true,
	})

	ev := readEvent(t, conn)
	if ev.Kind != events.KindTranscript {
		t.Errorf("Kind = %q, want %q", ev.Kind, events.KindTranscript)
	}
	if ev.CallID != "call-1" {
		t.Errorf("CallID = %q, want call-1", ev.CallID)
	}
	if ev.Transcript == nil || ev.Transcript.Text != "hello there" {
		t.Errorf("Transcript = %+v, want text %q", ev.Transcript, "hello there")
	}
	if ev.Time.IsZero() {
		t.Error("Time was not stamped")
	}
}

func TestHubFansOutToAllSubscribers(t *testing.T) {
	t.Parallel()

	hub := events.NewHub(nil, nil)
	a := dialHub(t, hub)
	b := dialHub(t, hub)
	waitSubscribers(t, hub, 2)

	hub.PublishCallStarted(context.Background(), "call-7")

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		if ev.Kind != events.KindCallStarted || ev.CallID != "call-7" {
			t.Errorf("event = %+v, want call_started for call-7", ev)
		}
	}
}

func TestHubPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	t.Parallel()

	hub := events.NewHub(nil, nil)
	done := make(chan struct{})
	go func() {
		hub.PublishCallEnded(context.Background(), "call-1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestHubUnsubscribesOnDisconnect(t *testing.T) {
	t.Parallel()

	hub := events.NewHub(nil, nil)
	conn := dialHub(t, hub)
	waitSubscribers(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "")
	waitSubscribers(t, hub, 0)
}
