package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/its-me-navee/e4square/pkg/relaydto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type testServer struct {
	hub *Hub
	srv *httptest.Server
	ids chan string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{hub: New(Options{QueueSize: 8, PingInterval: time.Minute}), ids: make(chan string, 8)}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		id := ts.hub.Attach(ws)
		if room := r.URL.Query().Get("room"); room != "" {
			ts.hub.JoinRoom(id, room)
		}
		ts.ids <- id
		_ = ts.hub.ReadLoop(r.Context(), id, func(env relaydto.Envelope) {
			_ = ts.hub.SendTo(id, "echo", env)
		})
		ts.hub.Close(id)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) dial(t *testing.T, room string) (*websocket.Conn, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/?room=" + room
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	select {
	case id := <-ts.ids:
		return c, id
	case <-time.After(5 * time.Second):
		t.Fatalf("server never attached the connection")
	}
	return nil, ""
}

func readEnvelope(t *testing.T, c *websocket.Conn) relaydto.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var env relaydto.Envelope
	if err := wsjson.Read(ctx, c, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestSendToDeliversEnvelope(t *testing.T) {
	ts := newTestServer(t)
	c, id := ts.dial(t, "")
	if err := ts.hub.SendTo(id, relaydto.EventGameNotFound, relaydto.GameNotFound{RoomID: "r1"}); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	env := readEnvelope(t, c)
	var got relaydto.GameNotFound
	if err := env.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Event != relaydto.EventGameNotFound || got.RoomID != "r1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestBroadcastToRoomSkipsExcluded(t *testing.T) {
	ts := newTestServer(t)
	a, aid := ts.dial(t, "r1")
	b, _ := ts.dial(t, "r1")
	other, oid := ts.dial(t, "r2")

	ts.hub.BroadcastToRoom("r1", "ping", map[string]string{"x": "1"}, aid)
	if env := readEnvelope(t, b); env.Event != "ping" {
		t.Fatalf("member did not receive broadcast: %+v", env)
	}

	// a marker sent directly proves nothing else was queued before it
	_ = ts.hub.SendTo(aid, "marker", nil)
	if env := readEnvelope(t, a); env.Event != "marker" {
		t.Fatalf("excluded connection got %q", env.Event)
	}
	_ = ts.hub.SendTo(oid, "marker", nil)
	if env := readEnvelope(t, other); env.Event != "marker" {
		t.Fatalf("other room got %q", env.Event)
	}
}

func TestBroadcastToAll(t *testing.T) {
	ts := newTestServer(t)
	a, _ := ts.dial(t, "")
	b, _ := ts.dial(t, "")
	ts.hub.BroadcastToAll(relaydto.EventActivePlayers, []relaydto.Player{})
	for _, c := range []*websocket.Conn{a, b} {
		if env := readEnvelope(t, c); env.Event != relaydto.EventActivePlayers {
			t.Fatalf("unexpected event %q", env.Event)
		}
	}
	if ts.hub.Count() != 2 {
		t.Fatalf("expected 2 connections, got %d", ts.hub.Count())
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	ts := newTestServer(t)
	c, _ := ts.dial(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if env := readEnvelope(t, c); env.Event != relaydto.EventError {
		t.Fatalf("expected error event, got %q", env.Event)
	}
	if err := wsjson.Write(ctx, c, relaydto.Envelope{Event: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if env := readEnvelope(t, c); env.Event != "echo" {
		t.Fatalf("expected echo after malformed frame, got %q", env.Event)
	}
}

func TestCloseRemovesConnection(t *testing.T) {
	ts := newTestServer(t)
	c, id := ts.dial(t, "r1")
	ts.hub.Close(id)
	ts.hub.Close(id)
	if err := ts.hub.SendTo(id, "x", nil); !errors.Is(err, ErrUnknownConn) {
		t.Fatalf("expected ErrUnknownConn, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := c.Read(ctx); err == nil {
		t.Fatalf("expected closed connection")
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	h := New(Options{QueueSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{id: "slow", out: make(chan relaydto.Envelope, 1), ctx: ctx, cancel: cancel}
	h.conns[c.id] = c
	h.JoinRoom(c.id, "r1")

	if err := h.SendTo("slow", "one", nil); err != nil {
		t.Fatalf("first SendTo: %v", err)
	}
	if err := h.SendTo("slow", "two", nil); !errors.Is(err, ErrSlowConsumer) {
		t.Fatalf("expected ErrSlowConsumer, got %v", err)
	}
	if h.Count() != 0 || len(h.rooms) != 0 {
		t.Fatalf("slow connection should be removed")
	}
	if ctx.Err() == nil {
		t.Fatalf("connection context should be cancelled")
	}
}
