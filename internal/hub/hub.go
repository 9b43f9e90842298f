// Package hub keeps the live websocket connections of the relay and addresses them by
// an opaque connection id.
//
// Every connection owns a writer goroutine draining a bounded queue and a ping loop.
// Senders never block on the socket: when a queue is full the connection is dropped.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/its-me-navee/e4square/internal/obslog"
	"github.com/its-me-navee/e4square/pkg/relaydto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	ErrUnknownConn    = errors.New("unknown connection")
	ErrSlowConsumer   = errors.New("outbound queue full")
	ErrMalformedFrame = errors.New("malformed frame")
)

type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	return o
}

type client struct {
	id     string
	ws     *websocket.Conn
	out    chan relaydto.Envelope
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

type Hub struct {
	opts Options

	mu    sync.RWMutex
	conns map[string]*client
	rooms map[string]map[string]struct{} // room -> conn ids

	newID func() string
}

func New(opts Options) *Hub {
	return &Hub{
		opts:  opts.withDefaults(),
		conns: make(map[string]*client),
		rooms: make(map[string]map[string]struct{}),
		newID: uuid.NewString,
	}
}

// Attach registers an accepted websocket and starts its writer and ping loops.
// The returned id is the connection handle used by every other method.
func (h *Hub) Attach(ws *websocket.Conn) string {
	ws.SetReadLimit(h.opts.ReadLimit)
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		id:     h.newID(),
		ws:     ws,
		out:    make(chan relaydto.Envelope, h.opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	c.wg.Add(2)
	go h.writeLoop(c)
	go h.pingLoop(c)
	obslog.L().Debug("hub_attach", zap.String("conn", c.id))
	return c.id
}

// ReadLoop decodes inbound envelopes of conn and hands them to handle until the
// connection ends. A malformed frame is answered with an error event; the
// connection stays open.
func (h *Hub) ReadLoop(ctx context.Context, conn string, handle func(relaydto.Envelope)) error {
	c, ok := h.get(conn)
	if !ok {
		return ErrUnknownConn
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-c.ctx.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	for {
		_, raw, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if c.ctx.Err() != nil {
				return nil
			}
			return err
		}
		var env relaydto.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			obslog.L().Warn("hub_malformed_frame", zap.String("conn", conn), zap.Int("bytes", len(raw)))
			_ = h.SendTo(conn, relaydto.EventError, relaydto.Error{Code: "malformed_frame", Message: ErrMalformedFrame.Error()})
			continue
		}
		handle(env)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-c.out:
			ctx, cancel := context.WithTimeout(c.ctx, h.opts.WriteTimeout)
			err := wsjson.Write(ctx, c.ws, env)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					obslog.L().Warn("hub_write_failed", zap.String("conn", c.id), zap.String("event", env.Event), zap.Error(err))
				}
				h.drop(c, websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (h *Hub) pingLoop(c *client) {
	defer c.wg.Done()
	t := time.NewTicker(h.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
			err := c.ws.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				obslog.L().Info("hub_ping_timeout", zap.String("conn", c.id))
				h.drop(c, websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// SendTo queues one event for conn.
func (h *Hub) SendTo(conn, event string, payload any) error {
	c, ok := h.get(conn)
	if !ok {
		return ErrUnknownConn
	}
	env, err := relaydto.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return h.enqueue(c, env)
}

// BroadcastToRoom queues event for every member of room except exclude.
func (h *Hub) BroadcastToRoom(room, event string, payload any, exclude string) {
	env, err := relaydto.NewEnvelope(event, payload)
	if err != nil {
		obslog.L().Error("hub_encode_failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if id == exclude {
			continue
		}
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		_ = h.enqueue(c, env)
	}
}

// BroadcastToAll queues event for every connection.
func (h *Hub) BroadcastToAll(event string, payload any) {
	env, err := relaydto.NewEnvelope(event, payload)
	if err != nil {
		obslog.L().Error("hub_encode_failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		_ = h.enqueue(c, env)
	}
}

func (h *Hub) JoinRoom(conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[conn] = struct{}{}
}

// Close removes conn and closes its socket. Safe to call more than once.
func (h *Hub) Close(conn string) {
	c, ok := h.get(conn)
	if !ok {
		return
	}
	h.drop(c, websocket.StatusNormalClosure, "closed")
}

// Shutdown closes every connection and waits for their loops to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	all := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.drop(c, websocket.StatusGoingAway, "server shutdown")
	}
	done := make(chan struct{})
	go func() {
		for _, c := range all {
			c.wg.Wait()
		}
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) enqueue(c *client, env relaydto.Envelope) error {
	if c.ctx.Err() != nil {
		return ErrUnknownConn
	}
	select {
	case c.out <- env:
		return nil
	default:
		obslog.L().Warn("hub_slow_consumer", zap.String("conn", c.id), zap.String("event", env.Event))
		h.drop(c, websocket.StatusPolicyViolation, "slow consumer")
		return ErrSlowConsumer
	}
}

func (h *Hub) drop(c *client, code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.conns, c.id)
		for room, members := range h.rooms {
			delete(members, c.id)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
		h.mu.Unlock()

		c.cancel()
		if c.ws != nil {
			// Close waits for the peer's close frame; never hold a caller on it.
			go func() { _ = c.ws.Close(code, reason) }()
		}
		obslog.L().Debug("hub_drop", zap.String("conn", c.id), zap.String("reason", reason))
	})
}

func (h *Hub) get(conn string) (*client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[conn]
	return c, ok
}
