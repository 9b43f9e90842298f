// Package gateway binds connections to the relay core: it authenticates, keeps presence
// in step with the transport, routes client events into the invitation broker and the
// session store, and turns every outcome into targeted events.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/its-me-navee/e4square/internal/identity"
	"github.com/its-me-navee/e4square/internal/invite"
	"github.com/its-me-navee/e4square/internal/metrics"
	"github.com/its-me-navee/e4square/internal/msgcat"
	"github.com/its-me-navee/e4square/internal/obslog"
	"github.com/its-me-navee/e4square/internal/presence"
	"github.com/its-me-navee/e4square/internal/session"
	"github.com/its-me-navee/e4square/pkg/relaydto"
	"go.uber.org/zap"
)

// Transport delivers events to connections. Implementations must not block on a slow
// peer.
type Transport interface {
	SendTo(conn, event string, payload any) error
	BroadcastToRoom(room, event string, payload any, exclude string)
	BroadcastToAll(event string, payload any)
	JoinRoom(conn, room string)
	Close(conn string)
}

// Archiver receives finished sessions.
type Archiver interface {
	Submit(s session.Session) bool
}

type Deps struct {
	Transport   Transport
	Verifier    identity.Verifier
	Presence    *presence.Registry
	Invites     *invite.Broker
	Sessions    *session.Store
	Messages    *msgcat.Catalog
	Metrics     metrics.Recorder
	Archive     Archiver
	AuthTimeout time.Duration
}

type Gateway struct {
	transport   Transport
	verifier    identity.Verifier
	presence    *presence.Registry
	invites     *invite.Broker
	sessions    *session.Store
	messages    *msgcat.Catalog
	metrics     metrics.Recorder
	archive     Archiver
	authTimeout time.Duration
}

func New(d Deps) *Gateway {
	g := &Gateway{
		transport:   d.Transport,
		verifier:    d.Verifier,
		presence:    d.Presence,
		invites:     d.Invites,
		sessions:    d.Sessions,
		messages:    d.Messages,
		metrics:     d.Metrics,
		archive:     d.Archive,
		authTimeout: d.AuthTimeout,
	}
	if g.messages == nil {
		g.messages = msgcat.MustDefault()
	}
	if g.metrics == nil {
		g.metrics = metrics.Nop{}
	}
	if g.authTimeout <= 0 {
		g.authTimeout = 5 * time.Second
	}
	return g
}

// Authenticate verifies token. Token problems wrap identity.ErrUnauthorized; any other
// error means the identity provider could not be reached.
func (g *Gateway) Authenticate(ctx context.Context, token string) (identity.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, g.authTimeout)
	defer cancel()
	id, err := g.verifier.Verify(ctx, token)
	if err != nil {
		g.metrics.RecordAuthFailure()
		obslog.L().Info("gateway_auth_failed", zap.Error(err))
		if errors.Is(err, identity.ErrUnauthorized) {
			return identity.Identity{}, err
		}
		return identity.Identity{}, fmt.Errorf("verify token: %w", err)
	}
	return id, nil
}

// Connect registers the presence of an authenticated connection. A previous connection
// of the same identity is closed.
func (g *Gateway) Connect(conn string, id identity.Identity) error {
	p, displaced, err := g.presence.Register(id.ID, id.Name, conn)
	if err != nil {
		return err
	}
	if displaced != "" {
		obslog.L().Info("gateway_displace", zap.String("identity", p.Identity), zap.String("old_conn", displaced), zap.String("conn", conn))
		g.transport.Close(displaced)
	}
	g.broadcastPlayers()
	return nil
}

// Disconnect tears down the presence of conn. Stale connections, already displaced by a
// newer one, change nothing, and seats already rebound to a newer connection are kept.
func (g *Gateway) Disconnect(conn string) {
	p, ok := g.presence.Unregister(conn)
	if !ok {
		return
	}
	cancelled := g.invites.CancelFor(p.Identity)
	deleted := g.sessions.ReleaseIdentity(p.Identity, conn)
	obslog.L().Info("gateway_disconnect",
		zap.String("identity", p.Identity),
		zap.String("conn", conn),
		zap.Int("cancelled_invitations", len(cancelled)),
		zap.Strings("deleted_rooms", deleted),
	)
	for range cancelled {
		g.metrics.RecordInvitation("cancelled")
	}
	g.broadcastPlayers()
	g.reportSessions()
}

// Dispatch handles one inbound event from conn. It never panics.
func (g *Gateway) Dispatch(ctx context.Context, conn string, env relaydto.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("gateway_panic",
				zap.String("conn", conn),
				zap.String("event", env.Event),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			g.sendError(conn, codeInternal, "request.internal", nil)
		}
	}()

	if ctx.Err() != nil {
		return
	}
	p, ok := g.presence.LookupConn(conn)
	if !ok {
		obslog.L().Debug("gateway_stale_conn", zap.String("conn", conn), zap.String("event", env.Event))
		return
	}

	switch env.Event {
	case relaydto.EventCreateGame:
		var req relaydto.RoomRequest
		if g.decode(conn, env, &req) {
			g.createGame(p, req)
		}
	case relaydto.EventJoinGame:
		var req relaydto.RoomRequest
		if g.decode(conn, env, &req) {
			g.joinGame(p, req)
		}
	case relaydto.EventSendInvitation:
		var req relaydto.SendInvitationRequest
		if g.decode(conn, env, &req) {
			g.sendInvitation(p, req)
		}
	case relaydto.EventRespondInvitation:
		var req relaydto.RespondInvitationRequest
		if g.decode(conn, env, &req) {
			g.respondInvitation(p, req)
		}
	case relaydto.EventMove:
		var req relaydto.MoveRequest
		if g.decode(conn, env, &req) {
			g.move(p, req)
		}
	case relaydto.EventGetMoveHistory:
		var req relaydto.RoomRequest
		if g.decode(conn, env, &req) {
			g.moveHistory(p, req)
		}
	default:
		g.sendError(conn, codeUnknownEvent, "request.unknown_event", map[string]any{"Event": env.Event})
	}
}

// History returns the move log of roomID in wire form.
func (g *Gateway) History(roomID string) ([]relaydto.HistoryEntry, error) {
	moves, err := g.sessions.History(roomID)
	if err != nil {
		return nil, err
	}
	return historyOf(moves), nil
}

func (g *Gateway) decode(conn string, env relaydto.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		obslog.L().Info("gateway_bad_payload", zap.String("conn", conn), zap.String("event", env.Event), zap.Error(err))
		g.sendError(conn, codeInvalidRequest, "request.invalid", map[string]any{"Event": env.Event})
		return false
	}
	return true
}

func (g *Gateway) send(conn, event string, payload any) {
	if conn == "" {
		return
	}
	if err := g.transport.SendTo(conn, event, payload); err != nil {
		obslog.L().Debug("gateway_send_failed", zap.String("conn", conn), zap.String("event", event), zap.Error(err))
	}
}

func (g *Gateway) sendError(conn, code, key string, data any) {
	g.send(conn, relaydto.EventError, relaydto.Error{Code: code, Message: g.messages.Text(key, data)})
}

func (g *Gateway) sendNotFound(conn, roomID string) {
	g.send(conn, relaydto.EventGameNotFound, relaydto.GameNotFound{
		RoomID:  roomID,
		Message: g.messages.Text("room.not_found", map[string]any{"RoomID": roomID}),
	})
}

func (g *Gateway) broadcastPlayers() {
	list := g.presence.List()
	players := make([]relaydto.Player, 0, len(list))
	for _, p := range list {
		players = append(players, relaydto.Player{SocketID: p.Conn, Email: p.Identity, Name: p.Name})
	}
	g.transport.BroadcastToAll(relaydto.EventActivePlayers, players)
	g.metrics.SetConnections(len(list))
}

func (g *Gateway) reportSessions() {
	counts := g.sessions.Counts()
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	g.metrics.SetSessions(out)
}
