package gateway

import (
	"errors"
	"strings"

	"github.com/its-me-navee/e4square/internal/invite"
	"github.com/its-me-navee/e4square/internal/obslog"
	"github.com/its-me-navee/e4square/internal/presence"
	"github.com/its-me-navee/e4square/internal/rules"
	"github.com/its-me-navee/e4square/internal/session"
	"github.com/its-me-navee/e4square/pkg/relaydto"
	"go.uber.org/zap"
)

// error codes carried in relaydto.Error
const (
	codeInvalidRequest     = "invalid_request"
	codeUnknownEvent       = "unknown_event"
	codeRoomExists         = "room_exists"
	codeNotSeated          = "not_seated"
	codeSelfInvite         = "self_invite"
	codeInvitationNotFound = "invitation_not_found"
	codeNotRecipient       = "not_recipient"
	codeInternal           = "internal"
)

func (g *Gateway) createGame(p presence.Presence, req relaydto.RoomRequest) {
	roomID := strings.TrimSpace(req.RoomID)
	sess, err := g.sessions.CreateWaiting(roomID, p.Identity, p.Name, p.Conn)
	switch {
	case errors.Is(err, session.ErrRoomAlreadyExists):
		g.sendError(p.Conn, codeRoomExists, "room.exists", map[string]any{"RoomID": roomID})
		return
	case err != nil:
		g.sendError(p.Conn, codeInvalidRequest, "request.invalid", map[string]any{"Event": relaydto.EventCreateGame})
		return
	}
	g.transport.JoinRoom(p.Conn, roomID)
	g.send(p.Conn, relaydto.EventGameJoined, relaydto.GameJoined{RoomID: roomID, Side: sideName(session.SideFirst)})
	g.send(p.Conn, relaydto.EventGameState, gameState(sess))
	g.reportSessions()
}

func (g *Gateway) joinGame(p presence.Presence, req relaydto.RoomRequest) {
	roomID := strings.TrimSpace(req.RoomID)
	res, err := g.sessions.GetOrCreate(roomID, p.Identity, p.Name, p.Conn)
	switch {
	case errors.Is(err, session.ErrGameFull):
		g.send(p.Conn, relaydto.EventGameFull, relaydto.GameFull{
			RoomID:  roomID,
			Message: g.messages.Text("room.full", map[string]any{"RoomID": roomID}),
		})
		return
	case errors.Is(err, session.ErrRoomNotFound):
		g.sendNotFound(p.Conn, roomID)
		return
	case err != nil:
		g.sendError(p.Conn, codeInvalidRequest, "request.invalid", map[string]any{"Event": relaydto.EventJoinGame})
		return
	}

	g.transport.JoinRoom(p.Conn, roomID)
	g.send(p.Conn, relaydto.EventGameJoined, relaydto.GameJoined{
		RoomID:   roomID,
		Side:     sideName(res.Side),
		Opponent: res.Opponent.Name,
	})
	state := gameState(res.Session)
	g.send(p.Conn, relaydto.EventGameState, state)
	if res.Started {
		g.send(res.Opponent.Conn, relaydto.EventOpponentJoined, relaydto.OpponentJoined{Opponent: p.Name})
		g.send(res.Opponent.Conn, relaydto.EventGameState, state)
	}
	g.reportSessions()
}

func (g *Gateway) sendInvitation(p presence.Presence, req relaydto.SendInvitationRequest) {
	to := strings.ToLower(strings.TrimSpace(req.ToEmail))
	inv, err := g.invites.Send(p.Identity, p.Name, to, req.RoomID)
	switch {
	case errors.Is(err, invite.ErrTargetOffline):
		// offline targets are dropped without telling the sender
		g.metrics.RecordInvitation("offline")
		return
	case errors.Is(err, invite.ErrSelfInvite):
		g.sendError(p.Conn, codeSelfInvite, "invitation.self", nil)
		return
	case err != nil:
		g.sendError(p.Conn, codeInvalidRequest, "request.invalid", map[string]any{"Event": relaydto.EventSendInvitation})
		return
	}
	g.metrics.RecordInvitation("sent")
	g.send(inv.ToConn, relaydto.EventGameInvitation, relaydto.GameInvitation{
		InvitationID: inv.ID,
		From:         inv.From,
		FromName:     inv.FromName,
		RoomID:       inv.RoomID,
	})
}

func (g *Gateway) respondInvitation(p presence.Presence, req relaydto.RespondInvitationRequest) {
	inv, err := g.invites.Respond(req.InvitationID, p.Identity, req.Accepted)
	switch {
	case errors.Is(err, invite.ErrInvitationNotFound):
		g.sendError(p.Conn, codeInvitationNotFound, "invitation.not_found", nil)
		return
	case errors.Is(err, invite.ErrNotRecipient):
		g.sendError(p.Conn, codeNotRecipient, "invitation.not_recipient", nil)
		return
	case err != nil:
		g.sendError(p.Conn, codeInvalidRequest, "request.invalid", map[string]any{"Event": relaydto.EventRespondInvitation})
		return
	}

	inviterConn := ""
	if from, ok := g.presence.Lookup(inv.From); ok {
		inviterConn = from.Conn
	}

	if !req.Accepted {
		g.metrics.RecordInvitation("declined")
		g.send(inviterConn, relaydto.EventInvitationDeclined, relaydto.InvitationDeclined{From: p.Identity, FromName: p.Name})
		return
	}

	sess, err := g.sessions.Activate(inv.RoomID,
		session.Seat{Identity: inv.From, Name: inv.FromName, Conn: inviterConn},
		session.Seat{Identity: p.Identity, Name: p.Name, Conn: p.Conn},
	)
	if err != nil {
		obslog.L().Info("gateway_activate_failed", zap.String("room_id", inv.RoomID), zap.Error(err))
		g.metrics.RecordInvitation("failed")
		full := relaydto.GameFull{
			RoomID:  inv.RoomID,
			Message: g.messages.Text("room.full", map[string]any{"RoomID": inv.RoomID}),
		}
		// the invitation is spent, so both parties hear why no game started
		g.send(p.Conn, relaydto.EventGameFull, full)
		g.send(inviterConn, relaydto.EventGameFull, full)
		return
	}
	g.metrics.RecordInvitation("accepted")

	state := gameState(sess)
	if inviterConn != "" {
		g.transport.JoinRoom(inviterConn, inv.RoomID)
	}
	g.transport.JoinRoom(p.Conn, inv.RoomID)
	g.send(inviterConn, relaydto.EventInvitationAccepted, relaydto.InvitationAccepted{
		RoomID:   inv.RoomID,
		Side:     sideName(session.SideFirst),
		Opponent: sess.Second.Name,
	})
	g.send(inviterConn, relaydto.EventGameState, state)
	g.send(p.Conn, relaydto.EventInvitationAccepted, relaydto.InvitationAccepted{
		RoomID:   inv.RoomID,
		Side:     sideName(session.SideSecond),
		Opponent: sess.First.Name,
	})
	g.send(p.Conn, relaydto.EventGameState, state)
	g.reportSessions()
}

func (g *Gateway) move(p presence.Presence, req relaydto.MoveRequest) {
	roomID := strings.TrimSpace(req.RoomID)
	mv := rules.MoveDescriptor{From: req.Move.From, To: req.Move.To, Promotion: req.Move.Promotion, SAN: req.Move.SAN}
	out, err := g.sessions.SubmitMove(roomID, p.Identity, mv)
	if err != nil {
		g.rejectMove(p, roomID, err)
		return
	}
	g.metrics.RecordMove()
	g.send(out.Opponent.Conn, relaydto.EventOpponentMove, relaydto.OpponentMove{Move: moveRecord(out.Move)})
	if !out.Finished {
		return
	}
	g.transport.BroadcastToRoom(roomID, relaydto.EventGameOver, gameOver(out.Session), "")
	if g.archive != nil && !g.archive.Submit(out.Session) {
		obslog.L().Warn("gateway_archive_skipped", zap.String("room_id", roomID))
	}
	g.reportSessions()
}

func (g *Gateway) rejectMove(p presence.Presence, roomID string, err error) {
	data := map[string]any{"RoomID": roomID}
	var illegal *session.IllegalMoveError
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		g.metrics.RecordMoveRejected("room_not_found")
		g.sendNotFound(p.Conn, roomID)
	case errors.Is(err, session.ErrNotSeated):
		g.metrics.RecordMoveRejected("not_seated")
		g.sendError(p.Conn, codeNotSeated, "room.not_seated", data)
	case errors.Is(err, session.ErrGameNotActive):
		g.metrics.RecordMoveRejected("not_active")
		g.send(p.Conn, relaydto.EventInvalidMove, relaydto.InvalidMove{Error: g.messages.Text("room.not_active", data)})
	case errors.Is(err, session.ErrNotYourTurn):
		g.metrics.RecordMoveRejected("not_your_turn")
		g.send(p.Conn, relaydto.EventInvalidMove, relaydto.InvalidMove{Error: g.messages.Text("move.not_your_turn", nil)})
	case errors.As(err, &illegal):
		g.metrics.RecordMoveRejected("illegal")
		g.send(p.Conn, relaydto.EventInvalidMove, relaydto.InvalidMove{
			Error: g.messages.Text("move.illegal", map[string]any{"Reason": illegal.Reason}),
		})
	default:
		g.metrics.RecordMoveRejected("error")
		obslog.L().Error("gateway_move_failed", zap.String("room_id", roomID), zap.String("identity", p.Identity), zap.Error(err))
		g.sendError(p.Conn, codeInternal, "request.internal", nil)
	}
}

func (g *Gateway) moveHistory(p presence.Presence, req relaydto.RoomRequest) {
	roomID := strings.TrimSpace(req.RoomID)
	moves, err := g.History(roomID)
	if err != nil {
		g.sendNotFound(p.Conn, roomID)
		return
	}
	g.send(p.Conn, relaydto.EventMoveHistory, relaydto.MoveHistory{RoomID: roomID, Moves: moves})
}
