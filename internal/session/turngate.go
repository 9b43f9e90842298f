package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/its-me-navee/e4square/internal/obslog"
	"github.com/its-me-navee/e4square/internal/rules"
	"go.uber.org/zap"
)

// SubmitMove accepts mv from identity only when identity holds the side whose turn it
// is. Checks run under the room lock, so of two racing submissions only one is ever
// evaluated as the turn owner. A rejected move leaves the room untouched.
func (s *Store) SubmitMove(roomID, identity string, mv rules.MoveDescriptor) (MoveOutcome, error) {
	roomID, identity = strings.TrimSpace(roomID), strings.TrimSpace(identity)
	r := s.lookup(roomID)
	if r == nil {
		return MoveOutcome{}, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return MoveOutcome{}, ErrRoomNotFound
	}

	side, ok := r.sideOf(identity)
	if !ok {
		return MoveOutcome{}, ErrNotSeated
	}
	if r.status != StatusActive {
		return MoveOutcome{}, ErrGameNotActive
	}
	if turnFor(len(r.moves)) != side {
		return MoveOutcome{}, ErrNotYourTurn
	}

	next, applied, err := s.engine.Apply(r.position, mv)
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) {
			return MoveOutcome{}, &IllegalMoveError{Reason: illegalReason(err)}
		}
		return MoveOutcome{}, fmt.Errorf("apply move: %w", err)
	}

	now := time.Now()
	record := MoveRecord{AppliedMove: applied, Side: side, At: now}
	r.moves = append(r.moves, record)
	r.position = next
	r.updatedAt = now

	finished := false
	if term := s.engine.Terminal(next); term.Over() {
		res := &Result{Kind: term.Kind, Method: term.Method}
		if term.Kind == rules.TerminalCheckmate {
			res.Winner = sideOfColor(term.Winner)
		}
		if r.advance(StatusFinished) {
			r.result = res
			finished = true
		}
	}

	obslog.L().Info("session_move",
		zap.String("room_id", r.id),
		zap.String("identity", identity),
		zap.String("side", string(side)),
		zap.String("uci", applied.UCI),
		zap.Int("ply", len(r.moves)),
		zap.String("status", string(r.status)),
	)
	if finished {
		obslog.L().Info("session_finish",
			zap.String("room_id", r.id),
			zap.String("kind", string(r.result.Kind)),
			zap.String("winner", string(r.result.Winner)),
			zap.String("method", r.result.Method),
		)
	}

	return MoveOutcome{
		Session:  s.snapshot(r),
		Move:     record,
		Side:     side,
		Opponent: *r.seat(side.Opponent()),
		Finished: finished,
	}, nil
}

func illegalReason(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, rules.ErrIllegalMove.Error()+": "); i >= 0 {
		msg = msg[i+len(rules.ErrIllegalMove.Error())+2:]
	}
	if strings.TrimSpace(msg) == "" || msg == rules.ErrIllegalMove.Error() {
		return "move rejected"
	}
	return msg
}
