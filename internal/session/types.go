package session

import (
	"strings"
	"time"

	"github.com/its-me-navee/e4square/internal/rules"
)

// Status is the lifecycle state of a session: WAITING -> ACTIVE -> FINISHED.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
)

func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusActive:
		return 1
	case StatusFinished:
		return 2
	}
	return -1
}

// Side is one of the two seats. First moves on an even-length move log and plays white.
type Side string

const (
	SideFirst  Side = "first"
	SideSecond Side = "second"
)

func (s Side) Opponent() Side {
	if s == SideFirst {
		return SideSecond
	}
	return SideFirst
}

// Color is the chess color played from this side.
func (s Side) Color() rules.Color {
	if s == SideFirst {
		return rules.White
	}
	return rules.Black
}

func sideOfColor(c rules.Color) Side {
	if c == rules.White {
		return SideFirst
	}
	return SideSecond
}

// Seat is a side's occupant. Conn is empty while the occupant is disconnected.
type Seat struct {
	Identity string
	Name     string
	Conn     string
}

func (s Seat) Empty() bool { return strings.TrimSpace(s.Identity) == "" }

// MoveRecord is one accepted move and the position it produced. Records are never
// mutated once appended.
type MoveRecord struct {
	rules.AppliedMove
	Side Side
	At   time.Time
}

// Result describes how a finished session ended.
type Result struct {
	Kind   rules.TerminalKind
	Winner Side // empty for draws
	Method string
}

// Session is a point-in-time copy of a room. Mutating it has no effect on the store.
type Session struct {
	RoomID    string
	First     Seat
	Second    Seat
	Status    Status
	Moves     []MoveRecord
	FEN       string
	Result    *Result
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Session) Seat(side Side) Seat {
	if side == SideFirst {
		return s.First
	}
	return s.Second
}

// SideOf returns the side held by identity.
func (s Session) SideOf(identity string) (Side, bool) {
	switch {
	case !s.First.Empty() && s.First.Identity == identity:
		return SideFirst, true
	case !s.Second.Empty() && s.Second.Identity == identity:
		return SideSecond, true
	}
	return "", false
}

// Turn derives whose move it is from the parity of the move log.
func (s Session) Turn() Side { return turnFor(len(s.Moves)) }

func turnFor(n int) Side {
	if n%2 == 0 {
		return SideFirst
	}
	return SideSecond
}

// JoinResult reports what a join did.
type JoinResult struct {
	Session     Session
	Side        Side
	Opponent    Seat
	Reconnected bool
	// Started is set when this join seated the second player and activated the session.
	Started bool
	// Created is set when GetOrCreate had to create the room.
	Created bool
}

// MoveOutcome is the result of an accepted move.
type MoveOutcome struct {
	Session  Session
	Move     MoveRecord
	Side     Side
	Opponent Seat
	// Finished is set on the one move that ended the game.
	Finished bool
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	ErrInvalidArgs       = staticErr("invalid arguments")
	ErrRoomNotFound      = staticErr("room not found")
	ErrRoomAlreadyExists = staticErr("room already exists")
	ErrGameFull          = staticErr("game already has two players")
	ErrNotSeated         = staticErr("player is not seated in this room")
	ErrNotYourTurn       = staticErr("not your turn")
	ErrGameNotActive     = staticErr("game is not active")
)

// IllegalMoveError carries the rules engine's reason for rejecting a move.
type IllegalMoveError struct {
	Reason string
}

func (e *IllegalMoveError) Error() string { return "illegal move: " + e.Reason }

func (e *IllegalMoveError) Unwrap() error { return rules.ErrIllegalMove }
