// Package rules adapts a chess move-legality library to the relay's rules-engine contract.
//
// The relay never inspects a Position; it only threads it through Apply, Terminal and
// Serialize. Positions are immutable values: Apply returns a new one and leaves its
// input untouched, so a rejected move cannot corrupt a session.
package rules

import (
	"errors"
	"strings"
)

// ErrIllegalMove is wrapped by every rejection returned from Engine.Apply.
var ErrIllegalMove = errors.New("illegal move")

// Color is the side a rules engine reports as winner.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Position is an engine-owned board state.
type Position any

// MoveDescriptor is what a client proposes: squares plus optional promotion piece.
// SAN is accepted as a fallback when From/To are empty.
type MoveDescriptor struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san,omitempty"`
}

// UCI renders the descriptor in long algebraic form (e2e4, e7e8q).
func (d MoveDescriptor) UCI() string {
	from := strings.ToLower(strings.TrimSpace(d.From))
	to := strings.ToLower(strings.TrimSpace(d.To))
	if from == "" || to == "" {
		return ""
	}
	return from + to + strings.ToLower(strings.TrimSpace(d.Promotion))
}

// AppliedMove is the validated form of a move, as relayed to the opponent.
type AppliedMove struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	Color     Color  `json:"color"`
	FEN       string `json:"fen"`
}

// TerminalKind classifies a finished position.
type TerminalKind string

const (
	TerminalNone      TerminalKind = ""
	TerminalCheckmate TerminalKind = "checkmate"
	TerminalStalemate TerminalKind = "stalemate"
	TerminalDraw      TerminalKind = "draw"
)

// Terminal describes whether a position ends the game.
type Terminal struct {
	Kind   TerminalKind
	Winner Color  // set only for checkmate
	Method string // engine-specific detail, e.g. insufficientmaterial
}

// Over reports whether the game has ended.
func (t Terminal) Over() bool { return t.Kind != TerminalNone }

// Engine is the rules-engine collaborator.
type Engine interface {
	Initial() Position
	Apply(pos Position, mv MoveDescriptor) (Position, AppliedMove, error)
	Terminal(pos Position) Terminal
	Serialize(pos Position) string
}
