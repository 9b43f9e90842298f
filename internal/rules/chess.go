package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// chessPosition stores the UCI history; the board is rebuilt from the start position on
// demand so a Position never shares mutable state with another.
type chessPosition struct {
	moves    []string
	fen      string
	terminal Terminal
}

// Chess implements Engine for standard chess.
type Chess struct {
	startFEN string
}

// NewChess returns the standard chess engine.
func NewChess() *Chess {
	return &Chess{startFEN: nchess.NewGame().FEN()}
}

func (c *Chess) Initial() Position {
	return &chessPosition{moves: []string{}, fen: c.startFEN}
}

func (c *Chess) Apply(pos Position, mv MoveDescriptor) (Position, AppliedMove, error) {
	cur, err := c.cast(pos)
	if err != nil {
		return nil, AppliedMove{}, err
	}
	if cur.terminal.Over() {
		return nil, AppliedMove{}, fmt.Errorf("%w: game already over", ErrIllegalMove)
	}
	game, err := replay(cur.moves)
	if err != nil {
		return nil, AppliedMove{}, err
	}
	before := game.Position()
	mover := colorFrom(before.Turn())

	move, err := decode(before, mv)
	if err != nil {
		return nil, AppliedMove{}, err
	}
	if err := game.Move(move, nil); err != nil {
		return nil, AppliedMove{}, fmt.Errorf("%w: %s is not legal here", ErrIllegalMove, describe(mv))
	}

	uci := strings.ToLower(nchess.UCINotation{}.Encode(before, move))
	applied := AppliedMove{
		SAN:   nchess.AlgebraicNotation{}.Encode(before, move),
		UCI:   uci,
		Color: mover,
		FEN:   game.FEN(),
	}
	if len(uci) >= 4 {
		applied.From, applied.To = uci[0:2], uci[2:4]
	}
	if len(uci) == 5 {
		applied.Promotion = uci[4:]
	}

	next := &chessPosition{
		moves:    append(append(make([]string, 0, len(cur.moves)+1), cur.moves...), uci),
		fen:      applied.FEN,
		terminal: terminalOf(game),
	}
	return next, applied, nil
}

func (c *Chess) Terminal(pos Position) Terminal {
	cur, err := c.cast(pos)
	if err != nil {
		return Terminal{}
	}
	return cur.terminal
}

func (c *Chess) Serialize(pos Position) string {
	cur, err := c.cast(pos)
	if err != nil {
		return ""
	}
	return cur.fen
}

func (c *Chess) cast(pos Position) (*chessPosition, error) {
	if pos == nil {
		return &chessPosition{moves: []string{}, fen: c.startFEN}, nil
	}
	cur, ok := pos.(*chessPosition)
	if !ok {
		return nil, fmt.Errorf("rules: foreign position type %T", pos)
	}
	return cur, nil
}

func decode(pos *nchess.Position, mv MoveDescriptor) (*nchess.Move, error) {
	if uci := mv.UCI(); uci != "" {
		move, err := nchess.UCINotation{}.Decode(pos, uci)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot read %s", ErrIllegalMove, uci)
		}
		return move, nil
	}
	if san := strings.TrimSpace(mv.SAN); san != "" {
		move, err := nchess.AlgebraicNotation{}.Decode(pos, san)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot read %s", ErrIllegalMove, san)
		}
		return move, nil
	}
	return nil, fmt.Errorf("%w: empty move", ErrIllegalMove)
}

func replay(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("rules: replay %s: %w", mv, err)
		}
	}
	return game, nil
}

func terminalOf(game *nchess.Game) Terminal {
	method := strings.ToLower(game.Method().String())
	switch game.Outcome() {
	case nchess.WhiteWon:
		return Terminal{Kind: TerminalCheckmate, Winner: White, Method: method}
	case nchess.BlackWon:
		return Terminal{Kind: TerminalCheckmate, Winner: Black, Method: method}
	case nchess.Draw:
		if game.Method() == nchess.Stalemate {
			return Terminal{Kind: TerminalStalemate, Method: method}
		}
		return Terminal{Kind: TerminalDraw, Method: method}
	}
	return Terminal{}
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.White {
		return White
	}
	return Black
}

func describe(mv MoveDescriptor) string {
	if uci := mv.UCI(); uci != "" {
		return uci
	}
	return strings.TrimSpace(mv.SAN)
}
