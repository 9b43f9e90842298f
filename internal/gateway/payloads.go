package gateway

import (
	"github.com/its-me-navee/e4square/internal/rules"
	"github.com/its-me-navee/e4square/internal/session"
	"github.com/its-me-navee/e4square/pkg/relaydto"
)

// sideName is the wire form of a side: the color it plays.
func sideName(s session.Side) string { return string(s.Color()) }

func moveRecord(m session.MoveRecord) relaydto.MoveRecord {
	return relaydto.MoveRecord{
		From:      m.From,
		To:        m.To,
		Promotion: m.Promotion,
		SAN:       m.SAN,
		UCI:       m.UCI,
		Color:     string(m.Color),
		FEN:       m.FEN,
	}
}

func historyOf(moves []session.MoveRecord) []relaydto.HistoryEntry {
	out := make([]relaydto.HistoryEntry, 0, len(moves))
	for _, m := range moves {
		out = append(out, relaydto.HistoryEntry{Move: moveRecord(m), FEN: m.FEN})
	}
	return out
}

func gameState(s session.Session) relaydto.GameState {
	return relaydto.GameState{
		RoomID: s.RoomID,
		FEN:    s.FEN,
		Moves:  historyOf(s.Moves),
		Status: string(s.Status),
		Turn:   sideName(s.Turn()),
	}
}

func gameOver(s session.Session) relaydto.GameOver {
	out := relaydto.GameOver{RoomID: s.RoomID}
	if s.Result == nil {
		return out
	}
	out.Reason = s.Result.Method
	if out.Reason == "" {
		out.Reason = string(s.Result.Kind)
	}
	switch s.Result.Kind {
	case rules.TerminalCheckmate:
		out.IsCheckmate = true
		out.Winner = sideName(s.Result.Winner)
	case rules.TerminalStalemate:
		out.IsStalemate = true
		out.IsDraw = true
	case rules.TerminalDraw:
		out.IsDraw = true
	}
	return out
}
