// Package archive exports finished games to external stores. It is an outbound record
// of results; live sessions are never read back from it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/its-me-navee/e4square/internal/rules"
	"github.com/its-me-navee/e4square/internal/session"
)

// Record is one finished game.
type Record struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	WhiteID   string    `json:"whiteId"`
	WhiteName string    `json:"whiteName"`
	BlackID   string    `json:"blackId"`
	BlackName string    `json:"blackName"`
	Result    string    `json:"result"` // white | black | draw
	Method    string    `json:"method"`
	MovesUCI  []string  `json:"movesUci"`
	MovesSAN  []string  `json:"movesSan"`
	FinalFEN  string    `json:"finalFen"`
	PGN       string    `json:"pgn"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// Sink persists records. Save must be idempotent per Record.ID.
type Sink interface {
	Save(ctx context.Context, rec Record) error
	Close() error
}

// FromSession builds the record of a finished session.
func FromSession(s session.Session) (Record, error) {
	if s.Status != session.StatusFinished || s.Result == nil {
		return Record{}, fmt.Errorf("session %s is not finished", s.RoomID)
	}
	rec := Record{
		ID:        fmt.Sprintf("%s-%d", s.RoomID, s.CreatedAt.UnixMilli()),
		RoomID:    s.RoomID,
		WhiteID:   s.First.Identity,
		WhiteName: s.First.Name,
		BlackID:   s.Second.Identity,
		BlackName: s.Second.Name,
		Result:    resultToken(*s.Result),
		Method:    strings.ToLower(strings.TrimSpace(s.Result.Method)),
		MovesUCI:  make([]string, 0, len(s.Moves)),
		MovesSAN:  make([]string, 0, len(s.Moves)),
		FinalFEN:  s.FEN,
		StartedAt: s.CreatedAt,
		EndedAt:   s.UpdatedAt,
	}
	if rec.Method == "" {
		rec.Method = string(s.Result.Kind)
	}
	for _, m := range s.Moves {
		rec.MovesUCI = append(rec.MovesUCI, m.UCI)
		rec.MovesSAN = append(rec.MovesSAN, m.SAN)
	}
	rec.PGN = BuildPGN(rec)
	return rec, nil
}

func resultToken(r session.Result) string {
	if r.Kind == rules.TerminalCheckmate {
		return string(r.Winner.Color())
	}
	return "draw"
}

func pgnResult(result string) string {
	switch result {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	}
	return "*"
}

// BuildPGN renders rec as PGN with numbered SAN moves.
func BuildPGN(rec Record) string {
	var b strings.Builder
	date := rec.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	res := pgnResult(rec.Result)
	fmt.Fprintf(&b, "[Event \"e4square\"]\n")
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitizePGN(rec.RoomID))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(rec.WhiteName))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(rec.BlackName))
	if rec.Method != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(rec.Method))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", res)

	for i := 0; i < len(rec.MovesSAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(rec.MovesSAN[i]))
		if i+1 < len(rec.MovesSAN) {
			b.WriteString(strings.TrimSpace(rec.MovesSAN[i+1]))
			b.WriteString(" ")
		}
	}
	b.WriteString(res)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

// Multi fans a record out to several sinks and joins their errors.
type Multi []Sink

func (m Multi) Save(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
