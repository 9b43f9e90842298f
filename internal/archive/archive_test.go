package archive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/its-me-navee/e4square/internal/rules"
	"github.com/its-me-navee/e4square/internal/session"
)

func foolsMate(t *testing.T) session.Session {
	t.Helper()
	store := session.NewStore(rules.NewChess())
	if _, err := store.Activate("room1", session.Seat{Identity: "alice", Name: "Alice"}, session.Seat{Identity: "bob", Name: "Bob \"B\""}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	moves := []struct{ who, from, to string }{
		{"alice", "f2", "f3"}, {"bob", "e7", "e5"}, {"alice", "g2", "g4"}, {"bob", "d8", "h4"},
	}
	var out session.MoveOutcome
	for _, m := range moves {
		var err error
		out, err = store.SubmitMove("room1", m.who, rules.MoveDescriptor{From: m.from, To: m.to})
		if err != nil {
			t.Fatalf("SubmitMove %s%s: %v", m.from, m.to, err)
		}
	}
	if !out.Finished {
		t.Fatalf("expected finished game")
	}
	return out.Session
}

func TestFromSessionBuildsPGN(t *testing.T) {
	rec, err := FromSession(foolsMate(t))
	if err != nil {
		t.Fatalf("FromSession: %v", err)
	}
	if rec.Result != "black" || rec.WhiteID != "alice" || len(rec.MovesUCI) != 4 {
		t.Fatalf("unexpected record %+v", rec)
	}
	for _, want := range []string{`[White "Alice"]`, `[Black "Bob 'B'"]`, `[Result "0-1"]`, "1. f3 e5 2. g4 Qh4# 0-1"} {
		if !strings.Contains(rec.PGN, want) {
			t.Fatalf("PGN missing %q:\n%s", want, rec.PGN)
		}
	}
}

func TestFromSessionRejectsUnfinished(t *testing.T) {
	if _, err := FromSession(session.Session{RoomID: "r", Status: session.StatusActive}); err == nil {
		t.Fatalf("expected error for active session")
	}
}

func TestRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	sink, err := NewRedisSink(context.Background(), "redis://"+mr.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisSink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	rec, _ := FromSession(foolsMate(t))
	ctx := context.Background()
	if err := sink.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := sink.Save(ctx, rec); err != nil {
		t.Fatalf("Save again: %v", err)
	}
	got, err := sink.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PGN != rec.PGN || got.Result != "black" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	ids, err := sink.Recent(ctx, 10)
	if err != nil || len(ids) != 1 || ids[0] != rec.ID {
		t.Fatalf("unexpected index %v %v", ids, err)
	}
	if ttl := mr.TTL(redisKeyPrefix + rec.ID); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
	if _, err := sink.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type memSink struct {
	mu     sync.Mutex
	saved  []Record
	err    error
	closed bool
}

func (m *memSink) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok, bad := &memSink{}, &memSink{err: boom}
	err := Multi{ok, bad}.Save(context.Background(), Record{ID: "x"})
	if !errors.Is(err, boom) || len(ok.saved) != 1 {
		t.Fatalf("expected partial save and joined error, got %v", err)
	}
}

func TestRedisReaderFindsRedisSink(t *testing.T) {
	rs := &RedisSink{}
	if got, ok := RedisReader(rs); !ok || got != rs {
		t.Fatalf("direct redis sink not found")
	}
	if got, ok := RedisReader(Multi{&memSink{}, rs}); !ok || got != rs {
		t.Fatalf("redis sink inside Multi not found")
	}
	if _, ok := RedisReader(&memSink{}); ok {
		t.Fatalf("non-redis sink must not serve reads")
	}
	if _, ok := RedisReader(nil); ok {
		t.Fatalf("nil sink must not serve reads")
	}
}

func TestArchiverDrainsOnClose(t *testing.T) {
	sink := &memSink{}
	a := NewArchiver(sink, 4)
	if !a.Submit(foolsMate(t)) {
		t.Fatalf("Submit refused")
	}
	a.Submit(session.Session{RoomID: "unfinished", Status: session.StatusActive})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sink.saved) != 1 || !sink.closed {
		t.Fatalf("expected one saved record and closed sink, got %d closed=%v", len(sink.saved), sink.closed)
	}
	if a.Submit(foolsMate(t)) {
		t.Fatalf("closed archiver must refuse work")
	}
	var nilArchiver *Archiver
	if nilArchiver.Submit(session.Session{}) || nilArchiver.Close(ctx) != nil {
		t.Fatalf("nil archiver must be inert")
	}
}
