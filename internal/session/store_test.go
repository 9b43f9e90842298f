package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/its-me-navee/e4square/internal/rules"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(rules.NewChess())
}

func TestCreateWaitingRejectsDuplicateRoom(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateWaiting("room1", "alice", "Alice", "c-alice")
	if err != nil {
		t.Fatalf("CreateWaiting: %v", err)
	}
	if sess.Status != StatusWaiting || sess.First.Identity != "alice" || !sess.Second.Empty() {
		t.Fatalf("unexpected session %+v", sess)
	}
	if _, err := s.CreateWaiting("room1", "bob", "Bob", "c-bob"); !errors.Is(err, ErrRoomAlreadyExists) {
		t.Fatalf("expected ErrRoomAlreadyExists, got %v", err)
	}
}

func TestJoinSeatsSecondAndActivates(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateWaiting("room1", "alice", "Alice", "c-alice"); err != nil {
		t.Fatalf("CreateWaiting: %v", err)
	}
	res, err := s.Join("room1", "bob", "Bob", "c-bob")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Side != SideSecond || !res.Started || res.Reconnected {
		t.Fatalf("unexpected join result %+v", res)
	}
	if res.Opponent.Identity != "alice" || res.Opponent.Conn != "c-alice" {
		t.Fatalf("expected alice as opponent, got %+v", res.Opponent)
	}
	if res.Session.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", res.Session.Status)
	}
}

func TestJoinReconnectIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.CreateWaiting("room1", "alice", "Alice", "c1")
	_, _ = s.Join("room1", "bob", "Bob", "c-bob")

	first, err := s.Join("room1", "alice", "Alice", "c2")
	if err != nil {
		t.Fatalf("Join#1: %v", err)
	}
	second, err := s.Join("room1", "alice", "Alice", "c3")
	if err != nil {
		t.Fatalf("Join#2: %v", err)
	}
	if first.Side != SideFirst || second.Side != SideFirst || !first.Reconnected || !second.Reconnected {
		t.Fatalf("reconnect must keep side: %+v / %+v", first, second)
	}
	if second.Started {
		t.Fatalf("reconnect must not restart the game")
	}
	sess, _ := s.Get("room1")
	if sess.First.Conn != "c3" || sess.Second.Identity != "bob" {
		t.Fatalf("unexpected seats %+v / %+v", sess.First, sess.Second)
	}
}

func TestJoinFullAndMissing(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.CreateWaiting("room1", "alice", "Alice", "c-alice")
	_, _ = s.Join("room1", "bob", "Bob", "c-bob")
	if _, err := s.Join("room1", "carol", "Carol", "c-carol"); !errors.Is(err, ErrGameFull) {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
	if _, err := s.Join("nope", "carol", "Carol", "c-carol"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestGetOrCreate(t *testing.T) {
	s := newTestStore(t)
	res, err := s.GetOrCreate("room1", "alice", "Alice", "c-alice")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !res.Created || res.Side != SideFirst || res.Session.Status != StatusWaiting {
		t.Fatalf("unexpected create result %+v", res)
	}
	res, err = s.GetOrCreate("room1", "bob", "Bob", "c-bob")
	if err != nil {
		t.Fatalf("GetOrCreate join: %v", err)
	}
	if res.Created || res.Side != SideSecond || !res.Started {
		t.Fatalf("unexpected join result %+v", res)
	}
}

func TestGetOrCreateRaceCreatesOnce(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	results := make([]JoinResult, 2)
	errs := make([]error, 2)
	for i, who := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, who string) {
			defer wg.Done()
			results[i], errs[i] = s.GetOrCreate("room1", who, who, "c-"+who)
		}(i, who)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}
	if results[0].Created == results[1].Created {
		t.Fatalf("exactly one caller must create the room: %+v", results)
	}
	if results[0].Side == results[1].Side {
		t.Fatalf("racing players must get different sides")
	}
	sess, _ := s.Get("room1")
	if sess.Status != StatusActive {
		t.Fatalf("expected ACTIVE after both joined, got %s", sess.Status)
	}
}

func TestReleaseIdentityDeletesSoleWaitingRoom(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.CreateWaiting("lonely", "alice", "Alice", "c-alice")
	_, _ = s.CreateWaiting("room1", "alice", "Alice", "c-alice")
	_, _ = s.Join("room1", "bob", "Bob", "c-bob")

	deleted := s.ReleaseIdentity("alice", "c-alice")
	if len(deleted) != 1 || deleted[0] != "lonely" {
		t.Fatalf("expected only the waiting room deleted, got %v", deleted)
	}
	if _, ok := s.Get("lonely"); ok {
		t.Fatalf("waiting room should be gone")
	}
	sess, ok := s.Get("room1")
	if !ok {
		t.Fatalf("active room must survive disconnect")
	}
	if sess.First.Identity != "alice" || sess.First.Conn != "" {
		t.Fatalf("expected alice seated without connection, got %+v", sess.First)
	}
	if _, err := s.Join("lonely", "alice", "Alice", "c-alice"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound after delete, got %v", err)
	}
}

func TestReleaseIdentityIgnoresReboundSeats(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.CreateWaiting("waiting", "bob", "Bob", "c2")
	_, _ = s.CreateWaiting("active", "alice", "Alice", "c1")
	_, _ = s.Join("active", "bob", "Bob", "c2")

	// bob reconnects on c2b and rejoins both rooms before the c2 teardown runs
	if _, err := s.Join("waiting", "bob", "Bob", "c2b"); err != nil {
		t.Fatalf("Join waiting: %v", err)
	}
	if _, err := s.Join("active", "bob", "Bob", "c2b"); err != nil {
		t.Fatalf("Join active: %v", err)
	}

	if deleted := s.ReleaseIdentity("bob", "c2"); len(deleted) != 0 {
		t.Fatalf("stale release deleted %v", deleted)
	}
	w, ok := s.Get("waiting")
	if !ok {
		t.Fatalf("rejoined waiting room must survive a stale release")
	}
	if w.First.Conn != "c2b" {
		t.Fatalf("waiting seat lost its connection: %+v", w.First)
	}
	a, _ := s.Get("active")
	if a.Second.Conn != "c2b" {
		t.Fatalf("active seat lost its connection: %+v", a.Second)
	}

	if deleted := s.ReleaseIdentity("bob", "c2b"); len(deleted) != 1 || deleted[0] != "waiting" {
		t.Fatalf("expected waiting room deleted on current release, got %v", deleted)
	}
	a, _ = s.Get("active")
	if a.Second.Identity != "bob" || a.Second.Conn != "" {
		t.Fatalf("expected bob seated without connection, got %+v", a.Second)
	}
}

func TestActivate(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Activate("room1", Seat{Identity: "alice", Name: "Alice", Conn: "c-a"}, Seat{Identity: "bob", Conn: "c-b"})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if sess.Status != StatusActive || sess.Second.Name != "bob" {
		t.Fatalf("unexpected session %+v", sess)
	}
	// idempotent for the same pair
	if _, err := s.Activate("room1", Seat{Identity: "alice"}, Seat{Identity: "bob"}); err != nil {
		t.Fatalf("re-Activate: %v", err)
	}
	again, _ := s.Get("room1")
	if again.First.Conn != "c-a" {
		t.Fatalf("re-activation must keep connection handles, got %+v", again.First)
	}
	if _, err := s.Activate("room1", Seat{Identity: "carol"}, Seat{Identity: "bob"}); !errors.Is(err, ErrGameFull) {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
	if _, err := s.Activate("room2", Seat{Identity: "alice"}, Seat{Identity: "alice"}); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestActivateFillsWaitingRoom(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.CreateWaiting("room1", "alice", "Alice", "c-a")
	sess, err := s.Activate("room1", Seat{Identity: "alice"}, Seat{Identity: "bob", Name: "Bob", Conn: "c-b"})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if sess.Status != StatusActive || sess.Second.Conn != "c-b" || sess.First.Conn != "c-a" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	r := &room{status: StatusActive}
	if r.advance(StatusWaiting) {
		t.Fatalf("ACTIVE -> WAITING must be refused")
	}
	if !r.advance(StatusFinished) || r.status != StatusFinished {
		t.Fatalf("ACTIVE -> FINISHED must succeed")
	}
	if r.advance(StatusFinished) || r.advance(StatusActive) {
		t.Fatalf("FINISHED is final")
	}
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.CreateWaiting("w", "alice", "Alice", "c1")
	_, _ = s.Activate("a", Seat{Identity: "bob"}, Seat{Identity: "carol"})
	c := s.Counts()
	if c[StatusWaiting] != 1 || c[StatusActive] != 1 || c[StatusFinished] != 0 {
		t.Fatalf("unexpected counts %v", c)
	}
}
