// Package session owns the live game sessions, keyed by room id.
//
// The room map is guarded by the store mutex; each room carries its own mutex for
// seat and move mutations. Locks are always taken store first, room second.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/its-me-navee/e4square/internal/obslog"
	"github.com/its-me-navee/e4square/internal/rules"
	"go.uber.org/zap"
)

type room struct {
	mu        sync.Mutex
	id        string
	first     Seat
	second    Seat
	status    Status
	moves     []MoveRecord
	position  rules.Position
	result    *Result
	createdAt time.Time
	updatedAt time.Time
	deleted   bool
}

type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	engine rules.Engine
}

func NewStore(engine rules.Engine) *Store {
	return &Store{rooms: make(map[string]*room), engine: engine}
}

func (s *Store) newRoom(roomID string) *room {
	now := time.Now()
	return &room{
		id:        roomID,
		status:    StatusWaiting,
		moves:     []MoveRecord{},
		position:  s.engine.Initial(),
		createdAt: now,
		updatedAt: now,
	}
}

// CreateWaiting creates a room with its creator seated first.
func (s *Store) CreateWaiting(roomID, identity, name, conn string) (Session, error) {
	roomID, identity = strings.TrimSpace(roomID), strings.TrimSpace(identity)
	if roomID == "" || identity == "" {
		return Session{}, ErrInvalidArgs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return Session{}, ErrRoomAlreadyExists
	}
	r := s.newRoom(roomID)
	r.first = Seat{Identity: identity, Name: displayName(name, identity), Conn: conn}
	s.rooms[roomID] = r
	obslog.L().Info("session_create", zap.String("room_id", roomID), zap.String("creator", identity))
	return s.snapshot(r), nil
}

// Join seats identity in roomID: it reconnects to a side already held, takes an empty
// side, or fails with ErrGameFull.
func (s *Store) Join(roomID, identity, name, conn string) (JoinResult, error) {
	roomID, identity = strings.TrimSpace(roomID), strings.TrimSpace(identity)
	if roomID == "" || identity == "" {
		return JoinResult{}, ErrInvalidArgs
	}
	r := s.lookup(roomID)
	if r == nil {
		return JoinResult{}, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return JoinResult{}, ErrRoomNotFound
	}
	return s.joinLocked(r, identity, name, conn)
}

// GetOrCreate joins roomID, creating it with identity seated first when it does not
// exist. Creation and the existence check happen under one lock.
func (s *Store) GetOrCreate(roomID, identity, name, conn string) (JoinResult, error) {
	roomID, identity = strings.TrimSpace(roomID), strings.TrimSpace(identity)
	if roomID == "" || identity == "" {
		return JoinResult{}, ErrInvalidArgs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		return s.joinLocked(r, identity, name, conn)
	}
	r := s.newRoom(roomID)
	r.first = Seat{Identity: identity, Name: displayName(name, identity), Conn: conn}
	s.rooms[roomID] = r
	obslog.L().Info("session_create", zap.String("room_id", roomID), zap.String("creator", identity), zap.String("via", "join"))
	return JoinResult{Session: s.snapshot(r), Side: SideFirst, Created: true}, nil
}

func (s *Store) joinLocked(r *room, identity, name, conn string) (JoinResult, error) {
	if side, ok := r.sideOf(identity); ok {
		seat := r.seat(side)
		seat.Conn = conn
		if n := strings.TrimSpace(name); n != "" {
			seat.Name = n
		}
		r.updatedAt = time.Now()
		obslog.L().Info("session_reconnect", zap.String("room_id", r.id), zap.String("identity", identity), zap.String("side", string(side)))
		return JoinResult{Session: s.snapshot(r), Side: side, Opponent: *r.seat(side.Opponent()), Reconnected: true}, nil
	}

	var side Side
	switch {
	case r.first.Empty():
		side = SideFirst
	case r.second.Empty():
		side = SideSecond
	default:
		return JoinResult{}, ErrGameFull
	}
	*r.seat(side) = Seat{Identity: identity, Name: displayName(name, identity), Conn: conn}
	r.updatedAt = time.Now()

	started := false
	if !r.first.Empty() && !r.second.Empty() && r.status == StatusWaiting {
		r.advance(StatusActive)
		started = true
	}
	obslog.L().Info("session_join",
		zap.String("room_id", r.id),
		zap.String("identity", identity),
		zap.String("side", string(side)),
		zap.Bool("started", started),
	)
	return JoinResult{Session: s.snapshot(r), Side: side, Opponent: *r.seat(side.Opponent()), Started: started}, nil
}

// Activate seats both invitation parties and marks the room active. An existing room is
// reused only when its occupants are compatible with the requested sides; otherwise
// ErrGameFull.
func (s *Store) Activate(roomID string, first, second Seat) (Session, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || first.Empty() || second.Empty() || first.Identity == second.Identity {
		return Session{}, ErrInvalidArgs
	}
	first.Name = displayName(first.Name, first.Identity)
	second.Name = displayName(second.Name, second.Identity)

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		r = s.newRoom(roomID)
		r.first, r.second = first, second
		r.advance(StatusActive)
		s.rooms[roomID] = r
		obslog.L().Info("session_activate", zap.String("room_id", roomID), zap.String("first", first.Identity), zap.String("second", second.Identity))
		return s.snapshot(r), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !compatible(r.first, first) || !compatible(r.second, second) {
		return Session{}, ErrGameFull
	}
	r.first, r.second = mergeSeat(r.first, first), mergeSeat(r.second, second)
	if r.status == StatusWaiting {
		r.advance(StatusActive)
	}
	r.updatedAt = time.Now()
	obslog.L().Info("session_activate", zap.String("room_id", roomID), zap.String("first", first.Identity), zap.String("second", second.Identity), zap.Bool("existing", true))
	return s.snapshot(r), nil
}

func (s *Store) Get(roomID string) (Session, bool) {
	r := s.lookup(strings.TrimSpace(roomID))
	if r == nil {
		return Session{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return Session{}, false
	}
	return s.snapshot(r), true
}

func (s *Store) Delete(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	r.mu.Lock()
	r.deleted = true
	r.mu.Unlock()
	delete(s.rooms, roomID)
	obslog.L().Info("session_delete", zap.String("room_id", roomID))
	return true
}

// ReleaseIdentity handles conn going offline for identity. Only seats still bound to
// conn are touched: waiting rooms held alone are deleted and their ids returned; in
// active or finished rooms the seat keeps the identity but loses the connection handle.
// A seat already rebound to a newer connection is left alone.
func (s *Store) ReleaseIdentity(identity, conn string) []string {
	identity = strings.TrimSpace(identity)
	if identity == "" || conn == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []string
	for id, r := range s.rooms {
		r.mu.Lock()
		side, seated := r.sideOf(identity)
		switch {
		case !seated || r.seat(side).Conn != conn:
		case r.status == StatusWaiting && r.seat(side.Opponent()).Empty():
			r.deleted = true
			delete(s.rooms, id)
			deleted = append(deleted, id)
		default:
			r.seat(side).Conn = ""
		}
		r.mu.Unlock()
	}
	if len(deleted) > 0 {
		obslog.L().Info("session_release", zap.String("identity", identity), zap.String("conn", conn), zap.Strings("deleted_rooms", deleted))
	}
	return deleted
}

// History returns the move log of roomID in play order.
func (s *Store) History(roomID string) ([]MoveRecord, error) {
	sess, ok := s.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return sess.Moves, nil
}

// Counts returns the number of rooms per status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	rooms := make([]*room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	out := map[Status]int{StatusWaiting: 0, StatusActive: 0, StatusFinished: 0}
	for _, r := range rooms {
		r.mu.Lock()
		if !r.deleted {
			out[r.status]++
		}
		r.mu.Unlock()
	}
	return out
}

func (s *Store) lookup(roomID string) *room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

func (s *Store) snapshot(r *room) Session {
	out := Session{
		RoomID:    r.id,
		First:     r.first,
		Second:    r.second,
		Status:    r.status,
		Moves:     append([]MoveRecord(nil), r.moves...),
		FEN:       s.engine.Serialize(r.position),
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
	if r.result != nil {
		res := *r.result
		out.Result = &res
	}
	return out
}

func (r *room) seat(side Side) *Seat {
	if side == SideFirst {
		return &r.first
	}
	return &r.second
}

func (r *room) sideOf(identity string) (Side, bool) {
	switch {
	case !r.first.Empty() && r.first.Identity == identity:
		return SideFirst, true
	case !r.second.Empty() && r.second.Identity == identity:
		return SideSecond, true
	}
	return "", false
}

// advance moves the status forward; it never regresses.
func (r *room) advance(to Status) bool {
	if to.rank() <= r.status.rank() {
		return false
	}
	r.status = to
	r.updatedAt = time.Now()
	return true
}

func compatible(have, want Seat) bool {
	return have.Empty() || have.Identity == want.Identity
}

func mergeSeat(have, want Seat) Seat {
	if want.Conn == "" {
		want.Conn = have.Conn
	}
	return want
}

func displayName(name, identity string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return identity
}
