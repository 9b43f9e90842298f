// Package invite implements the offer/accept/decline handshake between two presences.
// Invitations are single-use and never expire on their own.
package invite

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/its-me-navee/e4square/internal/obslog"
	"github.com/its-me-navee/e4square/internal/presence"
	"go.uber.org/zap"
)

// Directory resolves an identity to its live presence.
type Directory interface {
	Lookup(identity string) (presence.Presence, bool)
}

type Broker struct {
	mu      sync.RWMutex
	pending map[string]*Invitation // id -> invitation
	dir     Directory
	newID   func() string
}

func NewBroker(dir Directory) *Broker {
	return &Broker{
		pending: make(map[string]*Invitation),
		dir:     dir,
		newID:   uuid.NewString,
	}
}

// Send creates a pending invitation when the target is online. ErrTargetOffline is
// returned otherwise and nothing is recorded.
func (b *Broker) Send(from, fromName, to, roomID string) (Invitation, error) {
	from, to, roomID = strings.TrimSpace(from), strings.TrimSpace(to), strings.TrimSpace(roomID)
	if from == "" || to == "" || roomID == "" {
		return Invitation{}, ErrInvalidArgs
	}
	if from == to {
		return Invitation{}, ErrSelfInvite
	}
	target, ok := b.dir.Lookup(to)
	if !ok {
		obslog.L().Info("invite_target_offline", zap.String("from", from), zap.String("to", to), zap.String("room_id", roomID))
		return Invitation{}, ErrTargetOffline
	}
	if strings.TrimSpace(fromName) == "" {
		fromName = from
	}

	inv := &Invitation{
		ID:        b.newID(),
		From:      from,
		FromName:  strings.TrimSpace(fromName),
		To:        to,
		ToName:    target.Name,
		RoomID:    roomID,
		CreatedAt: time.Now(),
		Status:    StatusPending,
		ToConn:    target.Conn,
	}

	b.mu.Lock()
	b.pending[inv.ID] = inv
	b.mu.Unlock()

	obslog.L().Info("invite_send",
		zap.String("invitation_id", inv.ID),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("room_id", roomID),
	)
	return *inv, nil
}

// Respond resolves a pending invitation. Only the recipient may respond; any resolution
// removes the invitation.
func (b *Broker) Respond(id, responder string, accepted bool) (Invitation, error) {
	id = strings.TrimSpace(id)
	b.mu.Lock()
	defer b.mu.Unlock()

	inv, ok := b.pending[id]
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	if inv.To != strings.TrimSpace(responder) {
		return Invitation{}, ErrNotRecipient
	}
	delete(b.pending, id)
	if accepted {
		inv.Status = StatusAccepted
	} else {
		inv.Status = StatusDeclined
	}
	obslog.L().Info("invite_respond",
		zap.String("invitation_id", inv.ID),
		zap.String("status", string(inv.Status)),
		zap.String("room_id", inv.RoomID),
	)
	return *inv, nil
}

// CancelFor drops every pending invitation naming identity as sender or recipient.
// Nobody is notified.
func (b *Broker) CancelFor(identity string) []Invitation {
	identity = strings.TrimSpace(identity)
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Invitation
	for id, inv := range b.pending {
		if inv.From == identity || inv.To == identity {
			delete(b.pending, id)
			out = append(out, *inv)
		}
	}
	if len(out) > 0 {
		obslog.L().Info("invite_cancel", zap.String("identity", identity), zap.Int("count", len(out)))
	}
	return out
}

func (b *Broker) Get(id string) (Invitation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	inv, ok := b.pending[strings.TrimSpace(id)]
	if !ok {
		return Invitation{}, false
	}
	return *inv, true
}

func (b *Broker) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}
