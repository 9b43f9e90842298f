// Package presence tracks which identities hold a live connection.
package presence

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/its-me-navee/e4square/internal/obslog"
	"go.uber.org/zap"
)

var ErrInvalidArgs = errors.New("invalid arguments")

// Presence is a live, authenticated connection mapped to an identity.
type Presence struct {
	Identity    string
	Name        string
	Conn        string
	Online      bool
	ConnectedAt time.Time
}

// Registry holds one presence per identity. Re-registering an identity replaces its
// connection handle (last connection wins).
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]*Presence
	byConn     map[string]string // conn -> identity
}

func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]*Presence),
		byConn:     make(map[string]string),
	}
}

// Register records identity as reachable through conn. When the identity was already
// present on another connection, that connection is returned as displaced.
func (r *Registry) Register(identity, name, conn string) (p Presence, displaced string, err error) {
	identity = strings.TrimSpace(identity)
	conn = strings.TrimSpace(conn)
	if identity == "" || conn == "" {
		return Presence{}, "", ErrInvalidArgs
	}
	if strings.TrimSpace(name) == "" {
		name = identity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byIdentity[identity]; ok && prev.Conn != conn {
		displaced = prev.Conn
		delete(r.byConn, prev.Conn)
	}
	entry := &Presence{
		Identity:    identity,
		Name:        strings.TrimSpace(name),
		Conn:        conn,
		Online:      true,
		ConnectedAt: time.Now(),
	}
	r.byIdentity[identity] = entry
	r.byConn[conn] = identity
	obslog.L().Info("presence_register",
		zap.String("identity", identity),
		zap.String("conn", conn),
		zap.String("displaced", displaced),
	)
	return *entry, displaced, nil
}

// Unregister removes the presence bound to conn. A connection that was displaced by a
// newer one for the same identity is not bound anymore and removes nothing.
func (r *Registry) Unregister(conn string) (Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byConn[conn]
	if !ok {
		return Presence{}, false
	}
	delete(r.byConn, conn)
	entry, ok := r.byIdentity[identity]
	if !ok || entry.Conn != conn {
		return Presence{}, false
	}
	delete(r.byIdentity, identity)
	obslog.L().Info("presence_unregister", zap.String("identity", identity), zap.String("conn", conn))
	out := *entry
	out.Online = false
	return out, true
}

func (r *Registry) Lookup(identity string) (Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byIdentity[strings.TrimSpace(identity)]
	if !ok {
		return Presence{}, false
	}
	return *entry, true
}

func (r *Registry) LookupConn(conn string) (Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.byConn[conn]
	if !ok {
		return Presence{}, false
	}
	entry, ok := r.byIdentity[identity]
	if !ok {
		return Presence{}, false
	}
	return *entry, true
}

// List returns every online presence ordered by identity.
func (r *Registry) List() []Presence {
	r.mu.RLock()
	out := make([]Presence, 0, len(r.byIdentity))
	for _, p := range r.byIdentity {
		out = append(out, *p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
