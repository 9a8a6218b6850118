package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
)

// Registry owns the identity -> connection mapping and the room membership
// of each identity. At most one active connection per identity; a second
// registration supersedes the first without counting as a departure.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ParticipantID]core.SignalConnection
	ids   map[core.SignalConnection]domain.ParticipantID
	rooms map[domain.ParticipantID]domain.RoomID
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ParticipantID]core.SignalConnection),
		ids:   make(map[core.SignalConnection]domain.ParticipantID),
		rooms: make(map[domain.ParticipantID]domain.RoomID),
	}
}

// Register installs conn as the identity's connection. An existing
// connection is sent the farewell frame and closed; its reverse mapping is
// removed first so its teardown cannot be mistaken for the user leaving.
func (r *Registry) Register(id domain.ParticipantID, conn core.SignalConnection, farewell core.Frame) {
	r.mu.Lock()
	prev, superseded := r.conns[id]
	if superseded && prev != conn {
		delete(r.ids, prev)
	}
	r.conns[id] = conn
	r.ids[conn] = id
	r.mu.Unlock()

	if superseded && prev != conn {
		if farewell != nil {
			_ = prev.TrySend(farewell)
		}
		prev.Close()
		log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("superseded previous connection")
	}
}

// Drop unbinds the identity only if conn is still its registered
// connection, so a superseded connection cannot unregister its replacement.
// Idempotent; reports whether a mapping was removed.
func (r *Registry) Drop(id domain.ParticipantID, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[id]
	if !ok || cur != conn {
		return false
	}
	delete(r.conns, id)
	delete(r.ids, conn)
	delete(r.rooms, id)
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("unregistered")
	return true
}

func (r *Registry) Lookup(id domain.ParticipantID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// IdentityOf is the reverse lookup used on abrupt disconnects.
func (r *Registry) IdentityOf(conn core.SignalConnection) (domain.ParticipantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[conn]
	return id, ok
}

func (r *Registry) SetRoom(id domain.ParticipantID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		r.rooms[id] = roomID
	}
}

func (r *Registry) ClearRoom(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, id)
}

func (r *Registry) RoomOf(id domain.ParticipantID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.rooms[id]
	return roomID, ok
}

type memberSnap struct {
	ID   domain.ParticipantID
	Conn core.SignalConnection
}

func (r *Registry) membersOf(roomID domain.RoomID) []memberSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]memberSnap, 0, 2)
	for id, rid := range r.rooms {
		if rid != roomID {
			continue
		}
		if conn, ok := r.conns[id]; ok {
			out = append(out, memberSnap{ID: id, Conn: conn})
		}
	}
	return out
}

// Broadcast delivers the frame to every current member of the room.
// Best effort and independent per recipient: a failed or slow connection
// never blocks the others, and nothing is retried.
func (r *Registry) Broadcast(roomID domain.RoomID, f core.Frame) {
	for _, m := range r.membersOf(roomID) {
		if err := m.Conn.TrySend(f); err != nil {
			log.Warn().Str("module", "app.registry").Str("id", string(m.ID)).Err(err).Msg("broadcast delivery dropped")
		}
	}
}
