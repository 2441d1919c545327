// Package hub owns the per-room presence state: who is attached, who is
// presenting, and what artifacts are replayed to late joiners. It is shared
// mutable state touched by every connection goroutine; the registry map has
// its own lock and each room has another, acquired in that order. Delivery
// never happens under a lock.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
)

// Handle is the delivery endpoint of one attached session. TrySend must not
// block; Close and Shutdown must be safe to call more than once. Shutdown
// stops intake but lets queued frames drain; Close drops the transport
// immediately.
type Handle interface {
	TrySend(payload []byte) error
	Shutdown()
	Close()
}

// Session binds an identity to its delivery handle. The registry entry is
// the only owner of the handle.
type Session struct {
	Identity domain.Identity
	Username string
	IsGuest  bool
	Handle   Handle
}

type roomState struct {
	mu         sync.Mutex
	members    map[domain.Identity]*Session
	presenters map[domain.Identity]domain.Presenter
	files      []domain.SharedFile
	document   string
	hasDoc     bool
	cursors    map[domain.Identity]domain.Cursor
}

func newRoomState() *roomState {
	return &roomState{
		members:    make(map[domain.Identity]*Session),
		presenters: make(map[domain.Identity]domain.Presenter),
		cursors:    make(map[domain.Identity]domain.Cursor),
	}
}

// Registry tracks room membership. Constructed once at startup and handed
// to both websocket controllers and the active-users aggregator.
type Registry struct {
	mu            sync.RWMutex
	rooms         map[domain.RoomID]*roomState
	maxPresenters int
}

func NewRegistry(maxPresenters int) *Registry {
	if maxPresenters <= 0 {
		maxPresenters = 2
	}
	return &Registry{
		rooms:         make(map[domain.RoomID]*roomState),
		maxPresenters: maxPresenters,
	}
}

func (r *Registry) room(roomID domain.RoomID) *roomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// Attach admits a session into a room, creating the room entry on first
// attach. Viewer capacity is check-and-set here, under the room lock, so two
// simultaneous joins cannot both squeeze into the last slot. The host is
// always admitted. A re-attach under the same identity wins over the old
// entry and the stale handle is force-closed, so a participant is never
// counted twice. An identity also holds at most one presence per namespace:
// an admitted join evicts it from whichever sibling room it was in (document
// channels are a namespace of their own, so a room presence and a document
// presence coexist). A refused join evicts nothing.
func (r *Registry) Attach(roomID domain.RoomID, sess *Session, hostID domain.Identity, maxViewers int) error {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		room = newRoomState()
		r.rooms[roomID] = room
	}
	room.mu.Lock()

	var stale Handle
	if prev, ok := room.members[sess.Identity]; ok {
		stale = prev.Handle
	} else if sess.Identity != hostID && maxViewers > 0 {
		viewers := 0
		for id := range room.members {
			if id != hostID {
				viewers++
			}
		}
		if viewers >= maxViewers {
			empty := len(room.members) == 0
			room.mu.Unlock()
			if empty {
				delete(r.rooms, roomID)
			}
			r.mu.Unlock()
			return domain.ErrRoomFull
		}
	}
	room.members[sess.Identity] = sess
	room.mu.Unlock()

	// The displaced connection is closed; its cleanup finds nothing to
	// detach and announces no departure. The registry map lock is still
	// held, so no concurrent attach can race the scan.
	var evicted Handle
	var evictedFrom domain.RoomID
	for id, other := range r.rooms {
		if id == roomID || id.IsDoc() != roomID.IsDoc() {
			continue
		}
		other.mu.Lock()
		prev, present := other.members[sess.Identity]
		if !present {
			other.mu.Unlock()
			continue
		}
		evicted = prev.Handle
		evictedFrom = id
		delete(other.members, sess.Identity)
		delete(other.presenters, sess.Identity)
		delete(other.cursors, sess.Identity)
		empty := len(other.members) == 0
		other.mu.Unlock()
		if empty {
			delete(r.rooms, id)
		}
		break
	}
	r.mu.Unlock()

	if stale != nil {
		stale.Close()
		log.Warn().Str("module", "hub").Str("room_id", string(roomID)).Str("user_id", string(sess.Identity)).Msg("replaced stale connection")
	}
	if evicted != nil {
		evicted.Close()
		log.Warn().Str("module", "hub").Str("room_id", string(evictedFrom)).Str("user_id", string(sess.Identity)).Msg("evicted prior room presence")
	}
	log.Info().Str("module", "hub").Str("room_id", string(roomID)).Str("user_id", string(sess.Identity)).Bool("guest", sess.IsGuest).Msg("attached")
	return nil
}

// Detach removes an identity from a room. Detaching an absent identity is a
// no-op. Removal of the last member cascade-clears the presenter set, the
// shared-file echo, the document cache and the cursor map.
func (r *Registry) Detach(roomID domain.RoomID, identity domain.Identity) {
	r.remove(roomID, identity, nil)
}

// DetachIf removes an identity only while it is still bound to the given
// handle. A connection whose entry was already replaced by a re-attach must
// not tear down its successor; its cleanup becomes a no-op and the caller
// skips the departure broadcast. Returns whether a detach happened.
func (r *Registry) DetachIf(roomID domain.RoomID, identity domain.Identity, h Handle) bool {
	return r.remove(roomID, identity, h)
}

// remove deletes the membership entry, presenter slot and cursor in one
// shot. When mustMatch is non-nil the entry is only removed while it still
// holds that handle.
func (r *Registry) remove(roomID domain.RoomID, identity domain.Identity, mustMatch Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	room.mu.Lock()
	sess, ok := room.members[identity]
	if !ok || (mustMatch != nil && sess.Handle != mustMatch) {
		room.mu.Unlock()
		return false
	}
	delete(room.members, identity)
	delete(room.presenters, identity)
	delete(room.cursors, identity)
	empty := len(room.members) == 0
	room.mu.Unlock()

	if empty {
		delete(r.rooms, roomID)
	}
	log.Info().Str("module", "hub").Str("room_id", string(roomID)).Str("user_id", string(identity)).Bool("room_empty", empty).Msg("detached")
	return true
}

// Participants returns the current room membership. Iteration order is map
// order; callers must treat the result as a set.
func (r *Registry) Participants(roomID domain.RoomID) []domain.Participant {
	room := r.room(roomID)
	if room == nil {
		return []domain.Participant{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	out := make([]domain.Participant, 0, len(room.members))
	for _, s := range room.members {
		out = append(out, domain.Participant{Identity: s.Identity, Username: s.Username, IsGuest: s.IsGuest})
	}
	return out
}

// RoomsSnapshot maps every live room to its participants. Consumed by the
// active-users aggregator.
func (r *Registry) RoomsSnapshot() map[domain.RoomID][]domain.Participant {
	r.mu.RLock()
	ids := make([]domain.RoomID, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make(map[domain.RoomID][]domain.Participant, len(ids))
	for _, id := range ids {
		if parts := r.Participants(id); len(parts) > 0 {
			out[id] = parts
		}
	}
	return out
}

// Present reports whether an identity is attached to a room.
func (r *Registry) Present(roomID domain.RoomID, identity domain.Identity) bool {
	room := r.room(roomID)
	if room == nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	_, ok := room.members[identity]
	return ok
}
