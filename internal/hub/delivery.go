package hub

import (
	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
)

// Broadcast sends a payload to every attached handle except exclude (empty
// means nobody is excluded). Handles are snapshotted under the room lock and
// sends happen after it is released, so one stalled socket cannot block room
// mutations. Per-handle failures are logged and returned for observability;
// a failed handle is NOT detached here — cleanup belongs to that
// connection's own read loop, since a transient write failure should not
// evict a connection that can still recover.
func (r *Registry) Broadcast(roomID domain.RoomID, msgType string, payload []byte, exclude domain.Identity) []domain.Identity {
	room := r.room(roomID)
	if room == nil {
		return nil
	}

	type target struct {
		id domain.Identity
		h  Handle
	}
	room.mu.Lock()
	targets := make([]target, 0, len(room.members))
	for id, s := range room.members {
		if exclude != "" && id == exclude {
			continue
		}
		targets = append(targets, target{id: id, h: s.Handle})
	}
	room.mu.Unlock()

	var failed []domain.Identity
	for _, t := range targets {
		if err := t.h.TrySend(payload); err != nil {
			failed = append(failed, t.id)
			log.Warn().Err(err).
				Str("module", "hub").
				Str("room_id", string(roomID)).
				Str("user_id", string(t.id)).
				Str("msg_type", msgType).
				Msg("broadcast delivery failed")
		}
	}
	return failed
}

// CloseAll gracefully shuts down every handle in a room. Queued frames are
// drained first, so a final broadcast queued just before still arrives.
// Detachment is left to each connection's own read loop.
func (r *Registry) CloseAll(roomID domain.RoomID) {
	room := r.room(roomID)
	if room == nil {
		return
	}
	room.mu.Lock()
	handles := make([]Handle, 0, len(room.members))
	for _, s := range room.members {
		handles = append(handles, s.Handle)
	}
	room.mu.Unlock()

	for _, h := range handles {
		h.Shutdown()
	}
	log.Info().Str("module", "hub").Str("room_id", string(roomID)).Int("count", len(handles)).Msg("room connections shut down")
}

// Unicast sends a payload to one identity. Returns false when the target is
// not attached or the send fails; it never propagates an error to the
// caller.
func (r *Registry) Unicast(roomID domain.RoomID, target domain.Identity, msgType string, payload []byte) bool {
	room := r.room(roomID)
	if room == nil {
		return false
	}
	room.mu.Lock()
	sess, ok := room.members[target]
	room.mu.Unlock()
	if !ok {
		log.Debug().
			Str("module", "hub").
			Str("room_id", string(roomID)).
			Str("user_id", string(target)).
			Str("msg_type", msgType).
			Msg("unicast target not in room")
		return false
	}
	if err := sess.Handle.TrySend(payload); err != nil {
		log.Warn().Err(err).
			Str("module", "hub").
			Str("room_id", string(roomID)).
			Str("user_id", string(target)).
			Str("msg_type", msgType).
			Msg("unicast delivery failed")
		return false
	}
	return true
}
