package hub

import (
	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
)

// TryAddPresenter is the single atomic decision point for presenter
// capacity: check-then-insert under the room lock. An identity that is
// already presenting may update its share kind without consuming a slot.
// Returns false when the room is at the presenter limit; the caller must
// surface that to the sender, not drop it silently.
func (r *Registry) TryAddPresenter(roomID domain.RoomID, identity domain.Identity, username string, kind domain.ShareKind) bool {
	room := r.room(roomID)
	if room == nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if _, ok := room.presenters[identity]; !ok && len(room.presenters) >= r.maxPresenters {
		log.Info().
			Str("module", "hub").
			Str("room_id", string(roomID)).
			Str("user_id", string(identity)).
			Int("limit", r.maxPresenters).
			Msg("presenter limit reached")
		return false
	}
	room.presenters[identity] = domain.Presenter{Identity: identity, Username: username, Kind: kind}
	return true
}

// RemovePresenter is idempotent.
func (r *Registry) RemovePresenter(roomID domain.RoomID, identity domain.Identity) {
	room := r.room(roomID)
	if room == nil {
		return
	}
	room.mu.Lock()
	delete(room.presenters, identity)
	room.mu.Unlock()
}

func (r *Registry) Presenters(roomID domain.RoomID) []domain.Presenter {
	room := r.room(roomID)
	if room == nil {
		return []domain.Presenter{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	out := make([]domain.Presenter, 0, len(room.presenters))
	for _, p := range room.presenters {
		out = append(out, p)
	}
	return out
}
