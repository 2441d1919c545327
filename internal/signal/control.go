package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
	"github.com/sharecast/relay/internal/state"
)

// handleChat fans a chat line out to the whole room, sender included —
// the sender's other tabs see their own messages this way. Drawing and
// signaling events exclude the sender instead; the asymmetry is part of
// the protocol and clients depend on it.
func (ctl *RoomController) handleChat(p *peer, data []byte) {
	var in struct {
		Message   string `json:"message"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user_id", string(p.id)).Msg("bad chat payload")
		return
	}
	ctl.broadcast(p, TypeChat, struct {
		Type      string          `json:"type"`
		UserID    domain.Identity `json:"user_id"`
		Username  string          `json:"username"`
		Message   string          `json:"message"`
		Timestamp int64           `json:"timestamp"`
	}{TypeChat, p.id, p.username, in.Message, in.Timestamp}, "")
}

// handleKick relays a host's kick to the target only. Non-host senders and
// self-kicks are dropped without a reply.
func (ctl *RoomController) handleKick(p *peer, data []byte) {
	if !p.isHost {
		return
	}
	var in struct {
		Target domain.Identity `json:"target"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.Target == "" || in.Target == p.id {
		return
	}
	ctl.unicast(p, in.Target, TypeKicked, struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{TypeKicked, "Removed by the host"})
	log.Info().Str("module", "signal").Str("room_id", string(p.roomID)).Str("target", string(in.Target)).Msg("kick relayed")
}

// handleEndRoom announces the end to everyone, then asks the room service
// to persist the ended status. Host only.
func (ctl *RoomController) handleEndRoom(ctx context.Context, p *peer) {
	if !p.isHost {
		return
	}
	ctl.broadcast(p, TypeRoomEnded, struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{TypeRoomEnded, "The host ended the room"}, "")

	if err := ctl.Gate.CloseRoom(ctx, p.roomID, p.id); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room_id", string(p.roomID)).Msg("close room failed")
	}

	// Best-effort notice for sibling instances; the in-memory store has no
	// pub/sub and that is fine.
	if b, ok := encode(struct {
		Type   string        `json:"type"`
		RoomID domain.RoomID `json:"room_id"`
	}{TypeRoomEnded, p.roomID}); ok {
		if err := ctl.Guests.Publish(ctx, p.roomID, b); err != nil && !errors.Is(err, state.ErrNoPubSub) {
			log.Warn().Err(err).Str("module", "signal").Str("room_id", string(p.roomID)).Msg("room end publish failed")
		}
	}

	// Nothing is routed after the end: every connection drains its queue
	// (the room_ended frame included) and closes.
	ctl.Registry.CloseAll(p.roomID)
}
