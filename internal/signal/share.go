package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
)

// handleShareStarted admits the sender into the presenter set. Admission is
// capacity-gated; a rejection is answered to the sender alone, never
// dropped silently.
func (ctl *RoomController) handleShareStarted(p *peer, data []byte) {
	var in struct {
		ShareType domain.ShareKind `json:"share_type"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user_id", string(p.id)).Msg("bad share payload")
		return
	}
	if in.ShareType == "" {
		in.ShareType = domain.ShareScreen
	}

	if !ctl.Registry.TryAddPresenter(p.roomID, p.id, p.username, in.ShareType) {
		p.reply(newErrorEvent("presenter_limit", "Presenter limit reached for this room"))
		return
	}

	ctl.broadcast(p, TypeScreenShareStarted, struct {
		Type       string             `json:"type"`
		UserID     domain.Identity    `json:"user_id"`
		Username   string             `json:"username"`
		ShareType  domain.ShareKind   `json:"share_type"`
		Presenters []domain.Presenter `json:"presenters"`
	}{TypeScreenShareStarted, p.id, p.username, in.ShareType, ctl.Registry.Presenters(p.roomID)}, p.id)
}

func (ctl *RoomController) handleShareStopped(p *peer) {
	ctl.Registry.RemovePresenter(p.roomID, p.id)
	ctl.broadcast(p, TypeScreenShareStopped, struct {
		Type       string             `json:"type"`
		UserID     domain.Identity    `json:"user_id"`
		Presenters []domain.Presenter `json:"presenters"`
	}{TypeScreenShareStopped, p.id, ctl.Registry.Presenters(p.roomID)}, p.id)
}

// handlePassthrough re-broadcasts annotation and whiteboard events to the
// rest of the room with the sender stamped in. The payload itself is
// client-defined and travels untouched.
func (ctl *RoomController) handlePassthrough(p *peer, msgType string, data []byte) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user_id", string(p.id)).Str("msg_type", msgType).Msg("bad payload")
		return
	}
	if id, err := json.Marshal(p.id); err == nil {
		payload["user_id"] = id
	}
	if name, err := json.Marshal(p.username); err == nil {
		payload["username"] = name
	}
	ctl.broadcast(p, msgType, payload, p.id)
}

// handleFileShare resolves the opaque file id against the catalog, records
// the descriptor in the room's echo for late joiners, and announces it to
// everyone including the sender.
func (ctl *RoomController) handleFileShare(ctx context.Context, p *peer, data []byte) {
	var in struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.FileID == "" {
		log.Warn().Str("module", "signal").Str("user_id", string(p.id)).Msg("bad file_share payload")
		return
	}

	meta, err := ctl.Files.Lookup(ctx, in.FileID)
	if err != nil || meta == nil {
		p.reply(newErrorEvent("file_not_found", "Shared file not found"))
		return
	}

	shared := *meta
	if shared.ID == "" {
		shared.ID = ulid.Make().String()
	}
	shared.SharedBy = p.id
	shared.SharedAt = time.Now()
	ctl.Registry.AddSharedFile(p.roomID, shared)

	ctl.broadcast(p, TypeFileShared, struct {
		Type     string            `json:"type"`
		File     domain.SharedFile `json:"file"`
		Username string            `json:"username"`
	}{TypeFileShared, shared, p.username}, "")
}
