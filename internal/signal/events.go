package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
)

// Inbound event types, room endpoint.
const (
	TypeChat               = "chat"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeICECandidate       = "ice_candidate"
	TypeRequestOffer       = "request_offer"
	TypeScreenShareStarted = "screen_share_started"
	TypeScreenShareStopped = "screen_share_stopped"
	TypeAnnotation         = "annotation"
	TypeWhiteboardDraw     = "whiteboard_draw"
	TypeWhiteboardClear    = "whiteboard_clear"
	TypeWhiteboardStarted  = "whiteboard_started"
	TypeWhiteboardStopped  = "whiteboard_stopped"
	TypeFileShare          = "file_share"
	TypeKickUser           = "kick_user"
	TypeEndRoom            = "end_room"
	TypePing               = "ping"
	TypeViewerAudioOffer   = "viewer_audio_offer"
	TypeViewerAudioAnswer  = "viewer_audio_answer"
	TypeViewerAudioStopped = "viewer_audio_stopped"
)

// Inbound event types, document endpoint.
const (
	TypeContentUpdate = "content_update"
	TypeCursorUpdate  = "cursor_update"
	TypeSave          = "save"
)

// Outbound-only event types.
const (
	TypeRoomState    = "room_state"
	TypeDocState     = "doc_state"
	TypeUserJoined   = "user_joined"
	TypeUserLeft     = "user_left"
	TypeFileShared   = "file_shared"
	TypeKicked       = "kicked"
	TypeRoomEnded    = "room_ended"
	TypePong         = "pong"
	TypeSaved        = "saved"
	TypeError        = "error"
	TypeRateLimited  = "rate_limit_exceeded"
)

// envelope is the discriminator view of an inbound frame. Handlers
// re-decode the raw frame into their own payload struct when they need
// more than the tag.
type envelope struct {
	Type string `json:"type"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorEvent(code, message string) errorEvent {
	return errorEvent{Type: TypeError, Code: code, Message: message}
}

type rateLimitEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type pongEvent struct {
	Type string `json:"type"`
}

type userJoinedEvent struct {
	Type         string               `json:"type"`
	UserID       domain.Identity      `json:"user_id"`
	Username     string               `json:"username"`
	IsGuest      bool                 `json:"is_guest"`
	IsHost       bool                 `json:"is_host"`
	Participants []domain.Participant `json:"participants"`
}

type userLeftEvent struct {
	Type         string               `json:"type"`
	UserID       domain.Identity      `json:"user_id"`
	Username     string               `json:"username"`
	Participants []domain.Participant `json:"participants"`
}

type roomStateEvent struct {
	Type         string               `json:"type"`
	RoomID       domain.RoomID        `json:"room_id"`
	RoomName     domain.RoomName      `json:"room_name"`
	HostID       domain.Identity      `json:"host_id"`
	IsHost       bool                 `json:"is_host"`
	Participants []domain.Participant `json:"participants"`
	Presenters   []domain.Presenter   `json:"presenters"`
	SharedFiles  []domain.SharedFile  `json:"shared_files"`
}

type docStateEvent struct {
	Type         string               `json:"type"`
	DocID        string               `json:"doc_id"`
	Content      string               `json:"content"`
	Participants []domain.Participant `json:"participants"`
	Cursors      []domain.Cursor      `json:"cursors"`
}

// encode marshals an outbound event. A marshal failure is a programming
// error on our side; it is logged and the event is dropped.
func encode(v any) ([]byte, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("event marshal")
		return nil, false
	}
	return b, true
}
