package domain

import (
	"errors"
	"strings"
)

type (
	RoomID   string
	RoomName string
)

// DocRoomPrefix namespaces document channels inside the registry so a
// document id can never collide with a room id.
const DocRoomPrefix = "doc:"

// IsDoc reports whether the id names a document channel.
func (r RoomID) IsDoc() bool { return strings.HasPrefix(string(r), DocRoomPrefix) }

const (
	RoomStatusActive = "active"
	RoomStatusEnded  = "ended"
)

type Room struct {
	ID         RoomID   `json:"id"`
	Name       RoomName `json:"name"`
	HostID     Identity `json:"host_id"`
	MaxViewers int      `json:"max_viewers"`
	Status     string   `json:"status"`
}

// Participant is the read-only view of a connected identity (no
// transport fields).
type Participant struct {
	Identity Identity `json:"user_id"`
	Username string   `json:"username"`
	IsGuest  bool     `json:"is_guest"`
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRoomNotFound    = errors.New("room not found or ended")
	ErrRoomFull        = errors.New("room full")
	ErrFileNotFound    = errors.New("file not found")
	ErrDocumentMissing = errors.New("document not found")
)
