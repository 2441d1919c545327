package domain

import "time"

// ShareKind says what a presenter is streaming.
type ShareKind string

const (
	ShareScreen ShareKind = "screen"
	ShareCamera ShareKind = "camera"
)

// Presenter is one entry of a room's presenter set.
type Presenter struct {
	Identity Identity  `json:"user_id"`
	Username string    `json:"username"`
	Kind     ShareKind `json:"share_type"`
}

// SharedFile is one entry of a room's shared-file echo. The authoritative
// copy lives in external storage; this descriptor is replayed to late
// joiners only.
type SharedFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	SharedBy    Identity  `json:"shared_by"`
	SharedAt    time.Time `json:"shared_at"`
}

// Cursor is a participant's last reported pointer position in a document.
type Cursor struct {
	Identity Identity `json:"user_id"`
	Username string   `json:"username"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
}
