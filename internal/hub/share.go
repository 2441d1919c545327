package hub

import "github.com/sharecast/relay/internal/domain"

// AddSharedFile appends to the room's shared-file echo. The echo is a
// replay cache for late joiners; the authoritative copy lives elsewhere.
func (r *Registry) AddSharedFile(roomID domain.RoomID, f domain.SharedFile) {
	room := r.room(roomID)
	if room == nil {
		return
	}
	room.mu.Lock()
	room.files = append(room.files, f)
	room.mu.Unlock()
}

func (r *Registry) SharedFiles(roomID domain.RoomID) []domain.SharedFile {
	room := r.room(roomID)
	if room == nil {
		return []domain.SharedFile{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	out := make([]domain.SharedFile, len(room.files))
	copy(out, room.files)
	return out
}

// SetDocument replaces the cached document content, latest write wins.
func (r *Registry) SetDocument(roomID domain.RoomID, content string) {
	room := r.room(roomID)
	if room == nil {
		return
	}
	room.mu.Lock()
	room.document = content
	room.hasDoc = true
	room.mu.Unlock()
}

func (r *Registry) Document(roomID domain.RoomID) (string, bool) {
	room := r.room(roomID)
	if room == nil {
		return "", false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.document, room.hasDoc
}

func (r *Registry) SetCursor(roomID domain.RoomID, c domain.Cursor) {
	room := r.room(roomID)
	if room == nil {
		return
	}
	room.mu.Lock()
	room.cursors[c.Identity] = c
	room.mu.Unlock()
}

func (r *Registry) Cursors(roomID domain.RoomID) []domain.Cursor {
	room := r.room(roomID)
	if room == nil {
		return []domain.Cursor{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	out := make([]domain.Cursor, 0, len(room.cursors))
	for _, c := range room.cursors {
		out = append(out, c)
	}
	return out
}
