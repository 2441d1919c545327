// Package service provides in-process implementations of the collaborators
// the signaling core consumes. A deployment backed by the real database
// substitutes its own RoomDirectory; these serve single-binary setups and
// tests.
package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
	"github.com/sharecast/relay/internal/gate"
)

type Rooms struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*domain.Room
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[domain.RoomID]*domain.Room)}
}

// Create registers an active room and returns it. maxViewers caps the
// non-host audience.
func (r *Rooms) Create(name domain.RoomName, hostID domain.Identity, maxViewers int) *domain.Room {
	room := &domain.Room{
		ID:         domain.RoomID(uuid.NewString()),
		Name:       name,
		HostID:     hostID,
		MaxViewers: maxViewers,
		Status:     domain.RoomStatusActive,
	}
	r.mu.Lock()
	r.rooms[room.ID] = room
	r.mu.Unlock()
	log.Info().Str("module", "service.rooms").Str("room_id", string(room.ID)).Str("host", string(hostID)).Msg("room created")
	return room
}

func (r *Rooms) Snapshot(ctx context.Context, roomID domain.RoomID) (*gate.RoomSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return &gate.RoomSnapshot{
		ID:         room.ID,
		Name:       room.Name,
		HostID:     room.HostID,
		MaxViewers: room.MaxViewers,
		Active:     room.Status == domain.RoomStatusActive,
	}, nil
}

func (r *Rooms) Close(ctx context.Context, roomID domain.RoomID, hostID domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if room.HostID != hostID {
		return domain.ErrUnauthorized
	}
	room.Status = domain.RoomStatusEnded
	log.Info().Str("module", "service.rooms").Str("room_id", string(roomID)).Msg("room ended")
	return nil
}
