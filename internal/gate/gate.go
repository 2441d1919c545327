// Package gate answers the two questions the signaling core asks before
// admitting a connection: who is this credential, and is this room live.
// Persistent room/user storage sits behind the RoomDirectory interface;
// this process never talks to the database directly.
package gate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
	"github.com/sharecast/relay/internal/state"
)

// RoomSnapshot is the room metadata the core needs at connect time. It may
// be stale within one connection's lifetime; callers tolerate that.
type RoomSnapshot struct {
	ID         domain.RoomID
	Name       domain.RoomName
	HostID     domain.Identity
	MaxViewers int
	Active     bool
}

// RoomDirectory is the consumed room-metadata collaborator.
type RoomDirectory interface {
	Snapshot(ctx context.Context, roomID domain.RoomID) (*RoomSnapshot, error)
	// Close persists the ended status. Only the host may close a room.
	Close(ctx context.Context, roomID domain.RoomID, hostID domain.Identity) error
}

// FileCatalog resolves an opaque file id shared into a room.
type FileCatalog interface {
	Lookup(ctx context.Context, fileID string) (*domain.SharedFile, error)
}

// DocumentStore is the consumed persistence collaborator for the
// collaborative-document endpoint.
type DocumentStore interface {
	Load(ctx context.Context, docID string) (string, error)
	Save(ctx context.Context, docID string, content string) error
}

// TokenVerifier validates a member credential.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, string, error)
}

// Resolved is the outcome of credential resolution.
type Resolved struct {
	Identity domain.Identity
	Username string
	IsGuest  bool
	// GuestToken is kept so disconnect cleanup can delete the session.
	GuestToken string
}

type Gate struct {
	tokens TokenVerifier
	guests state.Store
	rooms  RoomDirectory
}

func New(tokens TokenVerifier, guests state.Store, rooms RoomDirectory) *Gate {
	return &Gate{tokens: tokens, guests: guests, rooms: rooms}
}

// ResolveIdentity disambiguates the credential: member token first, then a
// guest session scoped to the target room. No retry on failure; the client
// must re-authenticate before reconnecting.
func (g *Gate) ResolveIdentity(ctx context.Context, credential string, roomID domain.RoomID) (*Resolved, error) {
	if credential == "" {
		return nil, domain.ErrUnauthorized
	}

	if id, username, err := g.tokens.Verify(credential); err == nil {
		return &Resolved{Identity: id, Username: username}, nil
	}

	sess, err := g.guests.GetGuestSession(ctx, credential)
	if err != nil {
		log.Warn().Err(err).Str("module", "gate").Msg("guest session lookup failed")
		return nil, fmt.Errorf("guest session lookup: %w", err)
	}
	if sess == nil || sess.RoomID != roomID {
		return nil, domain.ErrUnauthorized
	}

	return &Resolved{
		Identity:   domain.GuestIdentity(credential),
		Username:   sess.GuestName,
		IsGuest:    true,
		GuestToken: credential,
	}, nil
}

// RoomSnapshot returns ErrRoomNotFound for both missing and ended rooms;
// the caller refuses the connection either way.
func (g *Gate) RoomSnapshot(ctx context.Context, roomID domain.RoomID) (*RoomSnapshot, error) {
	snap, err := g.rooms.Snapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if snap == nil || !snap.Active {
		return nil, domain.ErrRoomNotFound
	}
	return snap, nil
}

// CloseRoom relays the host's end_room command to the directory.
func (g *Gate) CloseRoom(ctx context.Context, roomID domain.RoomID, hostID domain.Identity) error {
	return g.rooms.Close(ctx, roomID, hostID)
}
