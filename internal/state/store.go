// Package state holds the connection-independent runtime state: guest
// sessions minted by the join endpoint and heartbeat-driven active users.
// Two implementations exist, a Redis-backed one for real deployments and
// an in-process one selected at startup when no Redis URL is configured.
// The in-process store is only correct within a single instance.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/sharecast/relay/internal/domain"
)

// ErrNoPubSub is returned by stores that cannot publish across instances.
var ErrNoPubSub = errors.New("pub/sub not supported by this store")

// GuestSession is minted by the guest-join endpoint and consumed when the
// guest opens its socket. It lives until TTL or explicit delete.
type GuestSession struct {
	RoomID    domain.RoomID `json:"room_id"`
	GuestName string        `json:"guest_name"`
	CreatedAt time.Time     `json:"created_at"`
}

// ActiveUser is one heartbeat entry. Entries expire on their own; readers
// additionally apply a staleness cutoff.
type ActiveUser struct {
	Identity domain.Identity `json:"user_id"`
	Username string          `json:"username"`
	IsGuest  bool            `json:"is_guest"`
	LastSeen time.Time       `json:"last_seen"`
}

type Store interface {
	PutGuestSession(ctx context.Context, token string, sess GuestSession) error
	GetGuestSession(ctx context.Context, token string) (*GuestSession, error)
	DeleteGuestSession(ctx context.Context, token string) error
	// GuestCount reports how many live guest sessions point at a room.
	// Used by the join endpoint for capacity checks.
	GuestCount(ctx context.Context, roomID domain.RoomID) (int, error)

	TouchActiveUser(ctx context.Context, u ActiveUser) error
	ActiveUsers(ctx context.Context, cutoff time.Duration) ([]ActiveUser, error)
	DeleteActiveUser(ctx context.Context, id domain.Identity) error

	// Publish pushes a room-scoped payload for other instances. No consumer
	// loop is wired in this process; cross-instance fanout is out of scope.
	Publish(ctx context.Context, roomID domain.RoomID, payload []byte) error

	Ping(ctx context.Context) error
	Close() error
}
