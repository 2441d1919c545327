package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
)

type memEntry struct {
	guest     *GuestSession
	active    *ActiveUser
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && e.expiresAt.Before(now)
}

// MemoryStore is the single-process fallback used when no Redis URL is
// configured. It provides the same semantics within one instance only.
type MemoryStore struct {
	mu        sync.Mutex
	guests    map[string]memEntry
	actives   map[domain.Identity]memEntry
	guestTTL  time.Duration
	activeTTL time.Duration
}

func NewMemoryStore(guestTTL, activeTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		guests:    make(map[string]memEntry),
		actives:   make(map[domain.Identity]memEntry),
		guestTTL:  guestTTL,
		activeTTL: activeTTL,
	}
}

// StartSweeper periodically drops expired entries. It is owned by the
// caller's context and stops when that context is canceled.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Str("module", "state.memory").Msg("sweeper stopped")
				return
			case <-ticker.C:
				s.sweep(time.Now())
			}
		}
	}()
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, e := range s.guests {
		if e.expired(now) {
			delete(s.guests, token)
		}
	}
	for id, e := range s.actives {
		if e.expired(now) {
			delete(s.actives, id)
		}
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) PutGuestSession(ctx context.Context, token string, sess GuestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guests[token] = memEntry{guest: &sess, expiresAt: time.Now().Add(s.guestTTL)}
	return nil
}

func (s *MemoryStore) GetGuestSession(ctx context.Context, token string) (*GuestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.guests[token]
	if !ok || e.expired(time.Now()) {
		return nil, nil
	}
	sess := *e.guest
	return &sess, nil
}

func (s *MemoryStore) DeleteGuestSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guests, token)
	return nil
}

func (s *MemoryStore) GuestCount(ctx context.Context, roomID domain.RoomID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	count := 0
	for _, e := range s.guests {
		if !e.expired(now) && e.guest.RoomID == roomID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) TouchActiveUser(ctx context.Context, u ActiveUser) error {
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actives[u.Identity] = memEntry{active: &u, expiresAt: time.Now().Add(s.activeTTL)}
	return nil
}

func (s *MemoryStore) ActiveUsers(ctx context.Context, cutoff time.Duration) ([]ActiveUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var users []ActiveUser
	for _, e := range s.actives {
		if e.expired(now) {
			continue
		}
		if now.Sub(e.active.LastSeen) < cutoff {
			users = append(users, *e.active)
		}
	}
	return users, nil
}

func (s *MemoryStore) DeleteActiveUser(ctx context.Context, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actives, id)
	return nil
}

func (s *MemoryStore) Publish(ctx context.Context, roomID domain.RoomID, payload []byte) error {
	return ErrNoPubSub
}
