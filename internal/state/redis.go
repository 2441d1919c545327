package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
)

const (
	guestSessionPrefix = "guest_session:"
	activeUserPrefix   = "active_user:"
	roomPubSubPrefix   = "room_broadcast:"
)

// RedisStore keeps guest sessions and active users in Redis so several
// instances can share them.
type RedisStore struct {
	client    *redis.Client
	guestTTL  time.Duration
	activeTTL time.Duration
}

func NewRedisStore(ctx context.Context, redisURL string, guestTTL, activeTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("module", "state.redis").Msg("redis store connected")
	return &RedisStore{client: client, guestTTL: guestTTL, activeTTL: activeTTL}, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func guestSessionKey(token string) string { return guestSessionPrefix + token }

func activeUserKey(id domain.Identity) string { return activeUserPrefix + string(id) }

func roomChannel(roomID domain.RoomID) string { return roomPubSubPrefix + string(roomID) }

func (s *RedisStore) PutGuestSession(ctx context.Context, token string, sess GuestSession) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, guestSessionKey(token), b, s.guestTTL).Err()
}

func (s *RedisStore) GetGuestSession(ctx context.Context, token string) (*GuestSession, error) {
	b, err := s.client.Get(ctx, guestSessionKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess GuestSession
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisStore) DeleteGuestSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, guestSessionKey(token)).Err()
}

func (s *RedisStore) GuestCount(ctx context.Context, roomID domain.RoomID) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, guestSessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		b, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var sess GuestSession
		if err := json.Unmarshal(b, &sess); err != nil {
			continue
		}
		if sess.RoomID == roomID {
			count++
		}
	}
	if err := iter.Err(); err != nil {
		return count, err
	}
	return count, nil
}

func (s *RedisStore) TouchActiveUser(ctx context.Context, u ActiveUser) error {
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now()
	}
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, activeUserKey(u.Identity), b, s.activeTTL).Err()
}

func (s *RedisStore) ActiveUsers(ctx context.Context, cutoff time.Duration) ([]ActiveUser, error) {
	now := time.Now()
	var users []ActiveUser
	iter := s.client.Scan(ctx, 0, activeUserPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		b, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var u ActiveUser
		if err := json.Unmarshal(b, &u); err != nil {
			continue
		}
		if now.Sub(u.LastSeen) < cutoff {
			users = append(users, u)
		}
	}
	if err := iter.Err(); err != nil {
		return users, err
	}
	return users, nil
}

func (s *RedisStore) DeleteActiveUser(ctx context.Context, id domain.Identity) error {
	return s.client.Del(ctx, activeUserKey(id)).Err()
}

func (s *RedisStore) Publish(ctx context.Context, roomID domain.RoomID, payload []byte) error {
	return s.client.Publish(ctx, roomChannel(roomID), payload).Err()
}
