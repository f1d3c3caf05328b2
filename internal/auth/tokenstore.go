package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// TokenSession is the server-side half of a token login.
type TokenSession struct {
	Token   string    `json:"auth_token"`
	Expires time.Time `json:"expires"`
}

// TokenStore keeps one TokenSession per username.
type TokenStore interface {
	Put(ctx context.Context, username string, session TokenSession) error
	// Get returns ok=false when no session is stored for the username.
	Get(ctx context.Context, username string) (TokenSession, bool, error)
	Delete(ctx context.Context, username string) error
}

// tokenRetention is how long an expired session is kept around so that a
// returning browser sees "Session expired" rather than a plain login form.
const tokenRetention = 24 * time.Hour

// MemoryTokenStore keeps sessions in process memory.
type MemoryTokenStore struct {
	cache *gocache.Cache
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{cache: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

var _ TokenStore = (*MemoryTokenStore)(nil)

func (s *MemoryTokenStore) Put(_ context.Context, username string, session TokenSession) error {
	s.cache.Set(username, session, time.Until(session.Expires)+tokenRetention)
	return nil
}

func (s *MemoryTokenStore) Get(_ context.Context, username string) (TokenSession, bool, error) {
	v, found := s.cache.Get(username)
	if !found {
		return TokenSession{}, false, nil
	}
	session, ok := v.(TokenSession)
	if !ok {
		return TokenSession{}, false, nil
	}
	return session, true, nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, username string) error {
	s.cache.Delete(username)
	return nil
}

// RedisTokenStore shares sessions between replicas through redis.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: "modauth:token:"}
}

var _ TokenStore = (*RedisTokenStore)(nil)

func (s *RedisTokenStore) Put(ctx context.Context, username string, session TokenSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode token session: %w", err)
	}
	ttl := time.Until(session.Expires) + tokenRetention
	if err := s.client.Set(ctx, s.prefix+username, data, ttl).Err(); err != nil {
		return fmt.Errorf("store token session: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Get(ctx context.Context, username string) (TokenSession, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+username).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TokenSession{}, false, nil
		}
		return TokenSession{}, false, fmt.Errorf("load token session: %w", err)
	}
	var session TokenSession
	if err := json.Unmarshal(data, &session); err != nil {
		return TokenSession{}, false, fmt.Errorf("decode token session: %w", err)
	}
	return session, true, nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.prefix+username).Err(); err != nil {
		return fmt.Errorf("delete token session: %w", err)
	}
	return nil
}
