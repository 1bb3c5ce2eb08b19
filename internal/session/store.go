package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps selections as JSON with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store whose keys start with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mailtrack"
	}
	return &RedisStore{client: client, prefix: prefix + ":session:"}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Selection, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sel, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, sel *Selection, ttl time.Duration) error {
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+id, data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// MemoryStore keeps selections in process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	sel       Selection
	expiresAt time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Selection, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	sel := Selection{
		RecipientIDs: append([]int64(nil), e.sel.RecipientIDs...),
		EmailIDs:     append([]int64(nil), e.sel.EmailIDs...),
	}
	return &sel, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, sel *Selection, ttl time.Duration) error {
	s.mu.Lock()
	s.sessions[id] = memoryEntry{sel: *sel, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}
