package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mementolink/mementolink-backend/internal/platform/envutil"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
)

// SessionRecord is the claimant editing session between claim verification
// and password setup. It never holds the claim token itself.
type SessionRecord struct {
	ClaimRequestID uuid.UUID `json:"claim_request_id"`
	Email          string    `json:"email"`
	Tenant         string    `json:"tenant"`
	MemoryID       uuid.UUID `json:"memory_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type SessionStore interface {
	Save(ctx context.Context, sessionID string, record SessionRecord) error
	Load(ctx context.Context, sessionID string) (*SessionRecord, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

type sessionStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewSessionStore(baseLog *logger.Logger) (SessionStore, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &sessionStore{
		log: baseLog.With("service", "RedisSessionStore"),
		rdb: rdb,
		ttl: envutil.Duration("SESSION_TTL", 2*time.Hour),
	}, nil
}

func (s *sessionStore) Save(ctx context.Context, sessionID string, record SessionRecord) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("session store not initialized")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.rdb.Set(ctx, sessionKey(sessionID), raw, s.ttl).Err()
}

func (s *sessionStore) Load(ctx context.Context, sessionID string) (*SessionRecord, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("session store not initialized")
	}
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var record SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &record, nil
}

func (s *sessionStore) Clear(ctx context.Context, sessionID string) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("session store not initialized")
	}
	return s.rdb.Del(ctx, sessionKey(sessionID)).Err()
}

func (s *sessionStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func sessionKey(sessionID string) string {
	return "claim_session:" + sessionID
}
