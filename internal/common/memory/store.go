// Package memory persists the assistant's final replies per room.
package memory

import (
	"context"
	"encoding/json"
	"time"

	"catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "catalog:memory:"

// Store persists one record per resolved message.
type Store interface {
	Persist(ctx context.Context, rec models.MemoryRecord) error
}

// NopStore drops records. It stands in when redis is disabled.
type NopStore struct{}

func (NopStore) Persist(context.Context, models.MemoryRecord) error { return nil }

// RedisStore keeps a capped, expiring list of records per room, newest first.
type RedisStore struct {
	client     redis.Cmdable
	ttl        time.Duration
	maxRecords int
	timeout    time.Duration

	newID func() string
	now   func() time.Time
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration, maxRecords int) *RedisStore {
	if maxRecords <= 0 {
		maxRecords = 200
	}
	return &RedisStore{
		client:     client,
		ttl:        ttl,
		maxRecords: maxRecords,
		timeout:    3 * time.Second,
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func Key(roomID string) string {
	return keyPrefix + roomID
}

// Persist writes rec once. Failures come back as MEMORY_PERSIST_FAILED and are not retried.
func (s *RedisStore) Persist(ctx context.Context, rec models.MemoryRecord) error {
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.Content.Data == nil {
		rec.Content.Data = []models.CatalogRow{}
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.NewMemoryPersistFailedError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := Key(rec.RoomID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, string(payload))
		pipe.LTrim(ctx, key, 0, int64(s.maxRecords-1))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.NewMemoryPersistFailedError(err)
	}
	return nil
}

// Recent returns up to limit records for a room, newest first.
func (s *RedisStore) Recent(ctx context.Context, roomID string, limit int) ([]models.MemoryRecord, error) {
	if limit <= 0 || limit > s.maxRecords {
		limit = s.maxRecords
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.LRange(ctx, Key(roomID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.NewMemoryPersistFailedError(err)
	}

	out := make([]models.MemoryRecord, 0, len(raw))
	for _, item := range raw {
		var rec models.MemoryRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
