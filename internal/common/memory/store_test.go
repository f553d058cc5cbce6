package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	apperrors "catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(text string) models.MemoryRecord {
	return models.MemoryRecord{
		AgentID: "catalog",
		UserID:  "user",
		RoomID:  "default-room-catalog",
		Content: models.ResponseEnvelope{
			Text:    text,
			Success: true,
			Data:    []models.CatalogRow{},
			Message: "No resources found",
		},
	}
}

func TestRedisStore_PersistAndRecent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, time.Hour, 2)
	ctx := context.Background()

	require.NoError(t, store.Persist(ctx, sampleRecord("first")))
	require.NoError(t, store.Persist(ctx, sampleRecord("second")))
	require.NoError(t, store.Persist(ctx, sampleRecord("third")))

	key := Key("default-room-catalog")
	items, err := mr.List(key)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, time.Hour, mr.TTL(key))

	recent, err := store.Recent(ctx, "default-room-catalog", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Content.Text)
	assert.Equal(t, "second", recent[1].Content.Text)
	assert.NotEmpty(t, recent[0].ID)
	assert.False(t, recent[0].CreatedAt.IsZero())
}

func TestRedisStore_PersistKeepsEmptyDataAsArray(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, 0, 10)
	rec := sampleRecord("nothing")
	rec.Content.Data = nil
	require.NoError(t, store.Persist(context.Background(), rec))

	items, err := mr.List(Key(rec.RoomID))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], `"data":[]`)
}

// pipelineCounter counts transactions and pipelines sent to redis.
type pipelineCounter struct {
	pipelines int
}

func (c *pipelineCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (c *pipelineCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (c *pipelineCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		c.pipelines++
		return next(ctx, cmds)
	}
}

func TestRedisStore_PersistFailureIsNotRetried(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	counter := &pipelineCounter{}
	client.AddHook(counter)

	mr.SetError("READONLY You can't write against a read only replica")

	store := NewRedisStore(client, time.Hour, 200)
	err := store.Persist(context.Background(), sampleRecord("hello"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMemoryPersistFailed, apperrors.CodeOf(err))
	assert.Equal(t, 1, counter.pipelines)

	mr.SetError("")
	assert.False(t, mr.Exists(Key("default-room-catalog")))
}

func TestRedisStore_PersistWritesTrimAndExpireInOneTransaction(t *testing.T) {
	client, mock := redismock.NewClientMock()

	store := NewRedisStore(client, 30*time.Minute, 50)
	store.newID = func() string { return "rec-2" }
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	rec := sampleRecord("hello")
	rec.ID = "rec-2"
	rec.CreatedAt = fixed
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	key := Key(rec.RoomID)
	mock.ExpectTxPipeline()
	mock.ExpectLPush(key, string(payload)).SetVal(1)
	mock.ExpectLTrim(key, 0, 49).SetVal("OK")
	mock.ExpectExpire(key, 30*time.Minute).SetVal(true)
	mock.ExpectTxPipelineExec()

	require.NoError(t, store.Persist(context.Background(), sampleRecord("hello")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNopStore(t *testing.T) {
	assert.NoError(t, NopStore{}.Persist(context.Background(), sampleRecord("x")))
}
