package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
)

// memoryRedis is an in-memory stand-in for cache.RedisClient
type memoryRedis struct {
	values map[string][]byte
	sets   map[string]map[string]struct{}
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string][]byte{}, sets: map[string]map[string]struct{}{}}
}

func (m *memoryRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = data
	return nil
}

func (m *memoryRedis) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := m.values[key]
	if !ok {
		return fmt.Errorf("key '%s': %w", key, domainerrors.ErrNotFound)
	}
	return json.Unmarshal(data, dest)
}

func (m *memoryRedis) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.values[key]
	return ok, nil
}

func (m *memoryRedis) AddToSet(ctx context.Context, key string, members ...string) error {
	if m.sets[key] == nil {
		m.sets[key] = map[string]struct{}{}
	}
	for _, member := range members {
		m.sets[key][member] = struct{}{}
	}
	return nil
}

func (m *memoryRedis) SetMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *memoryRedis) Ping(ctx context.Context) error { return nil }

func (m *memoryRedis) Close() error { return nil }

func TestUserRedisRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemoryRedis()
	repo := NewUserRedisRepository(store, "test", zap.NewNop())

	_, err := repo.GetByID(ctx, 5)
	assert.True(t, domainerrors.IsNotFound(err))

	require.NoError(t, repo.Create(ctx, entities.NewUser(5, entities.UserProfile{Username: "five"})))
	_, err = repo.Update(ctx, 3, entities.UserUpdate{MonitorEnabled: entities.BoolPtr(false)})
	require.NoError(t, err)

	assert.Contains(t, store.values, "test:user:5")
	assert.Contains(t, store.sets["test:users"], "3")

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(5), all[1].ID)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "five", active[0].Username)
}
