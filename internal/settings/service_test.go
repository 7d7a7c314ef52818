package settings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeCache is an in-memory Cache that counts hits against the backing
// store so read-through behavior can be asserted
type fakeCache struct {
	values map[string]string
	gets   int
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (f *fakeCache) GetString(ctx context.Context, key string) (string, error) {
	f.gets++
	if value, ok := f.values[key]; ok {
		return value, nil
	}
	return "", fmt.Errorf("key not found: %s", key)
}

func (f *fakeCache) SetString(ctx context.Context, key, value string, expiration time.Duration) error {
	f.sets++
	f.values[key] = value
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	delete(f.values, key)
	return nil
}

func setupTestService(t *testing.T, cache Cache) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Setting{}))

	return NewService(db, cache, 5*time.Minute), db
}

func TestSetAndGet(t *testing.T) {
	service, _ := setupTestService(t, newFakeCache())
	ctx := context.Background()
	admin := uuid.New()

	require.NoError(t, service.Set(ctx, "upload.banner", "maintenance at noon", admin))

	value, err := service.Get(ctx, "upload.banner")
	require.NoError(t, err)
	assert.Equal(t, "maintenance at noon", value)
}

func TestGet_ReadThrough(t *testing.T) {
	cache := newFakeCache()
	service, _ := setupTestService(t, cache)
	ctx := context.Background()

	require.NoError(t, service.Set(ctx, "key", "value", uuid.New()))

	// First read misses the cache and populates it
	_, err := service.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// Second read is served from the cache
	value, err := service.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
	assert.Equal(t, 1, cache.sets)
}

func TestSet_InvalidatesCache(t *testing.T) {
	cache := newFakeCache()
	service, _ := setupTestService(t, cache)
	ctx := context.Background()
	admin := uuid.New()

	require.NoError(t, service.Set(ctx, "key", "old", admin))
	_, err := service.Get(ctx, "key")
	require.NoError(t, err)

	// The write must evict the stale cached value
	require.NoError(t, service.Set(ctx, "key", "new", admin))

	value, err := service.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "new", value)
}

func TestSet_Upsert(t *testing.T) {
	service, db := setupTestService(t, newFakeCache())
	ctx := context.Background()
	admin := uuid.New()

	require.NoError(t, service.Set(ctx, "key", "first", admin))
	require.NoError(t, service.Set(ctx, "key", "second", admin))

	var count int64
	require.NoError(t, db.Model(&types.Setting{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGet_Missing(t *testing.T) {
	service, _ := setupTestService(t, newFakeCache())

	_, err := service.Get(context.Background(), "no-such-key")
	assert.Error(t, err)
}

func TestGetOrDefault(t *testing.T) {
	service, _ := setupTestService(t, newFakeCache())
	ctx := context.Background()

	assert.Equal(t, "fallback", service.GetOrDefault(ctx, "missing", "fallback"))

	require.NoError(t, service.Set(ctx, "present", "value", uuid.New()))
	assert.Equal(t, "value", service.GetOrDefault(ctx, "present", "fallback"))
}

func TestNilCache(t *testing.T) {
	service, _ := setupTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, service.Set(ctx, "key", "value", uuid.New()))
	value, err := service.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

func TestAll(t *testing.T) {
	service, _ := setupTestService(t, newFakeCache())
	ctx := context.Background()
	admin := uuid.New()

	require.NoError(t, service.Set(ctx, "b", "2", admin))
	require.NoError(t, service.Set(ctx, "a", "1", admin))

	all, err := service.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Key)
	assert.Equal(t, "b", all[1].Key)
}
