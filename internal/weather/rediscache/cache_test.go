package rediscache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathpredict/pathpredict/internal/weather"
	"github.com/pathpredict/pathpredict/internal/weather/rediscache"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

// fakeRedis keeps values in a map and returns go-redis command results.
type fakeRedis struct {
	values  map[string]string
	ttls    map[string]time.Duration
	failGet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestCache_RoundTrip(t *testing.T) {
	rdb := newFakeRedis()
	cache := rediscache.New(rdb)

	temp := 4.5
	code := 61
	series := &weather.Series{
		Location: geo.Coordinate{Lat: 52.3, Lon: 4.9},
		Timezone: "UTC",
		Entries: []weather.Hour{
			{Time: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC), Temperature: &temp, Code: &code},
			{Time: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		},
	}

	require.NoError(t, cache.Set(context.Background(), "52.30:4.90", series, 30*time.Minute))
	assert.Equal(t, 30*time.Minute, rdb.ttls[rediscache.DefaultKeyPrefix+"52.30:4.90"])

	got, err := cache.Get(context.Background(), "52.30:4.90")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, 4.5, *got.Entries[0].Temperature)
	assert.Equal(t, 61, *got.Entries[0].Code)
	assert.Nil(t, got.Entries[1].Temperature)
	assert.True(t, series.Entries[0].Time.Equal(got.Entries[0].Time))
}

func TestCache_Miss(t *testing.T) {
	cache := rediscache.New(newFakeRedis())

	got, err := cache.Get(context.Background(), "0.00:0.00")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_Errors(t *testing.T) {
	rdb := newFakeRedis()
	cache := rediscache.New(rdb)

	rdb.values[rediscache.DefaultKeyPrefix+"bad"] = "not json"
	_, err := cache.Get(context.Background(), "bad")
	assert.ErrorContains(t, err, "decoding forecast")

	rdb.failGet = errors.New("connection refused")
	_, err = cache.Get(context.Background(), "bad")
	assert.ErrorContains(t, err, "connection refused")
}
