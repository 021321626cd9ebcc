package kv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilamate/kilamate/internal/kv"
)

func stores(t *testing.T) map[string]kv.Store {
	t.Helper()

	fileStore, err := kv.NewFileStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]kv.Store{
		"memory": kv.NewMemoryStore(),
		"file":   fileStore,
		"redis":  kv.NewRedisStore(client, "test"),
	}
}

func TestStores_GetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "absent")
			assert.ErrorIs(t, err, kv.ErrNotFound)
		})
	}
}

func TestStores_SetGetOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "sent-weather-alerts", []byte(`{"a":1}`)))
			require.NoError(t, s.Set(ctx, "sent-weather-alerts", []byte(`{"a":2}`)))

			got, err := s.Get(ctx, "sent-weather-alerts")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))

			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var out map[string]int64
			found, err := kv.GetJSON(ctx, s, "record", &out)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, kv.SetJSON(ctx, s, "record", map[string]int64{"High Wind Alert-Nairobi": 1700000000000}))

			found, err = kv.GetJSON(ctx, s, "record", &out)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, int64(1700000000000), out["High Wind Alert-Nairobi"])
		})
	}
}

func TestGetJSON_CorruptValue(t *testing.T) {
	s := kv.NewMemoryStore()
	require.NoError(t, s.Set(context.Background(), "record", []byte("{not json")))

	var out map[string]int64
	_, err := kv.GetJSON(context.Background(), s, "record", &out)
	assert.Error(t, err)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := kv.NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, s.Set(context.Background(), "k", value))
	value[0] = 'x'

	got, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestRedisStore_Namespace(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := kv.NewRedisStore(client, "kilamate")
	require.NoError(t, s.Set(context.Background(), "weather-preferences", []byte("{}")))

	assert.True(t, mr.Exists("kilamate:weather-preferences"))
}

func TestFileStore_SanitisesKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := kv.NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "a/b:c", []byte("1")))

	_, err = os.Stat(filepath.Join(dir, "a_b_c.json"))
	assert.NoError(t, err)
}
