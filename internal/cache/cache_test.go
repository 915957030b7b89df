package cache

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drivers(t *testing.T) map[string]Cache {
	t.Helper()

	b, err := OpenBadger("", true)
	require.NoError(t, err)

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	all := map[string]Cache{
		DriverMemory: NewMemory(),
		DriverBadger: b,
		DriverSQLite: s,
	}
	t.Cleanup(func() {
		for _, c := range all {
			_ = c.Close()
		}
	})
	return all
}

func TestCache_Drivers(t *testing.T) {
	ctx := context.Background()

	for name, c := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := c.Get(ctx, "news_v3")
			require.NoError(t, err)
			assert.False(t, ok)

			big := bytes.Repeat([]byte(`{"title":"公司新闻"},`), 100)
			require.NoError(t, c.Set(ctx, "news_v3", []byte(`[{"id":"1"}]`)))
			require.NoError(t, c.Set(ctx, "projects_v3", big))

			got, ok, err := c.Get(ctx, "news_v3")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte(`[{"id":"1"}]`), got)

			got, ok, err = c.Get(ctx, "projects_v3")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, big, got)

			keys, err := c.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"news_v3", "projects_v3"}, keys)

			size, err := c.Size(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(len("news_v3")+len(`[{"id":"1"}]`)+len("projects_v3")+len(big)), size)

			require.NoError(t, c.Delete(ctx, "news_v3"))
			require.NoError(t, c.Delete(ctx, "missing"))
			_, ok, err = c.Get(ctx, "news_v3")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := OpenBadger(dir, true)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "honors_v3", []byte(`[{"id":"h1"}]`)))
	require.NoError(t, b.Close())

	b, err = OpenBadger(dir, false)
	require.NoError(t, err)
	defer b.Close()

	got, ok, err := b.Get(ctx, "honors_v3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`[{"id":"h1"}]`), got)
}

func TestQuota(t *testing.T) {
	ctx := context.Background()
	c := WithQuota(NewMemory(), 32)

	require.NoError(t, c.Set(ctx, "a", bytes.Repeat([]byte("x"), 20)))

	err := c.Set(ctx, "b", bytes.Repeat([]byte("y"), 20))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	_, ok, err := c.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok, "rejected write must not be stored")

	// overwriting accounts for the replaced value
	require.NoError(t, c.Set(ctx, "a", bytes.Repeat([]byte("z"), 31)))
	assert.ErrorIs(t, c.Set(ctx, "a", bytes.Repeat([]byte("z"), 32)), ErrQuotaExceeded)
}

func TestOpen(t *testing.T) {
	c, err := Open(Options{Driver: DriverMemory, Quota: 10})
	require.NoError(t, err)
	defer c.Close()
	assert.ErrorIs(t, c.Set(context.Background(), "k", []byte("0123456789")), ErrQuotaExceeded)

	_, err = Open(Options{Driver: "redis"})
	assert.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(Options{Driver: DriverSQLite})
	assert.Error(t, err)
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	_, _, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(context.Background(), "k", nil), ErrClosed)
}
