package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_Prefixes(t *testing.T) {
	dir := t.TempDir()
	for _, prefix := range []string{"sqlite://", "sqlite:", ""} {
		s, err := Open(prefix + filepath.Join(dir, "h.db"))
		require.NoError(t, err, prefix)
		require.NoError(t, s.Close())
	}

	_, err := Open("  ")
	assert.Error(t, err)
}

func TestRecordAndList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first := NewEntry("GET", "http://a.test/", base, &webclient.Result{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       []byte("hello"),
		Duration:   1500 * time.Microsecond,
	}, nil)
	second := NewEntry("POST", "http://a.test/items", base.Add(time.Second), &webclient.Result{
		StatusCode: 201,
		Body:       []byte("{}"),
		Duration:   time.Millisecond,
		Reused:     true,
	}, nil)
	third := NewEntry("GET", "http://down.test/", base.Add(2*time.Second), nil, errors.New("connection refused"))

	for _, e := range []*Entry{first, second, third} {
		require.NoError(t, s.Record(ctx, e))
	}

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, third.ID, entries[0].ID)
	assert.Equal(t, "connection refused", entries[0].Error)
	assert.Equal(t, 0, entries[0].Status)

	assert.Equal(t, second.ID, entries[1].ID)
	assert.True(t, entries[1].Reused)

	got := entries[2]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "GET", got.Method)
	assert.Equal(t, 200, got.Status)
	assert.Equal(t, 1500*time.Microsecond, got.Duration)
	assert.Equal(t, 5, got.BodyBytes)
	assert.Equal(t, map[string]string{"Content-Type": "text/plain"}, got.Headers)
	assert.True(t, got.StartedAt.Equal(base))

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, third.ID, limited[0].ID)
}

func TestStats(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, NewEntry("GET", "http://a/", now, &webclient.Result{StatusCode: 200, Reused: true}, nil)))
	require.NoError(t, s.Record(ctx, NewEntry("GET", "http://a/", now, &webclient.Result{StatusCode: 503}, nil)))
	require.NoError(t, s.Record(ctx, NewEntry("GET", "http://b/", now, nil, errors.New("timeout"))))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Reused: 1, Failed: 2}, st)
}

func TestNewEntry_UniqueIDs(t *testing.T) {
	a := NewEntry("GET", "http://a/", time.Now(), nil, nil)
	b := NewEntry("GET", "http://a/", time.Now(), nil, nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
}
