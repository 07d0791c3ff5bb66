package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/internal/domain"
)

func sample() domain.History {
	return domain.History{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "Relevant code context:\nctx\n\nQuestion: q"},
		{Role: domain.RoleAssistant, Content: "a"},
	}
}

func exerciseStore(t *testing.T, s domain.SessionStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "chan-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "chan-1", sample()))
	got, ok, err := s.Load(ctx, "chan-1")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	replaced := append(sample(), domain.Message{Role: domain.RoleUser, Content: "more"})
	require.NoError(t, s.Save(ctx, "chan-1", replaced))
	got, _, err = s.Load(ctx, "chan-1")
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, ok, err = s.Load(ctx, "chan-2")
	require.NoError(t, err)
	assert.False(t, ok, "sessions are isolated by key")

	deleted, err := s.Delete(ctx, "chan-1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.Delete(ctx, "chan-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_DoesNotAliasCallerHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	h := sample()
	require.NoError(t, s.Save(ctx, "k", h))

	h[0].Content = "mutated"
	got, _, _ := s.Load(ctx, "k")
	got[1].Content = "mutated too"

	again, _, _ := s.Load(ctx, "k")
	assert.Equal(t, "sys", again[0].Content)
	assert.NotEqual(t, "mutated too", again[1].Content)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr(), KeyPrefix: "codeqa:session:", TTL: time.Hour})
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestRedisStore_TTLAndPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr(), KeyPrefix: "p:", TTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), "k", sample()))

	assert.True(t, mr.Exists("p:k"))
	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
