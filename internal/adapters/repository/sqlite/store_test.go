package sqlite_test

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/scoreboard/internal/adapters/repository/sqlite"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ordering"
)

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scores.db")
	s, err := sqlite.Open(context.Background(), path, nil, sqlite.WithClock(steppingClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_MigratesIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scores.db")

	s1, err := sqlite.Open(ctx, path, nil)
	require.NoError(t, err)
	_, err = s1.Create(ctx, "u1", "One")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := sqlite.Open(ctx, path, nil)
	require.NoError(t, err)
	defer s2.Close()

	u, err := s2.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "One", u.DisplayName)
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.Create(ctx, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), created.Score)

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, got.UserID)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	_, err = s.Create(ctx, "alice", "Again")
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	_, err = s.Get(ctx, "nobody")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_SetAndIncrement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created, err := s.Create(ctx, "bob", "Bob")
	require.NoError(t, err)

	u, err := s.SetScore(ctx, "bob", 120)
	require.NoError(t, err)
	assert.Equal(t, int64(120), u.Score)
	assert.True(t, u.UpdatedAt.After(created.UpdatedAt))
	assert.True(t, u.CreatedAt.Equal(created.CreatedAt))

	u, err = s.IncrementScore(ctx, "bob", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(150), u.Score)

	_, err = s.SetScore(ctx, "bob", -1)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = s.SetScore(ctx, "ghost", 5)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.IncrementScore(ctx, "ghost", 5)
	assert.ErrorIs(t, err, model.ErrNotFound)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_IncrementOverflow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Create(ctx, "max", "")
	require.NoError(t, err)
	_, err = s.SetScore(ctx, "max", math.MaxInt64-1)
	require.NoError(t, err)

	_, err = s.IncrementScore(ctx, "max", 2)
	assert.ErrorIs(t, err, model.ErrValidation)

	u, err := s.Get(ctx, "max")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64-1), u.Score)
}

func TestStore_OrderingAndPosition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seed := []struct {
		id    string
		score int64
	}{
		{"first300", 300},
		{"second300", 300},
		{"low150", 150},
		{"top999", 999},
	}
	for _, tc := range seed {
		_, err := s.Create(ctx, tc.id, tc.id)
		require.NoError(t, err)
		_, err = s.SetScore(ctx, tc.id, tc.score)
		require.NoError(t, err)
	}

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, u := range all {
		ids[i] = u.UserID
	}
	assert.Equal(t, []string{"top999", "first300", "second300", "low150"}, ids)

	for i, u := range all {
		pos, total, row, err := s.Position(ctx, u.UserID)
		require.NoError(t, err)
		assert.Equal(t, i+1, pos, u.UserID)
		assert.Equal(t, 4, total)
		assert.Equal(t, u.Score, row.Score)
		assert.Equal(t, pos, 1+ordering.CountAbove(all, ordering.KeyOf(u)))
	}

	_, _, _, err = s.Position(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_ListPage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 45; i++ {
		id := fmt.Sprintf("u%02d", i)
		_, err := s.Create(ctx, id, "")
		require.NoError(t, err)
		_, err = s.SetScore(ctx, id, int64(i%5))
		require.NoError(t, err)
	}
	all, err := s.ListAll(ctx)
	require.NoError(t, err)

	page, total, err := s.ListPage(ctx, 40, 20)
	require.NoError(t, err)
	assert.Equal(t, 45, total)
	require.Len(t, page, 5)
	assert.Equal(t, all[40].UserID, page[0].UserID)

	page, total, err = s.ListPage(ctx, 60, 20)
	require.NoError(t, err)
	assert.Equal(t, 45, total)
	assert.Empty(t, page)

	_, _, err = s.ListPage(ctx, 0, 0)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Create(ctx, "hot", "")
	require.NoError(t, err)

	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := s.IncrementScore(ctx, "hot", 3)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	u, err := s.Get(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker*3), u.Score)
}
