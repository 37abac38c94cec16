package ranking_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/adapters/repository/redisstore"
	"github.com/okian/scoreboard/internal/adapters/repository/sqlite"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ranking"
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

type backend struct {
	name string
	open func(t *testing.T) repository.Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) repository.Store {
			s := repository.NewTreapStore(context.Background(), repository.WithClock(steppingClock()))
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{"sqlite", func(t *testing.T) repository.Store {
			s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "rank.db"), nil,
				sqlite.WithClock(steppingClock()))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{"redis", func(t *testing.T) repository.Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return redisstore.New(rdb, redisstore.WithClock(steppingClock()))
		}},
	}
}

// forEachBackend runs fn once per store backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, open func() repository.Store)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			fn(t, func() repository.Store { return b.open(t) })
		})
	}
}

// seed creates users in order and sets their scores.
func seed(t *testing.T, s repository.Store, ids []string, scores []int64) {
	t.Helper()
	ctx := context.Background()
	for i, id := range ids {
		if _, err := s.Create(ctx, id, "name-"+id); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		if scores[i] != 0 {
			if _, err := s.SetScore(ctx, id, scores[i]); err != nil {
				t.Fatalf("set %s: %v", id, err)
			}
		}
	}
}

// listOnly hides the Position method so Query takes the full-scan path.
type listOnly struct {
	ranking.Store
}

// countingStore records how many times each method was called.
type countingStore struct {
	ranking.Store
	calls atomic.Int64
}

func (c *countingStore) Get(ctx context.Context, id string) (model.UserScore, error) {
	c.calls.Add(1)
	return c.Store.Get(ctx, id)
}

func (c *countingStore) SetScore(ctx context.Context, id string, v int64) (model.UserScore, error) {
	c.calls.Add(1)
	return c.Store.SetScore(ctx, id, v)
}

func (c *countingStore) IncrementScore(ctx context.Context, id string, d int64) (model.UserScore, error) {
	c.calls.Add(1)
	return c.Store.IncrementScore(ctx, id, d)
}

func (c *countingStore) ListAll(ctx context.Context) ([]model.UserScore, error) {
	c.calls.Add(1)
	return c.Store.ListAll(ctx)
}

func (c *countingStore) ListPage(ctx context.Context, off, lim int) ([]model.UserScore, int, error) {
	c.calls.Add(1)
	return c.Store.ListPage(ctx, off, lim)
}

var errDisk = errors.New("disk on fire")

// brokenStore fails every call with a storage error.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (model.UserScore, error) {
	return model.UserScore{}, errors.Join(model.ErrStorage, errDisk)
}

func (brokenStore) SetScore(context.Context, string, int64) (model.UserScore, error) {
	return model.UserScore{}, errors.Join(model.ErrStorage, errDisk)
}

func (brokenStore) IncrementScore(context.Context, string, int64) (model.UserScore, error) {
	return model.UserScore{}, errors.Join(model.ErrStorage, errDisk)
}

func (brokenStore) ListAll(context.Context) ([]model.UserScore, error) {
	return nil, errors.Join(model.ErrStorage, errDisk)
}

func (brokenStore) ListPage(context.Context, int, int) ([]model.UserScore, int, error) {
	return nil, 0, errors.Join(model.ErrStorage, errDisk)
}

func (brokenStore) Count(context.Context) (int, error) {
	return 0, errors.Join(model.ErrStorage, errDisk)
}
