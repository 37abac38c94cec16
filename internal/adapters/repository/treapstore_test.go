package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ordering"
)

// steppingClock returns strictly increasing timestamps.
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

func newTestStore(t *testing.T) *TreapStore {
	t.Helper()
	s := NewTreapStore(context.Background(), WithClock(steppingClock()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreate(t *testing.T, s *TreapStore, id string) model.UserScore {
	t.Helper()
	u, err := s.Create(context.Background(), id, "name-"+id)
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	return u
}

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if count, _ := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	u := mustCreate(t, store, "user1")
	if u.Score != 0 {
		t.Errorf("expected new user to start at 0, got %d", u.Score)
	}
	if u.CreatedAt.IsZero() || !u.UpdatedAt.Equal(u.CreatedAt) {
		t.Errorf("expected timestamps to be set, got %+v", u)
	}

	if _, err := store.Create(ctx, "user1", "again"); !errors.Is(err, model.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := store.IncrementScore(ctx, "user1", 85)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 85 {
		t.Errorf("expected score 85, got %d", got.Score)
	}
	if !got.UpdatedAt.After(u.UpdatedAt) {
		t.Error("expected updatedAt to advance")
	}

	pos, total, row, err := store.Position(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != 1 || total != 1 || row.Score != 85 {
		t.Errorf("expected position 1/1 score 85, got %d/%d score %d", pos, total, row.Score)
	}
}

func TestTreapStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustCreate(t, store, "present")

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := store.SetScore(ctx, "missing", 10); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("SetScore: expected ErrNotFound, got %v", err)
	}
	if _, err := store.IncrementScore(ctx, "missing", 10); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("IncrementScore: expected ErrNotFound, got %v", err)
	}
	if _, _, _, err := store.Position(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Position: expected ErrNotFound, got %v", err)
	}
	if count, _ := store.Count(ctx); count != 1 {
		t.Errorf("expected store unchanged, got count %d", count)
	}
}

func TestTreapStore_ScoreGuards(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustCreate(t, store, "u")

	if _, err := store.SetScore(ctx, "u", -1); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation for negative set, got %v", err)
	}
	if _, err := store.SetScore(ctx, "u", math.MaxInt64); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.IncrementScore(ctx, "u", 1); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation on overflow, got %v", err)
	}
	u, _ := store.Get(ctx, "u")
	if u.Score != math.MaxInt64 {
		t.Errorf("expected score unchanged after failed increment, got %d", u.Score)
	}
}

func TestTreapStore_Ordering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	talents := []struct {
		id    string
		score int64
	}{
		{"talent1", 85},
		{"talent2", 95},
		{"talent3", 75},
		{"talent4", 100},
		{"talent5", 85},
	}
	for _, tc := range talents {
		mustCreate(t, store, tc.id)
		if _, err := store.SetScore(ctx, tc.id, tc.score); err != nil {
			t.Fatalf("set %s: %v", tc.id, err)
		}
	}

	want := []string{"talent4", "talent2", "talent1", "talent5", "talent3"}
	rows, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, id := range want {
		if rows[i].UserID != id {
			t.Errorf("position %d: expected %s, got %s", i+1, id, rows[i].UserID)
		}
		pos, _, _, err := store.Position(ctx, id)
		if err != nil {
			t.Fatalf("position %s: %v", id, err)
		}
		if pos != i+1 {
			t.Errorf("%s: expected position %d, got %d", id, i+1, pos)
		}
	}
}

func TestTreapStore_ListPage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 45; i++ {
		id := fmt.Sprintf("u%02d", i)
		mustCreate(t, store, id)
		if _, err := store.SetScore(ctx, id, int64(i%7)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	all, _ := store.ListAll(ctx)

	tests := []struct {
		offset, limit, wantLen int
	}{
		{0, 20, 20},
		{20, 20, 20},
		{40, 20, 5},
		{60, 20, 0},
		{44, 1, 1},
		{0, 100, 45},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("offset=%d,limit=%d", tc.offset, tc.limit), func(t *testing.T) {
			rows, total, err := store.ListPage(ctx, tc.offset, tc.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if total != 45 {
				t.Errorf("expected total 45, got %d", total)
			}
			if len(rows) != tc.wantLen {
				t.Fatalf("expected %d rows, got %d", tc.wantLen, len(rows))
			}
			for i, r := range rows {
				if r.UserID != all[tc.offset+i].UserID {
					t.Errorf("row %d: expected %s, got %s", i, all[tc.offset+i].UserID, r.UserID)
				}
			}
		})
	}

	if _, _, err := store.ListPage(ctx, -1, 10); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation for negative offset, got %v", err)
	}
}

func TestTreapStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustCreate(t, store, "hot")
	mustCreate(t, store, "cold")

	const goroutines = 50
	const perGoroutine = 40
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if _, err := store.IncrementScore(ctx, "hot", int64(g%3+1)); err != nil {
					t.Errorf("increment: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	var want int64
	for g := 0; g < goroutines; g++ {
		want += int64(g%3+1) * perGoroutine
	}
	u, _ := store.Get(ctx, "hot")
	if u.Score != want {
		t.Errorf("expected score %d, got %d", want, u.Score)
	}
	if pos, _, _, _ := store.Position(ctx, "hot"); pos != 1 {
		t.Errorf("expected hot user first, got %d", pos)
	}
}

func TestTreapStore_RandomizedAgainstSort(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 300; i++ {
		mustCreate(t, store, fmt.Sprintf("p%03d", i))
	}
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("p%03d", rng.Intn(300))
		var err error
		if rng.Intn(2) == 0 {
			_, err = store.SetScore(ctx, id, int64(rng.Intn(50)))
		} else {
			_, err = store.IncrementScore(ctx, id, int64(rng.Intn(5)+1))
		}
		if err != nil {
			t.Fatalf("mutation: %v", err)
		}
	}

	rows, _ := store.ListAll(ctx)
	expected := append([]model.UserScore(nil), rows...)
	ordering.Sort(expected)
	for i := range rows {
		if rows[i].UserID != expected[i].UserID {
			t.Fatalf("index %d: treap has %s, sort has %s", i, rows[i].UserID, expected[i].UserID)
		}
		pos, _, _, _ := store.Position(ctx, rows[i].UserID)
		if pos != 1+ordering.CountAbove(rows, ordering.KeyOf(rows[i])) {
			t.Fatalf("%s: position %d disagrees with count", rows[i].UserID, pos)
		}
	}
}

func BenchmarkTreapStore_IncrementScore(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()
	for i := 0; i < 10_000; i++ {
		_, _ = store.Create(ctx, fmt.Sprintf("u%d", i), "")
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.IncrementScore(ctx, fmt.Sprintf("u%d", i%10_000), 1)
	}
}

func BenchmarkTreapStore_Position(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()
	for i := 0; i < 10_000; i++ {
		id := fmt.Sprintf("u%d", i)
		_, _ = store.Create(ctx, id, "")
		_, _ = store.SetScore(ctx, id, int64(i%500))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _, _ = store.Position(ctx, fmt.Sprintf("u%d", i%10_000))
	}
}

func TestTreapStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx, WithMetricsUpdateInterval(10*time.Millisecond))
	mustCreate(t, store, "u")

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	checks := map[string]error{}
	_, checks["create"] = store.Create(ctx, "v", "v")
	_, checks["get"] = store.Get(ctx, "u")
	_, checks["set"] = store.SetScore(ctx, "u", 5)
	_, checks["increment"] = store.IncrementScore(ctx, "u", 5)
	_, checks["list_all"] = store.ListAll(ctx)
	_, _, checks["list_page"] = store.ListPage(ctx, 0, 10)
	_, _, _, checks["position"] = store.Position(ctx, "u")
	_, checks["count"] = store.Count(ctx)

	for op, err := range checks {
		if !errors.Is(err, ErrClosed) || !errors.Is(err, model.ErrStorage) {
			t.Errorf("%s after close: expected ErrClosed as a storage error, got %v", op, err)
		}
	}
}

func TestTreapStore_MetricsUpdateInterval(t *testing.T) {
	store := NewTreapStore(context.Background(), WithMetricsUpdateInterval(250*time.Millisecond), WithMetricsUpdateInterval(0))
	defer store.Close()

	if store.metricsUpdateInterval != 250*time.Millisecond {
		t.Errorf("expected interval 250ms, got %v", store.metricsUpdateInterval)
	}
}
