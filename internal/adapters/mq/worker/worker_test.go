package worker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scoreboard/internal/adapters/mq/queue"
	"github.com/okian/scoreboard/internal/adapters/mq/worker"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ranking"
)

// fakeAwarder sums points per user and fails for configured users.
type fakeAwarder struct {
	mu     sync.Mutex
	totals map[string]int64
	fail   map[string]error
}

func newFakeAwarder() *fakeAwarder {
	return &fakeAwarder{totals: map[string]int64{}, fail: map[string]error{}}
}

func (f *fakeAwarder) AddPoints(_ context.Context, userID string, delta int64) (ranking.MutationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[userID]; ok {
		return ranking.MutationResult{}, err
	}
	f.totals[userID] += delta
	res := ranking.MutationResult{Position: 1, TotalUsers: len(f.totals), PointsAdded: delta}
	res.UserID = userID
	res.Score = f.totals[userID]
	return res, nil
}

func (f *fakeAwarder) total(userID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals[userID]
}

func TestPool(t *testing.T) {
	Convey("Given a queue and a pool of workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		awarder := newFakeAwarder()
		awarder.fail["ghost"] = fmt.Errorf("%w: ghost", model.ErrNotFound)
		pool := worker.NewPool(q, awarder, worker.WithWorkerCount(4))
		ctx := context.Background()
		pool.Start(ctx)
		pool.Start(ctx)

		Convey("When awards are queued and the queue is closed", func() {
			for i := 0; i < 200; i++ {
				So(q.Enqueue(ctx, model.PointsAward{EventID: fmt.Sprint(i), UserID: "u1", Points: 2}), ShouldBeNil)
			}
			So(q.Enqueue(ctx, model.PointsAward{EventID: "x", UserID: "ghost", Points: 5}), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			Convey("Then every award is applied exactly once", func() {
				So(err, ShouldBeNil)
				So(awarder.total("u1"), ShouldEqual, 400)
				So(pool.Stats(), ShouldResemble, worker.Stats{Workers: 4, Processed: 200, Failed: 1})
			})
		})

		Convey("When shutdown runs out of time with the queue still open", func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			Convey("Then it reports the timeout and stops the workers", func() {
				So(err, ShouldNotBeNil)
				So(pool.Shutdown(context.Background()), ShouldBeNil)
			})
		})
	})

	Convey("Given a pool whose context is cancelled", t, func() {
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(q, newFakeAwarder(), worker.WithWorkerCount(2))
		ctx, cancel := context.WithCancel(context.Background())
		pool.Start(ctx)
		cancel()

		Convey("Then the workers exit without the queue closing", func() {
			done := make(chan error, 1)
			go func() { done <- pool.Shutdown(context.Background()) }()
			select {
			case err := <-done:
				So(err, ShouldBeNil)
			case <-time.After(2 * time.Second):
				So(fmt.Errorf("workers did not stop"), ShouldBeNil)
			}
		})
	})
}

// keyLog records released idempotency keys.
type keyLog struct {
	mu   sync.Mutex
	keys []string
}

func (k *keyLog) Unrecord(_ context.Context, key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = append(k.keys, key)
}

func (k *keyLog) released() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.keys...)
}

func TestPool_ReleasesRetryableFailures(t *testing.T) {
	Convey("Given a pool with a releaser and failing users", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		awarder := newFakeAwarder()
		awarder.fail["flaky"] = fmt.Errorf("%w: database is locked", model.ErrStorage)
		awarder.fail["ghost"] = fmt.Errorf("%w: ghost", model.ErrNotFound)
		released := &keyLog{}
		pool := worker.NewPool(q, awarder, worker.WithWorkerCount(1), worker.WithReleaser(released))
		ctx := context.Background()
		pool.Start(ctx)

		So(q.Enqueue(ctx, model.PointsAward{EventID: "e-storage", UserID: "flaky", Points: 1}), ShouldBeNil)
		So(q.Enqueue(ctx, model.PointsAward{EventID: "e-missing", UserID: "ghost", Points: 1}), ShouldBeNil)
		So(q.Enqueue(ctx, model.PointsAward{EventID: "e-ok", UserID: "u1", Points: 1}), ShouldBeNil)
		So(q.Close(), ShouldBeNil)
		So(pool.Shutdown(ctx), ShouldBeNil)

		Convey("Then only the storage failure releases its event id", func() {
			So(released.released(), ShouldResemble, []string{"event:e-storage"})
			So(pool.Stats().Failed, ShouldEqual, 2)
			So(awarder.total("u1"), ShouldEqual, 1)
		})
	})
}
