// Package worker drains the points queue and applies each award through the
// score mutator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ranking"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Awarder applies a relative score change.
type Awarder interface {
	AddPoints(ctx context.Context, userID string, delta int64) (ranking.MutationResult, error)
}

// Releaser forgets an idempotency key so a failed award can be resent.
type Releaser interface {
	Unrecord(ctx context.Context, key string)
}

// Source is the receive side of the queue.
type Source interface {
	Dequeue() <-chan model.PointsAward
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool runs a fixed number of workers over one Source.
type Pool struct {
	source  Source
	awarder  Awarder
	releaser Releaser
	count    int
	logger   logger.Logger

	processed atomic.Int64
	failed    atomic.Int64

	wg       sync.WaitGroup
	started  atomic.Bool
	shutdown chan struct{}
	once     sync.Once
}

// NewPool creates a pool. It does not start any goroutine.
func NewPool(source Source, awarder Awarder, opts ...Option) *Pool {
	p := &Pool{
		source:   source,
		awarder:  awarder,
		count:    runtime.NumCPU(),
		logger:   logger.Nop(),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Calling it twice has no effect.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, p.logger.Named("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(p.count)
}

// run consumes awards until the source closes, ctx ends or Stop is called.
func (p *Pool) run(ctx context.Context, log logger.Logger) {
	defer p.wg.Done()
	awards := p.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case a, ok := <-awards:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			p.process(ctx, log, a)
		}
	}
}

func (p *Pool) process(ctx context.Context, log logger.Logger, a model.PointsAward) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	res, err := p.awarder.AddPoints(ctx, a.UserID, a.Points)
	if err != nil {
		p.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", ranking.Kind(err))

		fields := []logger.Field{
			logger.String("event_id", a.EventID),
			logger.String("user_id", a.UserID),
			logger.Int64("points", a.Points),
			logger.Error(err),
		}
		// Unknown users and bad payloads are permanent failures. Anything
		// else releases the event id so the sender's retry is applied.
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrValidation) {
			log.Warn(ctx, "award dropped", fields...)
			return
		}
		if p.releaser != nil {
			p.releaser.Unrecord(ctx, a.DedupeKey())
		}
		log.Error(ctx, "award failed; event id released", fields...)
		return
	}

	p.processed.Add(1)
	log.Debug(ctx, "award applied",
		logger.String("event_id", a.EventID),
		logger.String("user_id", a.UserID),
		logger.Int64("score", res.Score),
		logger.Int("position", res.Position))
}

// Shutdown waits for the workers to drain the source. The source must be
// closed first, otherwise Shutdown returns when ctx ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		p.Stop()
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

// Stop makes every worker return after its current award.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.shutdown) })
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.count,
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}
