// Package service assembles the ranking components into a running process:
// the score store, ranking query and mutator, idempotency cache, points
// queue, worker pool and HTTP handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/okian/scoreboard/internal/adapters/auth"
	"github.com/okian/scoreboard/internal/adapters/http/api"
	"github.com/okian/scoreboard/internal/adapters/http/ratelimit"
	"github.com/okian/scoreboard/internal/adapters/http/swagger"
	eventqueue "github.com/okian/scoreboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/scoreboard/internal/adapters/mq/worker"
	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/internal/domain/dedupe"
	"github.com/okian/scoreboard/internal/domain/ranking"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

const nanosecondsPerMillisecond = 1e6

// ErrNotStarted is returned when the handler is requested before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns every component between the HTTP layer and the store.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	store   repository.Store
	query   *ranking.Query
	mutator *ranking.Mutator
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	limiter *ratelimit.Store
	handler http.Handler

	openStore       func(context.Context, *config.Config, logger.Logger) (repository.Store, error)
	metricsInterval time.Duration

	started bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore uses store instead of opening one from the config. The service
// still closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.openStore = func(context.Context, *config.Config, logger.Logger) (repository.Store, error) {
				return store, nil
			}
		}
	}
}

// New constructs a Service from cfg. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:             cfg,
		openStore:       OpenStore,
		metricsInterval: cfg.MetricsInterval,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metricsInterval <= 0 {
		s.metricsInterval = 5 * time.Second
	}
	return s
}

// Start opens the store and starts the workers and background loops.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting ranking service...", logger.String("store", s.cfg.StoreDriver))

	store, err := s.openStore(ctx, s.cfg, s.logger.Named("store"))
	if err != nil {
		return fmt.Errorf("open %s store: %w", s.cfg.StoreDriver, err)
	}
	if n := s.cfg.SeedUsers; n > 0 {
		if _, err := SeedUsers(ctx, store, n); err != nil {
			_ = store.Close()
			return err
		}
		s.logger.Info(ctx, "seeded users", logger.Int("count", n))
	}
	s.store = store

	s.query = ranking.NewQuery(store, ranking.WithQueryLogger(s.logger.Named("query")))
	s.mutator = ranking.NewMutator(store, s.query, ranking.WithMutatorLogger(s.logger.Named("mutator")))
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.cfg.IdempotencySize),
		dedupe.WithTTL(s.cfg.IdempotencyTTL),
	)
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.QueueSize))
	s.pool = workerpool.NewPool(s.queue, s.mutator,
		workerpool.WithWorkerCount(s.cfg.WorkerCount),
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithReleaser(s.deduper),
	)
	if s.cfg.MutationRPS > 0 {
		s.limiter = ratelimit.NewStore(s.cfg.MutationRPS, s.cfg.MutationBurst)
	}

	opts := []api.Option{
		api.WithLogger(s.logger.Named("http")),
		api.WithLimits(api.Limits{
			DefaultLeaderboard: s.cfg.DefaultLeaderboardLimit,
			MaxLeaderboard:     s.cfg.MaxLeaderboardLimit,
			DefaultPageSize:    s.cfg.DefaultPageSize,
			MaxPageSize:        s.cfg.MaxPageSize,
		}),
	}
	if s.limiter != nil {
		opts = append(opts, api.WithRateLimiter(s.limiter))
	}
	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(api.Dependencies{
		Ranker: s.query,
		Scorer: s.mutator,
		Events: s.queue,
		Dedupe: s.deduper,
		Auth:   auth.NewVerifier(s.cfg.JWTSecret),
		Stats:  s,
	}, opts...).Register(mux)
	s.handler = mux

	// Background work outlives the start request but not Stop.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(loopCtx)
	if s.limiter != nil {
		s.limiter.StartJanitor(loopCtx)
	}
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.metricsLoop(loopCtx)
	}()

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("idempotencySize", s.cfg.IdempotencySize),
	)
	return nil
}

// Handler returns the HTTP handler. It is only available after Start.
func (s *Service) Handler() (http.Handler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.handler, nil
}

// Stop closes intake, waits for queued awards to be applied until ctx ends,
// then closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping ranking service...", logger.Int("pending", s.queue.Len()))

	var errs []error
	if err := s.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	s.loops.Wait()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	stats := s.pool.Stats()
	s.logger.Info(ctx, "ranking service stopped",
		logger.Int64("processed", stats.Processed),
		logger.Int64("failed", stats.Failed))
	return errors.Join(errs...)
}

// Store returns the open store, or nil before Start.
func (s *Service) Store() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"storeDriver": s.cfg.StoreDriver,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
	}
	if !s.started {
		return stats
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pool := s.pool.Stats()
	stats["queueLength"] = s.queue.Len()
	stats["idempotencyKeys"] = s.deduper.Size()
	stats["processed"] = pool.Processed
	stats["failed"] = pool.Failed
	if n, err := s.store.Count(ctx); err == nil {
		stats["totalUsers"] = n
		metrics.UpdateTotalUsers(n)
	} else {
		stats["totalUsersError"] = err.Error()
	}
	if s.limiter != nil {
		stats["rateLimitedKeys"] = s.limiter.Len()
	}
	return stats
}

func (s *Service) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
			s.updateServiceMetrics(ctx)
		}
	}
}

func (s *Service) updateServiceMetrics(ctx context.Context) {
	metrics.UpdateQueueSize(s.queue.Len())
	metrics.UpdateWorkerCount(s.pool.Stats().Workers)
	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdateTotalUsers(n)
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}
