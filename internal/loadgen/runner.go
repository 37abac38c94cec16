package loadgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
)

// readerID is the identity used for read-only calls.
const readerID = "loadgen"

// rankSamples bounds how many users have their RankOf checked.
const rankSamples = 25

type award struct {
	userID string
	points int64
	key    string
}

// Run discovers the provisioned users, sends concurrent add-points requests
// and verifies the resulting ranking. It assumes no other writer is active.
func Run(ctx context.Context, cfg Config, log logger.Logger) (*Report, error) {
	cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	start := time.Now()
	c := newClient(&cfg)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("requests", cfg.Requests),
		logger.Int("replays", cfg.Replays),
		logger.Int("workers", cfg.Workers))

	if err := c.healthy(ctx); err != nil {
		return nil, err
	}

	before, err := discover(ctx, c, cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("discover users: %w", err)
	}
	if len(before) == 0 {
		return nil, errors.New("no users provisioned")
	}
	log.Info(ctx, "discovered users", logger.Int("users", len(before)))

	awards := plan(before, cfg)
	report := &Report{Users: len(before)}
	added := make(map[string]int64)
	if err := send(ctx, c, awards, cfg, added, report, log); err != nil {
		return report, err
	}
	if cfg.Replays > 0 {
		if err := send(ctx, c, awards[:min(cfg.Replays, len(awards))], cfg, added, report, log); err != nil {
			return report, err
		}
	}
	report.Duration = time.Since(start)

	verr := verify(ctx, c, cfg, before, added, report, log)

	log.Info(ctx, "load run finished",
		logger.Int64("sent", report.Sent),
		logger.Int64("applied", report.Applied),
		logger.Int64("duplicates", report.Duplicates),
		logger.Int64("throttled", report.Throttled),
		logger.Int64("failed", report.Failed),
		logger.Duration("duration", report.Duration))
	return report, verr
}

// discover pages through the full ranking.
func discover(ctx context.Context, c *client, size int) ([]model.RankedEntry, error) {
	var all []model.RankedEntry
	for n := 1; ; n++ {
		p, err := c.page(ctx, readerID, n, size)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Users...)
		if !p.Pagination.HasNextPage {
			return all, nil
		}
	}
}

func plan(users []model.RankedEntry, cfg Config) []award {
	awards := make([]award, cfg.Requests)
	for i := range awards {
		awards[i] = award{
			userID: users[rand.IntN(len(users))].UserID,
			points: 1 + rand.Int64N(cfg.MaxPoints),
			key:    uuid.NewString(),
		}
	}
	return awards
}

// send posts awards concurrently and adds the points the service
// acknowledged to added.
func send(ctx context.Context, c *client, awards []award, cfg Config, added map[string]int64, report *Report, log logger.Logger) error {
	var (
		mu                                    sync.Mutex
		sent, applied, dup, failed, throttled atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, a := range awards {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sent.Add(1)
			res, err := c.addPoints(gctx, a.userID, a.points, a.key)
			switch {
			case errors.Is(err, errThrottled):
				throttled.Add(1)
			case err != nil:
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "add points failed", logger.String("user_id", a.userID), logger.Error(err))
				}
			case res.Duplicate:
				dup.Add(1)
			default:
				applied.Add(1)
				mu.Lock()
				added[a.userID] += a.points
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	report.Sent += sent.Load()
	report.Applied += applied.Load()
	report.Duplicates += dup.Load()
	report.Failed += failed.Load()
	report.Throttled += throttled.Load()
	return err
}

func verify(ctx context.Context, c *client, cfg Config, before []model.RankedEntry, added map[string]int64, report *Report, log logger.Logger) error {
	after, err := discover(ctx, c, cfg.PageSize)
	if err != nil {
		return fmt.Errorf("re-read ranking: %w", err)
	}

	var errs []error
	if err := verifyOrdering(after); err != nil {
		errs = append(errs, fmt.Errorf("ordering: %w", err))
	}

	if report.Failed == 0 {
		if err := verifyAdditivity(scores(before), scores(after), added); err != nil {
			errs = append(errs, fmt.Errorf("additivity: %w", err))
		}
	} else {
		log.Warn(ctx, "skipping additivity check; some requests had unknown outcome",
			logger.Int64("failed", report.Failed))
	}

	top, err := c.top(ctx, readerID, cfg.TopK)
	if err != nil {
		errs = append(errs, err)
	} else if err := verifyTopPrefix(top, after[:min(cfg.TopK, len(after))]); err != nil {
		errs = append(errs, fmt.Errorf("top-k: %w", err))
	}

	for i := 0; i < min(rankSamples, len(after)); i++ {
		id := after[rand.IntN(len(after))].UserID
		r, err := c.rankOf(ctx, readerID, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := verifyRank(r, after); err != nil {
			errs = append(errs, fmt.Errorf("rank: %w", err))
		}
	}

	if len(errs) == 0 {
		log.Info(ctx, "ranking verified", logger.Int("users", len(after)))
	}
	return errors.Join(errs...)
}

func scores(entries []model.RankedEntry) map[string]int64 {
	m := make(map[string]int64, len(entries))
	for _, e := range entries {
		m[e.UserID] = e.Score
	}
	return m
}
