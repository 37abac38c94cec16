package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/adapters/repository/redisstore"
	"github.com/okian/scoreboard/internal/adapters/repository/sqlite"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
)

// OpenStore opens the score store selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewTreapStore(ctx, repository.WithMetricsUpdateInterval(cfg.MetricsInterval)), nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverRedis:
		s, err := redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			redisstore.WithPrefix(cfg.RedisPrefix))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %w %q", config.ErrInvalidConfig, repository.ErrUnknownDriver, cfg.StoreDriver)
	}
}

// Persistent reports whether rows written through one OpenStore call are
// visible to the next, across processes.
func Persistent(driver string) bool {
	return driver == config.DriverSQLite || driver == config.DriverRedis
}

// SeedUsers creates n users with random ids, display names derived from the
// id and score 0.
func SeedUsers(ctx context.Context, store repository.Store, n int) ([]model.UserScore, error) {
	users := make([]model.UserScore, 0, max(n, 0))
	for range n {
		id := uuid.NewString()
		u, err := store.Create(ctx, id, "player-"+id[:8])
		if err != nil {
			return users, fmt.Errorf("seed user %s: %w", id, err)
		}
		users = append(users, u)
	}
	return users, nil
}
