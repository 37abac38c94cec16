package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Mutator applies absolute and relative score changes.
type Mutator struct {
	store Store
	query *Query
	log   logger.Logger
}

// MutatorOption configures a Mutator.
type MutatorOption func(*Mutator)

// WithMutatorLogger sets the mutator's logger.
func WithMutatorLogger(l logger.Logger) MutatorOption {
	return func(m *Mutator) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMutator returns a Mutator writing to store and reporting ranks via query.
func NewMutator(store Store, query *Query, opts ...MutatorOption) *Mutator {
	m := &Mutator{store: store, query: query, log: logger.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetScore overwrites the user's score. Concurrent sets resolve
// last-write-wins.
func (m *Mutator) SetScore(ctx context.Context, userID string, score int64) (MutationResult, error) {
	const op = "set_score"
	if err := validateUser(userID); err != nil {
		return MutationResult{}, m.fail(ctx, op, userID, err)
	}
	if score < 0 {
		return MutationResult{}, m.fail(ctx, op, userID,
			fmt.Errorf("%w: score must be a non-negative integer", model.ErrValidation))
	}

	if _, err := m.store.SetScore(ctx, userID, score); err != nil {
		return MutationResult{}, m.fail(ctx, op, userID, err)
	}
	res, err := m.report(ctx, userID)
	if err != nil {
		return MutationResult{}, m.fail(ctx, op, userID, err)
	}
	metrics.RecordMutation(op, "ok")
	m.log.Debug(ctx, "score set",
		logger.String("user_id", userID),
		logger.Int64("score", score),
		logger.Int("position", res.Position))
	return res, nil
}

// AddPoints atomically adds delta to the user's score.
func (m *Mutator) AddPoints(ctx context.Context, userID string, delta int64) (MutationResult, error) {
	const op = "add_points"
	if err := validateUser(userID); err != nil {
		return MutationResult{}, m.fail(ctx, op, userID, err)
	}
	if delta <= 0 {
		return MutationResult{}, m.fail(ctx, op, userID,
			fmt.Errorf("%w: points must be a positive integer", model.ErrValidation))
	}

	if _, err := m.store.IncrementScore(ctx, userID, delta); err != nil {
		return MutationResult{}, m.fail(ctx, op, userID, err)
	}
	res, err := m.report(ctx, userID)
	if err != nil {
		return MutationResult{}, m.fail(ctx, op, userID, err)
	}
	res.PointsAdded = delta
	metrics.RecordMutation(op, "ok")
	metrics.RecordPointsAdded(delta)
	m.log.Debug(ctx, "points added",
		logger.String("user_id", userID),
		logger.Int64("points", delta),
		logger.Int64("score", res.Score),
		logger.Int("position", res.Position))
	return res, nil
}

// report reads the post-write rank. The row in the result comes from the
// same read, so score and position agree with each other.
func (m *Mutator) report(ctx context.Context, userID string) (MutationResult, error) {
	rank, err := m.query.RankOf(ctx, userID)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{
		Projection: rank.User,
		Position:   rank.Position,
		TotalUsers: rank.TotalUsers,
	}, nil
}

func (m *Mutator) fail(ctx context.Context, op, userID string, err error) error {
	kind := Kind(err)
	metrics.RecordMutation(op, kind)
	if kind == KindStorage {
		m.log.Error(ctx, "mutation failed",
			logger.String("op", op),
			logger.String("user_id", userID),
			logger.Error(err))
	}
	return err
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", model.ErrValidation)
	}
	return nil
}

// Error kinds as reported to clients and metrics.
const (
	KindValidation = "validation_error"
	KindNotFound   = "not_found"
	KindStorage    = "storage_error"
)

// Kind classifies err into one of the Kind constants. Unclassified errors are
// storage errors.
func Kind(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return KindValidation
	case errors.Is(err, model.ErrNotFound):
		return KindNotFound
	default:
		return KindStorage
	}
}

func isStorage(err error) bool {
	return Kind(err) == KindStorage
}
