package ranking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ordering"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Query computes rankings from the current store contents.
type Query struct {
	store Store
	log   logger.Logger
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithQueryLogger sets the logger used for storage failures.
func WithQueryLogger(l logger.Logger) QueryOption {
	return func(q *Query) {
		if l != nil {
			q.log = l
		}
	}
}

// NewQuery returns a Query over store.
func NewQuery(store Store, opts ...QueryOption) *Query {
	q := &Query{store: store, log: logger.Nop()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// TopK returns the first k entries of the ordering, or all of them when fewer
// than k users exist.
func (q *Query) TopK(ctx context.Context, k int) ([]model.RankedEntry, error) {
	defer observe("top_k", time.Now())

	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1", model.ErrValidation)
	}
	users, _, err := q.store.ListPage(ctx, 0, k)
	if err != nil {
		q.logFailure(ctx, "top_k", err)
		return nil, err
	}
	out := make([]model.RankedEntry, len(users))
	for i, u := range users {
		out[i] = model.NewRankedEntry(i+1, u)
	}
	return out, nil
}

// RankOf returns the 1-based position of userID and the population size.
func (q *Query) RankOf(ctx context.Context, userID string) (RankResult, error) {
	defer observe("rank_of", time.Now())

	if strings.TrimSpace(userID) == "" {
		return RankResult{}, fmt.Errorf("%w: user id is required", model.ErrValidation)
	}

	if p, ok := q.store.(positioner); ok {
		pos, total, u, err := p.Position(ctx, userID)
		if err != nil {
			q.logFailure(ctx, "rank_of", err)
			return RankResult{}, err
		}
		return RankResult{Position: pos, TotalUsers: total, User: u.Project()}, nil
	}

	// Single snapshot: the user row and the population come from one read.
	all, err := q.store.ListAll(ctx)
	if err != nil {
		q.logFailure(ctx, "rank_of", err)
		return RankResult{}, err
	}
	for _, u := range all {
		if u.UserID == userID {
			pos := 1 + ordering.CountAbove(all, ordering.KeyOf(u))
			return RankResult{Position: pos, TotalUsers: len(all), User: u.Project()}, nil
		}
	}
	return RankResult{}, fmt.Errorf("%w: %s", model.ErrNotFound, userID)
}

// Page returns one page of the ordering. pageNumber and pageSize below 1 are
// raised to 1. A page past the end is empty, not an error.
func (q *Query) Page(ctx context.Context, pageNumber, pageSize int) (PageResult, error) {
	defer observe("page", time.Now())

	pageNumber = clampMin(pageNumber)
	pageSize = clampMin(pageSize)
	offset := pageOffset(pageNumber, pageSize)

	users, total, err := q.store.ListPage(ctx, offset, pageSize)
	if err != nil {
		q.logFailure(ctx, "page", err)
		return PageResult{}, err
	}
	entries := make([]model.RankedEntry, len(users))
	for i, u := range users {
		entries[i] = model.NewRankedEntry(offset+i+1, u)
	}
	return PageResult{
		Users:      entries,
		Pagination: newPagination(pageNumber, pageSize, total),
	}, nil
}

// logFailure logs storage failures only. Validation and not-found are
// caller errors.
func (q *Query) logFailure(ctx context.Context, op string, err error) {
	if isStorage(err) {
		q.log.Error(ctx, "rank query failed", logger.String("op", op), logger.Error(err))
	}
}

func observe(op string, start time.Time) {
	metrics.RecordRankQuery(op, float64(time.Since(start).Microseconds())/1000)
}
