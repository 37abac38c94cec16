// Package ranking answers ordering queries over user scores and applies score
// mutations.
//
// Query is read-only. Mutator is the only writer and reports the post-write
// rank through Query. The two are not transactionally tied: under concurrent
// writers the reported rank may already be stale when it is returned.
package ranking

import (
	"context"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Store is the subset of the score store the ranking package depends on.
type Store interface {
	Get(ctx context.Context, userID string) (model.UserScore, error)
	SetScore(ctx context.Context, userID string, score int64) (model.UserScore, error)
	IncrementScore(ctx context.Context, userID string, delta int64) (model.UserScore, error)
	ListAll(ctx context.Context) ([]model.UserScore, error)
	ListPage(ctx context.Context, offset, limit int) ([]model.UserScore, int, error)
	Count(ctx context.Context) (int, error)
}

// positioner is implemented by stores that keep an order-statistic index.
type positioner interface {
	Position(ctx context.Context, userID string) (int, int, model.UserScore, error)
}

// RankResult is one user's place in the ordering.
type RankResult struct {
	Position   int              `json:"position"`
	TotalUsers int              `json:"totalUsers"`
	User       model.Projection `json:"user"`
}

// Pagination describes where a page sits in the full ordering.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalUsers  int  `json:"totalUsers"`
	PageSize    int  `json:"pageSize"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// PageResult is one page of the ordering.
type PageResult struct {
	Users      []model.RankedEntry `json:"users"`
	Pagination Pagination          `json:"pagination"`
}

// MutationResult is returned by both mutations.
type MutationResult struct {
	model.Projection
	Position    int   `json:"position"`
	TotalUsers  int   `json:"totalUsers"`
	PointsAdded int64 `json:"pointsAdded,omitempty"`
}
