// Package repository defines the score store contract and its in-memory backend.
//
// Backends return model.ErrNotFound for unknown users and wrap infrastructure
// failures with model.ErrStorage.
package repository

import (
	"context"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Store provides read/write access to user score rows.
type Store interface {
	// Create provisions a row with score 0. Returns model.ErrAlreadyExists on a
	// duplicate id.
	Create(ctx context.Context, userID, displayName string) (model.UserScore, error)

	// Get returns the row for userID.
	Get(ctx context.Context, userID string) (model.UserScore, error)

	// SetScore overwrites the score. Concurrent calls resolve last-write-wins.
	SetScore(ctx context.Context, userID string, score int64) (model.UserScore, error)

	// IncrementScore atomically adds delta to the score.
	IncrementScore(ctx context.Context, userID string, delta int64) (model.UserScore, error)

	// ListAll returns every row. Order is unspecified.
	ListAll(ctx context.Context) ([]model.UserScore, error)

	// ListPage returns up to limit rows in ranking order starting at offset,
	// together with the total row count.
	ListPage(ctx context.Context, offset, limit int) ([]model.UserScore, int, error)

	// Count returns the number of rows.
	Count(ctx context.Context) (int, error)

	// Close releases the backend.
	Close() error
}

// Positioner is implemented by backends that keep an order-statistic index and
// can answer a position lookup without listing the population.
type Positioner interface {
	// Position returns the 1-based position of userID, the population size and
	// the row itself.
	Position(ctx context.Context, userID string) (int, int, model.UserScore, error)
}
