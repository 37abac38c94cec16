// Package loadgen drives concurrent score traffic against a running service
// and checks that the ranking it reports stays consistent.
package loadgen

import (
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ranking"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Secret    string        // HS256 secret used to sign per-user tokens
	Requests  int           // Number of add-points requests to send
	MaxPoints int64         // Upper bound of a single award
	Replays   int           // Requests re-sent with the same idempotency key
	Workers   int           // Number of concurrent senders
	TopK      int           // Leaderboard size to compare against page 1
	PageSize  int           // Page size used for discovery
	Timeout   time.Duration // HTTP request timeout
	Verbose   bool          // Log each failure
}

func (c *Config) withDefaults() {
	if c.Requests <= 0 {
		c.Requests = 1000
	}
	if c.MaxPoints <= 0 {
		c.MaxPoints = 50
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Report summarises a run.
type Report struct {
	Users      int           `json:"users"`
	Sent       int64         `json:"sent"`
	Applied    int64         `json:"applied"`
	Duplicates int64         `json:"duplicates"`
	Failed     int64         `json:"failed"`
	Throttled  int64         `json:"throttled"`
	Duration   time.Duration `json:"duration"`
}

// envelope mirrors the service response body.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type (
	leaderboard = []model.RankedEntry
	page        = ranking.PageResult
	rank        = ranking.RankResult
	mutation    = ranking.MutationResult
)
