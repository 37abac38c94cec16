// Package api exposes the ranking service over HTTP.
package api

import (
	"context"
	"net"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/okian/scoreboard/internal/adapters/auth"
	"github.com/okian/scoreboard/internal/adapters/http/ratelimit"
	"github.com/okian/scoreboard/internal/domain/dedupe"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ranking"
	"github.com/okian/scoreboard/pkg/logger"
)

// Ranker answers read queries over the ordering.
type Ranker interface {
	TopK(ctx context.Context, k int) ([]model.RankedEntry, error)
	RankOf(ctx context.Context, userID string) (ranking.RankResult, error)
	Page(ctx context.Context, page, size int) (ranking.PageResult, error)
}

// Scorer applies score mutations.
type Scorer interface {
	SetScore(ctx context.Context, userID string, score int64) (ranking.MutationResult, error)
	AddPoints(ctx context.Context, userID string, delta int64) (ranking.MutationResult, error)
}

// Enqueuer accepts awards for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, a model.PointsAward) error
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	FromRequest(r *http.Request) (auth.Identity, error)
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// Dependencies bundles the collaborators the handlers call.
type Dependencies struct {
	Ranker Ranker
	Scorer Scorer
	Events Enqueuer
	Dedupe dedupe.Deduper
	Auth   Authenticator
	Stats  StatsProvider
}

// Limits bounds the size of read responses.
type Limits struct {
	DefaultLeaderboard int
	MaxLeaderboard     int
	DefaultPageSize    int
	MaxPageSize        int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		DefaultLeaderboard: 10,
		MaxLeaderboard:     100,
		DefaultPageSize:    20,
		MaxPageSize:        100,
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps    Dependencies
	limits  Limits
	limiter *ratelimit.Store
	log     logger.Logger
	reads   singleflight.Group
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:   deps,
		limits: DefaultLimits(),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.handleStats, "stats"))

	mux.HandleFunc("GET /ranking/leaderboard", MetricsMiddleware(s.authed(s.handleLeaderboard), "leaderboard"))
	mux.HandleFunc("GET /ranking/my-position", MetricsMiddleware(s.authed(s.handleMyPosition), "my_position"))
	mux.HandleFunc("GET /ranking/full-ranking", MetricsMiddleware(s.authed(s.handleFullRanking), "full_ranking"))
	mux.HandleFunc("GET /rank/{user_id}", MetricsMiddleware(s.authed(s.handleRank), "rank"))

	mux.HandleFunc("PUT /ranking/update-score", MetricsMiddleware(s.authed(s.limited(s.handleUpdateScore)), "update_score"))
	mux.HandleFunc("POST /ranking/add-points", MetricsMiddleware(s.authed(s.limited(s.handleAddPoints)), "add_points"))
	mux.HandleFunc("POST /events", MetricsMiddleware(s.authed(s.limited(s.handlePostEvent)), "events"))
}

// rateKey buckets authenticated callers by user and everyone else by address.
func rateKey(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return "user:" + id.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
