package api

import (
	"github.com/okian/scoreboard/internal/adapters/http/ratelimit"
	"github.com/okian/scoreboard/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithLimits overrides the read limits. Non-positive fields keep their
// defaults.
func WithLimits(l Limits) Option {
	return func(s *Server) {
		if l.DefaultLeaderboard > 0 {
			s.limits.DefaultLeaderboard = l.DefaultLeaderboard
		}
		if l.MaxLeaderboard > 0 {
			s.limits.MaxLeaderboard = l.MaxLeaderboard
		}
		if l.DefaultPageSize > 0 {
			s.limits.DefaultPageSize = l.DefaultPageSize
		}
		if l.MaxPageSize > 0 {
			s.limits.MaxPageSize = l.MaxPageSize
		}
	}
}

// WithRateLimiter limits mutation routes per caller.
func WithRateLimiter(store *ratelimit.Store) Option {
	return func(s *Server) {
		s.limiter = store
	}
}

// WithLogger sets the logger for handler failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}
