package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/scoreboard/internal/domain/model"
)

// handleLeaderboard serves GET /ranking/leaderboard?limit=K. Concurrent
// requests for the same K share one store read, detached from any single
// caller's cancellation.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	k := s.limits.DefaultLeaderboard
	if n, present, ok := queryInt(r, "limit"); present {
		if !ok {
			writeError(w, validation("limit must be a positive integer"))
			return
		}
		if n > s.limits.MaxLeaderboard {
			writeError(w, validation("limit must not exceed %d", s.limits.MaxLeaderboard))
			return
		}
		k = n
	}

	v, err, _ := s.reads.Do("top:"+strconv.Itoa(k), func() (any, error) {
		return s.deps.Ranker.TopK(context.WithoutCancel(r.Context()), k)
	})
	if err != nil {
		s.fail(w, r, "leaderboard", err)
		return
	}
	entries := v.([]model.RankedEntry)
	if entries == nil {
		entries = []model.RankedEntry{}
	}
	writeData(w, http.StatusOK, entries)
}

// handleFullRanking serves GET /ranking/full-ranking?page=&limit=. Missing or
// invalid values fall back to the defaults; limit is capped.
func (s *Server) handleFullRanking(w http.ResponseWriter, r *http.Request) {
	page := 1
	if n, _, ok := queryInt(r, "page"); ok {
		page = n
	}
	size := s.limits.DefaultPageSize
	if n, _, ok := queryInt(r, "limit"); ok {
		size = min(n, s.limits.MaxPageSize)
	}

	res, err := s.deps.Ranker.Page(r.Context(), page, size)
	if err != nil {
		s.fail(w, r, "full_ranking", err)
		return
	}
	writeData(w, http.StatusOK, res)
}
