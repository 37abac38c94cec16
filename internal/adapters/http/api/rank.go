package api

import (
	"net/http"

	"github.com/okian/scoreboard/pkg/logger"
)

// handleMyPosition serves GET /ranking/my-position for the caller.
func (s *Server) handleMyPosition(w http.ResponseWriter, r *http.Request) {
	s.writeRank(w, r, "my_position", caller(r).UserID)
}

// handleRank serves GET /rank/{user_id}.
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	s.writeRank(w, r, "rank", r.PathValue("user_id"))
}

func (s *Server) writeRank(w http.ResponseWriter, r *http.Request, op, userID string) {
	res, err := s.deps.Ranker.RankOf(r.Context(), userID)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// fail writes err and logs it when it is a server-side failure.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if status, _ := classify(err); status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	writeError(w, err)
}
