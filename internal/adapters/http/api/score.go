package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/scoreboard/pkg/metrics"
)

// IdempotencyHeader names the optional replay-protection key on add-points.
const IdempotencyHeader = "Idempotency-Key"

type scoreRequest struct {
	Score json.RawMessage `json:"score"`
}

type pointsRequest struct {
	Points json.RawMessage `json:"points"`
}

type duplicateResponse struct {
	Duplicate bool `json:"duplicate"`
}

// handleUpdateScore serves PUT /ranking/update-score.
func (s *Server) handleUpdateScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	score, err := parseInteger("score", req.Score)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.deps.Scorer.SetScore(r.Context(), caller(r).UserID, score)
	if err != nil {
		s.fail(w, r, "update_score", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// handleAddPoints serves POST /ranking/add-points. A repeated
// Idempotency-Key from the same caller is acknowledged without a second
// increment.
func (s *Server) handleAddPoints(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	points, err := parseInteger("points", req.Points)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := caller(r).UserID

	var key string
	if k := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); k != "" && s.deps.Dedupe != nil {
		key = "points:" + userID + ":" + k
		if s.deps.Dedupe.SeenAndRecord(r.Context(), key) {
			metrics.RecordIdempotentDuplicate("add_points")
			writeData(w, http.StatusOK, duplicateResponse{Duplicate: true})
			return
		}
	}

	res, err := s.deps.Scorer.AddPoints(r.Context(), userID, points)
	if err != nil {
		if key != "" {
			s.deps.Dedupe.Unrecord(r.Context(), key)
		}
		s.fail(w, r, "add_points", err)
		return
	}
	writeData(w, http.StatusOK, res)
}
