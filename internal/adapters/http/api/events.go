package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/metrics"
)

// eventRequest is the body of POST /events.
type eventRequest struct {
	EventID string          `json:"event_id"`
	UserID  string          `json:"user_id"`
	Points  json.RawMessage `json:"points"`
}

func (e eventRequest) award(now time.Time) (model.PointsAward, error) {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return model.PointsAward{}, validation("missing event_id")
	case strings.TrimSpace(e.UserID) == "":
		return model.PointsAward{}, validation("missing user_id")
	}
	points, err := parseInteger("points", e.Points)
	if err != nil {
		return model.PointsAward{}, err
	}
	if points <= 0 {
		return model.PointsAward{}, validation("points must be a positive integer")
	}
	return model.PointsAward{
		EventID:    e.EventID,
		UserID:     e.UserID,
		Points:     points,
		ReceivedAt: now,
	}, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// handlePostEvent serves POST /events. Only service callers may post awards.
// The event id is recorded before enqueueing and released again when the
// queue refuses the award or a worker hits a storage failure, so the sender
// can retry.
func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	if !caller(r).IsService() {
		writeError(w, fmt.Errorf("%w: service role required", ErrForbidden))
		return
	}
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	award, err := req.award(time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	key := award.DedupeKey()
	if s.deps.Dedupe != nil && s.deps.Dedupe.SeenAndRecord(r.Context(), key) {
		metrics.RecordIdempotentDuplicate("events")
		writeData(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if err := s.deps.Events.Enqueue(r.Context(), award); err != nil {
		if s.deps.Dedupe != nil {
			s.deps.Dedupe.Unrecord(r.Context(), key)
		}
		s.fail(w, r, "events", err)
		return
	}
	writeData(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
