package model

import "time"

// PointsAward is an asynchronous request to add points to a user,
// submitted by a trusted service and processed by the worker pool.
type PointsAward struct {
	EventID    string    // unique id for idempotency
	UserID     string    // user receiving the points
	Points     int64     // strictly positive increment
	ReceivedAt time.Time // when the API accepted the award
}

// DedupeKey is the idempotency key recorded for the award's event id.
func (a PointsAward) DedupeKey() string { return "event:" + a.EventID }
