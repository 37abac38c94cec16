// Package model contains domain models passed between layers.
package model

import "time"

// UserScore is the single ranked row held for a user.
type UserScore struct {
	UserID      string
	DisplayName string
	Score       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Projection is the read-only view of a user returned by the API.
type Projection struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Score       int64     `json:"score"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Project returns the API projection of u.
func (u UserScore) Project() Projection {
	return Projection{
		UserID:      u.UserID,
		DisplayName: u.DisplayName,
		Score:       u.Score,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// RankedEntry is a row of the ordering annotated with its 1-based position.
type RankedEntry struct {
	Position    int       `json:"position"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Score       int64     `json:"score"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewRankedEntry annotates u with position.
func NewRankedEntry(position int, u UserScore) RankedEntry {
	return RankedEntry{
		Position:    position,
		UserID:      u.UserID,
		DisplayName: u.DisplayName,
		Score:       u.Score,
		CreatedAt:   u.CreatedAt,
	}
}
