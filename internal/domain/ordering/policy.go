// Package ordering defines the single comparison rule every ranking view uses.
//
// Ordering: score DESC, then createdAt ASC, then userID ASC. The three keys
// together form a strict total order, so every user has exactly one position.
package ordering

import (
	"slices"
	"strings"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Key holds the fields the policy compares.
type Key struct {
	Score     int64
	CreatedAt time.Time
	UserID    string
}

// KeyOf extracts the ordering key of u.
func KeyOf(u model.UserScore) Key {
	return Key{Score: u.Score, CreatedAt: u.CreatedAt, UserID: u.UserID}
}

// Compare returns -1 if a ranks strictly above b, +1 if below, 0 if equal.
func Compare(a, b Key) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.UserID, b.UserID)
}

// Above reports whether a ranks strictly above b.
func Above(a, b Key) bool {
	return Compare(a, b) < 0
}

// Less reports whether user a ranks strictly above user b.
func Less(a, b model.UserScore) bool {
	return Above(KeyOf(a), KeyOf(b))
}

// Sort orders users in place from first to last position.
func Sort(users []model.UserScore) {
	slices.SortFunc(users, func(a, b model.UserScore) int {
		return Compare(KeyOf(a), KeyOf(b))
	})
}

// CountAbove returns the number of users ranking strictly above k.
func CountAbove(users []model.UserScore, k Key) int {
	n := 0
	for _, u := range users {
		if Above(KeyOf(u), k) {
			n++
		}
	}
	return n
}
