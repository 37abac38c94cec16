package loadgen

import (
	"errors"
	"fmt"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ordering"
)

// verifyAdditivity checks that every user's score moved by exactly the sum of
// the awards the service acknowledged.
func verifyAdditivity(before, after, added map[string]int64) error {
	var errs []error
	for id, want := range added {
		b, ok := before[id]
		if !ok {
			errs = append(errs, fmt.Errorf("user %s was not present before the run", id))
			continue
		}
		a, ok := after[id]
		if !ok {
			errs = append(errs, fmt.Errorf("user %s disappeared during the run", id))
			continue
		}
		if a-b != want {
			errs = append(errs, fmt.Errorf("user %s: score moved by %d, acknowledged %d", id, a-b, want))
		}
	}
	for id, b := range before {
		if _, touched := added[id]; touched {
			continue
		}
		if a := after[id]; a != b {
			errs = append(errs, fmt.Errorf("user %s: untouched score changed from %d to %d", id, b, a))
		}
	}
	return errors.Join(errs...)
}

// verifyOrdering checks that entries are numbered 1..n and sorted by the
// ranking order.
func verifyOrdering(entries []model.RankedEntry) error {
	for i, e := range entries {
		if e.Position != i+1 {
			return fmt.Errorf("entry %d (%s) has position %d", i, e.UserID, e.Position)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if ordering.Above(keyOf(e), keyOf(prev)) {
			return fmt.Errorf("entry %s at position %d ranks above %s at position %d",
				e.UserID, e.Position, prev.UserID, prev.Position)
		}
	}
	return nil
}

// verifyTopPrefix checks that the leaderboard equals the first page of the
// full ranking.
func verifyTopPrefix(top, first []model.RankedEntry) error {
	if len(top) != len(first) {
		return fmt.Errorf("leaderboard has %d entries, first page has %d", len(top), len(first))
	}
	for i := range top {
		if top[i].UserID != first[i].UserID || top[i].Position != first[i].Position || top[i].Score != first[i].Score {
			return fmt.Errorf("leaderboard entry %d is %s@%d, first page has %s@%d",
				i, top[i].UserID, top[i].Position, first[i].UserID, first[i].Position)
		}
	}
	return nil
}

// verifyRank checks a RankOf answer against the listing.
func verifyRank(r rank, listing []model.RankedEntry) error {
	if r.TotalUsers != len(listing) {
		return fmt.Errorf("rank of %s reports %d users, listing has %d", r.User.UserID, r.TotalUsers, len(listing))
	}
	if r.Position < 1 || r.Position > len(listing) {
		return fmt.Errorf("rank of %s is %d, outside 1..%d", r.User.UserID, r.Position, len(listing))
	}
	if got := listing[r.Position-1]; got.UserID != r.User.UserID {
		return fmt.Errorf("rank of %s is %d, listing has %s there", r.User.UserID, r.Position, got.UserID)
	}
	return nil
}

func keyOf(e model.RankedEntry) ordering.Key {
	return ordering.KeyOf(model.UserScore{UserID: e.UserID, Score: e.Score, CreatedAt: e.CreatedAt})
}
