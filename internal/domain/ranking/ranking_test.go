package ranking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ranking"
)

func TestTieBreakByCreation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() repository.Store) {
		Convey("Given three users scored 300, 300, 150 in creation order", t, func() {
			store := open()
			seed(t, store, []string{"zed", "amy", "bob"}, []int64{300, 300, 150})
			q := ranking.NewQuery(store)
			ctx := context.Background()

			Convey("TopK(3) puts the earlier 300 first", func() {
				top, err := q.TopK(ctx, 3)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 3)
				So(top[0].UserID, ShouldEqual, "zed")
				So(top[1].UserID, ShouldEqual, "amy")
				So(top[2].UserID, ShouldEqual, "bob")
				for i, e := range top {
					So(e.Position, ShouldEqual, i+1)
				}
			})

			Convey("RankOf agrees with TopK for every user", func() {
				for i, id := range []string{"zed", "amy", "bob"} {
					r, err := q.RankOf(ctx, id)
					So(err, ShouldBeNil)
					So(r.Position, ShouldEqual, i+1)
					So(r.TotalUsers, ShouldEqual, 3)
					So(r.User.UserID, ShouldEqual, id)
				}
			})

			Convey("TopK larger than the population returns everyone", func() {
				top, err := q.TopK(ctx, 50)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 3)
			})

			Convey("TopK below 1 is a validation error", func() {
				_, err := q.TopK(ctx, 0)
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			})
		})
	})
}

func TestPaginationBoundaries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() repository.Store) {
		Convey("Given 45 users", t, func() {
			store := open()
			ids := make([]string, 45)
			scores := make([]int64, 45)
			for i := range ids {
				ids[i] = fmt.Sprintf("user-%02d", i)
				scores[i] = int64(i % 7)
			}
			seed(t, store, ids, scores)
			q := ranking.NewQuery(store)
			ctx := context.Background()

			Convey("Page 1 of size 20 is full with a next page", func() {
				p, err := q.Page(ctx, 1, 20)
				So(err, ShouldBeNil)
				So(p.Users, ShouldHaveLength, 20)
				So(p.Pagination, ShouldResemble, ranking.Pagination{
					CurrentPage: 1, TotalPages: 3, TotalUsers: 45, PageSize: 20,
					HasNextPage: true, HasPrevPage: false,
				})
				So(p.Users[0].Position, ShouldEqual, 1)
			})

			Convey("Page 3 holds the last five", func() {
				p, err := q.Page(ctx, 3, 20)
				So(err, ShouldBeNil)
				So(p.Users, ShouldHaveLength, 5)
				So(p.Users[0].Position, ShouldEqual, 41)
				So(p.Pagination.HasNextPage, ShouldBeFalse)
				So(p.Pagination.HasPrevPage, ShouldBeTrue)
			})

			Convey("Page 4 is empty but successful", func() {
				p, err := q.Page(ctx, 4, 20)
				So(err, ShouldBeNil)
				So(p.Users, ShouldBeEmpty)
				So(p.Pagination.TotalPages, ShouldEqual, 3)
				So(p.Pagination.TotalUsers, ShouldEqual, 45)
			})

			Convey("Non-positive arguments clamp to 1", func() {
				p, err := q.Page(ctx, 0, -5)
				So(err, ShouldBeNil)
				So(p.Users, ShouldHaveLength, 1)
				So(p.Pagination.CurrentPage, ShouldEqual, 1)
				So(p.Pagination.PageSize, ShouldEqual, 1)
				So(p.Pagination.TotalPages, ShouldEqual, 45)
			})

			Convey("TopK is a prefix of the first page", func() {
				top, err := q.TopK(ctx, 10)
				So(err, ShouldBeNil)
				p, err := q.Page(ctx, 1, 10)
				So(err, ShouldBeNil)
				So(top, ShouldResemble, p.Users)
			})

			Convey("RankOf reproduces every page position", func() {
				for page := 1; page <= 3; page++ {
					p, err := q.Page(ctx, page, 20)
					So(err, ShouldBeNil)
					for _, e := range p.Users {
						r, err := q.RankOf(ctx, e.UserID)
						So(err, ShouldBeNil)
						So(r.Position, ShouldEqual, e.Position)
					}
				}
			})

			Convey("Reads are repeatable without writes", func() {
				a, err := q.Page(ctx, 2, 20)
				So(err, ShouldBeNil)
				b, err := q.Page(ctx, 2, 20)
				So(err, ShouldBeNil)
				So(a, ShouldResemble, b)
			})

			Convey("The full-scan path matches the indexed path", func() {
				scan := ranking.NewQuery(listOnly{Store: store})
				for _, id := range ids {
					want, err := q.RankOf(ctx, id)
					So(err, ShouldBeNil)
					got, err := scan.RankOf(ctx, id)
					So(err, ShouldBeNil)
					So(got, ShouldResemble, want)
				}
			})
		})
	})
}

func TestMutations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() repository.Store) {
		Convey("Given a small leaderboard", t, func() {
			store := open()
			seed(t, store, []string{"a", "b", "c"}, []int64{100, 50, 10})
			q := ranking.NewQuery(store)
			m := ranking.NewMutator(store, q)
			ctx := context.Background()

			Convey("AddPoints increments and reports the new rank", func() {
				res, err := m.AddPoints(ctx, "c", 95)
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 105)
				So(res.PointsAdded, ShouldEqual, 95)
				So(res.Position, ShouldEqual, 1)
				So(res.TotalUsers, ShouldEqual, 3)
				So(res.UpdatedAt.After(res.CreatedAt), ShouldBeTrue)
			})

			Convey("SetScore overwrites and reports the new rank", func() {
				res, err := m.SetScore(ctx, "a", 0)
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 0)
				So(res.Position, ShouldEqual, 3)
				So(res.PointsAdded, ShouldEqual, 0)
			})

			Convey("Non-positive points are rejected and nothing changes", func() {
				for _, d := range []int64{0, -10} {
					_, err := m.AddPoints(ctx, "b", d)
					So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				}
				u, err := store.Get(ctx, "b")
				So(err, ShouldBeNil)
				So(u.Score, ShouldEqual, 50)
			})

			Convey("Negative scores are rejected", func() {
				_, err := m.SetScore(ctx, "b", -1)
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(ranking.Kind(err), ShouldEqual, ranking.KindValidation)
			})

			Convey("Unknown users are NotFound and the store is unchanged", func() {
				before, err := q.Page(ctx, 1, 10)
				So(err, ShouldBeNil)

				_, err = m.AddPoints(ctx, "ghost", 5)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				_, err = m.SetScore(ctx, "ghost", 5)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(ranking.Kind(err), ShouldEqual, ranking.KindNotFound)

				after, err := q.Page(ctx, 1, 10)
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)

				_, err = q.RankOf(ctx, "ghost")
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})

			Convey("Two adds land on the same score as one add of their sum", func() {
				for _, id := range []string{"b", "c"} {
					_, err := m.SetScore(ctx, id, 30)
					So(err, ShouldBeNil)
				}
				_, err := m.AddPoints(ctx, "b", 12)
				So(err, ShouldBeNil)
				split, err := m.AddPoints(ctx, "b", 8)
				So(err, ShouldBeNil)
				whole, err := m.AddPoints(ctx, "c", 12+8)
				So(err, ShouldBeNil)

				So(split.Score, ShouldEqual, whole.Score)
				So(split.Score, ShouldEqual, 50)
				So(whole.PointsAdded, ShouldEqual, 20)

				b, err := store.Get(ctx, "b")
				So(err, ShouldBeNil)
				c, err := store.Get(ctx, "c")
				So(err, ShouldBeNil)
				So(b.Score, ShouldEqual, c.Score)
			})

			Convey("Score after a mutation sequence equals last set plus later adds", func() {
				_, err := m.AddPoints(ctx, "b", 7)
				So(err, ShouldBeNil)
				_, err = m.SetScore(ctx, "b", 20)
				So(err, ShouldBeNil)
				_, err = m.AddPoints(ctx, "b", 3)
				So(err, ShouldBeNil)
				res, err := m.AddPoints(ctx, "b", 4)
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 27)
			})
		})
	})
}

func TestConcurrentAddPoints(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() repository.Store) {
		Convey("Given one user receiving concurrent increments", t, func() {
			store := open()
			seed(t, store, []string{"hot", "cold"}, []int64{0, 1})
			m := ranking.NewMutator(store, ranking.NewQuery(store))
			ctx := context.Background()

			const workers, perWorker = 6, 15
			errs := make(chan error, workers*perWorker)
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(delta int64) {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						if _, err := m.AddPoints(ctx, "hot", delta); err != nil {
							errs <- err
						}
					}
				}(int64(w + 1))
			}
			wg.Wait()
			close(errs)

			Convey("No increment is lost", func() {
				So(len(errs), ShouldEqual, 0)
				u, err := store.Get(ctx, "hot")
				So(err, ShouldBeNil)
				// sum of (1..workers) * perWorker
				So(u.Score, ShouldEqual, int64(workers*(workers+1)/2*perWorker))
			})
		})
	})
}

func TestValidationShortCircuits(t *testing.T) {
	Convey("Given a store that counts calls", t, func() {
		inner := repository.NewTreapStore(context.Background())
		defer inner.Close()
		store := &countingStore{Store: inner}
		m := ranking.NewMutator(store, ranking.NewQuery(store))
		ctx := context.Background()

		Convey("Invalid input never reaches the store", func() {
			_, err := m.AddPoints(ctx, "u", 0)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			_, err = m.SetScore(ctx, "u", -3)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			_, err = m.AddPoints(ctx, "  ", 5)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			So(store.calls.Load(), ShouldEqual, 0)
		})
	})
}

func TestStorageFailures(t *testing.T) {
	Convey("Given a store that always fails", t, func() {
		q := ranking.NewQuery(brokenStore{})
		m := ranking.NewMutator(brokenStore{}, q)
		ctx := context.Background()

		Convey("Queries and mutations surface StorageError", func() {
			_, err := q.TopK(ctx, 5)
			So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
			_, err = q.Page(ctx, 1, 5)
			So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
			_, err = q.RankOf(ctx, "x")
			So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
			_, err = m.AddPoints(ctx, "x", 1)
			So(ranking.Kind(err), ShouldEqual, ranking.KindStorage)
			_, err = m.SetScore(ctx, "x", 1)
			So(errors.Is(err, errDisk), ShouldBeTrue)
		})
	})
}
