package loadgen_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scoreboard/internal/adapters/repository"
	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/internal/loadgen"
)

const secret = "loadgen-secret"

func TestRun(t *testing.T) {
	Convey("Given a running service with provisioned users", t, func() {
		ctx := context.Background()
		store := repository.NewTreapStore(ctx)
		for i := 0; i < 25; i++ {
			_, err := store.Create(ctx, fmt.Sprintf("user-%02d", i), fmt.Sprintf("User %d", i))
			So(err, ShouldBeNil)
		}

		cfg := config.New()
		cfg.JWTSecret = secret
		cfg.MutationRPS = 0
		cfg.MaxPageSize = 10
		svc := service.New(cfg, service.WithStore(store))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		h, err := svc.Handler()
		So(err, ShouldBeNil)
		srv := httptest.NewServer(h)
		defer srv.Close()

		Convey("When a load run sends awards and replays", func() {
			report, err := loadgen.Run(ctx, loadgen.Config{
				BaseURL:  srv.URL,
				Secret:   secret,
				Requests: 300,
				Replays:  40,
				Workers:  8,
				TopK:     5,
			}, nil)

			Convey("Then every check passes and replays are deduplicated", func() {
				So(err, ShouldBeNil)
				So(report.Users, ShouldEqual, 25)
				So(report.Sent, ShouldEqual, 340)
				So(report.Applied, ShouldEqual, 300)
				So(report.Duplicates, ShouldEqual, 40)
				So(report.Failed, ShouldEqual, 0)
			})
		})

		Convey("When the secret is wrong", func() {
			_, err := loadgen.Run(ctx, loadgen.Config{BaseURL: srv.URL, Secret: "nope"}, nil)

			Convey("Then discovery fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
