package config_test

import (
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/scoreboard/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.DefaultLeaderboardLimit, convey.ShouldEqual, 10)
			convey.So(cfg.DefaultPageSize, convey.ShouldEqual, 20)
			convey.So(cfg.MaxPageSize, convey.ShouldEqual, 100)
		})

		convey.Convey("Then it is invalid until a secret is set", func() {
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			cfg.JWTSecret = "s"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given invalid settings", t, func() {
		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"unknown driver", func(c *config.Config) { c.StoreDriver = "mongo" }},
			{"sqlite without path", func(c *config.Config) { c.StoreDriver = config.DriverSQLite; c.SQLitePath = "" }},
			{"redis without addr", func(c *config.Config) { c.StoreDriver = config.DriverRedis; c.RedisAddr = "" }},
			{"zero page size", func(c *config.Config) { c.DefaultPageSize = 0 }},
			{"default above max", func(c *config.Config) { c.DefaultLeaderboardLimit = 500 }},
			{"no workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }},
		{"zero metrics interval", func(c *config.Config) { c.MetricsInterval = 0 }},
		{"negative seed", func(c *config.Config) { c.SeedUsers = -1 }},
		}
		for _, tc := range cases {
			convey.Convey("Then validation rejects "+tc.name, func() {
				cfg := config.New()
				cfg.JWTSecret = "s"
				tc.mutate(cfg)
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
