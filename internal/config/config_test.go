package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/podium/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.TopN, convey.ShouldEqual, 3)
			convey.So(cfg.ScoreUpdatePolicy, convey.ShouldEqual, "none")
			convey.So(cfg.ObservationQueueSize, convey.ShouldEqual, 1_024)
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.LogSink, convey.ShouldEqual, config.LogSinkMemory)
			convey.So(cfg.WhatsAppMode, convey.ShouldEqual, config.WhatsAppSimulate)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When top_n is zero", func() {
			cfg.TopN = 0
			err := cfg.Validate()

			convey.Convey("Then it should be rejected as invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "top_n")
			})
		})

		convey.Convey("When the postgres store has no DSN", func() {
			cfg.Store = config.StorePostgres
			err := cfg.Validate()

			convey.Convey("Then it should ask for postgres_dsn", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "postgres_dsn")
			})
		})

		convey.Convey("When the mongo sink has no URI", func() {
			cfg.LogSink = config.LogSinkMongo
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the score update policy is unknown", func() {
			cfg.ScoreUpdatePolicy = "sometimes"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the whatsapp mode is unknown", func() {
			cfg.WhatsAppMode = "sms"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the twilio rate limit is zero", func() {
			cfg.TwilioRatePerSecond = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the feed send buffer is zero", func() {
			cfg.FeedSendBuffer = 0
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "feed_send_buffer")
		})
	})
}

func TestConfig_Lists(t *testing.T) {
	convey.Convey("Given comma-separated settings", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When no origins are set", func() {
			convey.Convey("Then the feed keeps its same-origin default", func() {
				convey.So(cfg.AllowedOrigins(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the list has blanks and padding", func() {
			cfg.FeedAllowedOrigins = " https://podium.example ,, * "

			convey.Convey("Then only trimmed items remain", func() {
				convey.So(cfg.AllowedOrigins(), convey.ShouldResemble, []string{"https://podium.example", "*"})
				convey.So(config.SplitList("name, rank_label ,score"), convey.ShouldResemble, []string{"name", "rank_label", "score"})
			})
		})
	})
}
