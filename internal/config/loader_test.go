package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/podium/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		_ = os.Setenv("PODIUM_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.TopN, convey.ShouldEqual, 3)
				convey.So(cfg.ObservationQueueSize, convey.ShouldEqual, 1_024)
				convey.So(cfg.TwilioTimeoutMS, convey.ShouldEqual, 10_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PODIUM_ADDR", ":8080")
			_ = os.Setenv("PODIUM_TOP_N", "5")
			_ = os.Setenv("PODIUM_SCORE_UPDATE_POLICY", "Boundary")
			_ = os.Setenv("PODIUM_PHONE_PREFIX", "+27")
			_ = os.Setenv("PODIUM_FEED_ALLOWED_ORIGINS", "https://podium.example, https://screen.podium.example")
			_ = os.Setenv("PODIUM_FEED_SEND_BUFFER", "32")
			_ = os.Setenv("PODIUM_TWILIO_TEMPLATE_VARS_DETHRONE", "name,new_name,rank_label")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.TopN, convey.ShouldEqual, 5)
				convey.So(cfg.ScoreUpdatePolicy, convey.ShouldEqual, "boundary")
				convey.So(cfg.PhonePrefix, convey.ShouldEqual, "+27")
				convey.So(cfg.AllowedOrigins(), convey.ShouldResemble, []string{"https://podium.example", "https://screen.podium.example"})
				convey.So(cfg.FeedSendBuffer, convey.ShouldEqual, 32)
				convey.So(config.SplitList(cfg.TemplateVarsDethrone), convey.ShouldResemble, []string{"name", "new_name", "rank_label"})
			})
		})

		convey.Convey("When the Twilio variables of the hosted deployment are set", func() {
			_ = os.Setenv("TWILIO_ACCOUNT_SID", "AC123")
			_ = os.Setenv("TWILIO_AUTH_TOKEN", "secret")
			_ = os.Setenv("TWILIO_WHATSAPP_NUMBER", "whatsapp:+14155238886")
			_ = os.Setenv("TWILIO_TEMPLATE_SID_ENTRY_SUCCESS", "HXsuccess")
			_ = os.Setenv("TWILIO_TEMPLATE_SID_LEADERBOARD", "HXleader")

			cfg, err := config.Load(ctx)

			convey.Convey("Then they should land on the twilio keys", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.TwilioAccountSID, convey.ShouldEqual, "AC123")
				convey.So(cfg.TwilioAuthToken, convey.ShouldEqual, "secret")
				convey.So(cfg.TwilioWhatsAppNumber, convey.ShouldEqual, "whatsapp:+14155238886")
				convey.So(cfg.TemplateEntrySuccess, convey.ShouldEqual, "HXsuccess")
				convey.So(cfg.TemplateDethrone, convey.ShouldEqual, "HXleader")
			})

			convey.Convey("And a PODIUM_ variable should win over them", func() {
				_ = os.Setenv("PODIUM_TWILIO_AUTH_TOKEN", "override")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.TwilioAuthToken, convey.ShouldEqual, "override")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
top_n: 10
queue_size: 64
log_sink: sqlite
sqlite_path: /tmp/podium-test.db
`)
			_ = os.Setenv("PODIUM_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.TopN, convey.ShouldEqual, 10)
				convey.So(cfg.ObservationQueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.LogSink, convey.ShouldEqual, config.LogSinkSQLite)
			})

			convey.Convey("And environment variables should override file values", func() {
				_ = os.Setenv("PODIUM_TOP_N", "4")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.TopN, convey.ShouldEqual, 4)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			})
		})

		convey.Convey("When a .env file is present", func() {
			dotenv := filepath.Join(t.TempDir(), "podium.env")
			convey.So(os.WriteFile(dotenv, []byte("PODIUM_EVENT_ID=spring-cup\nPODIUM_TOP_N=7\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("PODIUM_ENV_FILE", dotenv)
			_ = os.Setenv("PODIUM_TOP_N", "2")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should fill unset variables only", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.EventID, convey.ShouldEqual, "spring-cup")
				convey.So(cfg.TopN, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the YAML file does not exist", func() {
			_ = os.Setenv("PODIUM_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should fail to load", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with YAML file containing empty values", func() {
			tmpFile := createTempConfigFile(t, `
addr: ""
top_n: 3
`)
			_ = os.Setenv("PODIUM_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return validation error for empty addr", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"PODIUM_CONFIG",
		"PODIUM_ENV_FILE",
		"PODIUM_ADDR",
		"PODIUM_EVENT_ID",
		"PODIUM_TOP_N",
		"PODIUM_SCORE_UPDATE_POLICY",
		"PODIUM_PHONE_PREFIX",
		"PODIUM_FEED_ALLOWED_ORIGINS",
		"PODIUM_FEED_SEND_BUFFER",
		"PODIUM_TWILIO_TEMPLATE_VARS_DETHRONE",
		"PODIUM_TWILIO_AUTH_TOKEN",
		"TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN",
		"TWILIO_WHATSAPP_NUMBER",
		"TWILIO_TEMPLATE_SID_ENTRY_SUCCESS",
		"TWILIO_TEMPLATE_SID_LEADERBOARD",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "podium-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
