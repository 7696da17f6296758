package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/scorepipe/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.OrphanThreshold, convey.ShouldEqual, 5)
				convey.So(cfg.InsertBatchSize, convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SCOREPIPE_ADDR", ":8080")
			_ = os.Setenv("SCOREPIPE_ORPHAN_THRESHOLD", "3")
			_ = os.Setenv("SCOREPIPE_INSERT_BATCH_SIZE", "50")
			_ = os.Setenv("SCOREPIPE_WEBHOOK_URL", "http://hooks.local/tachi")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.OrphanThreshold, convey.ShouldEqual, 3)
				convey.So(cfg.InsertBatchSize, convey.ShouldEqual, 50)
				convey.So(cfg.WebhookURL, convey.ShouldEqual, "http://hooks.local/tachi")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
orphan_threshold: 4
goal_concurrency: 2
catalog_seed: "/srv/catalog.yaml"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SCOREPIPE_CONFIG", tmpFile)
			_ = os.Setenv("SCOREPIPE_ADDR", ":8080") // overrides the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.OrphanThreshold, convey.ShouldEqual, 4)
				convey.So(cfg.GoalConcurrency, convey.ShouldEqual, 2)
				convey.So(cfg.CatalogSeed, convey.ShouldEqual, "/srv/catalog.yaml")
				convey.So(cfg.InsertBatchSize, convey.ShouldEqual, 500) // default
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SCOREPIPE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SCOREPIPE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("SCOREPIPE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "scorepipe-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"SCOREPIPE_CONFIG",
		"SCOREPIPE_ADDR",
		"SCOREPIPE_ORPHAN_THRESHOLD",
		"SCOREPIPE_INSERT_BATCH_SIZE",
		"SCOREPIPE_WEBHOOK_URL",
	} {
		_ = os.Unsetenv(key)
	}
}
