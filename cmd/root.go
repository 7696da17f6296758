package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	service "github.com/okian/scorepipe/internal/app"
	"github.com/okian/scorepipe/internal/config"
	"github.com/okian/scorepipe/pkg/logger"
)

// cli carries what the persistent pre-run prepared for the subcommands.
type cli struct {
	cfg    *config.Config
	logger logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "scorepipe",
		Short:         "Rhythm game score import pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}
	cmd.AddCommand(newServeCmd(c))
	cmd.AddCommand(newImportCmd(c))
	cmd.AddCommand(newDeorphanCmd(c))
	return cmd
}

func (c *cli) setup(ctx context.Context) error {
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return err
	}
	c.logger = logger.Get()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.logger.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

// start builds and starts a service from the loaded configuration.
func (c *cli) start(ctx context.Context) (*service.Service, error) {
	svc := service.New(
		service.WithConfig(c.cfg),
		service.WithLogger(c.logger),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start service: %w", err)
	}
	return svc, nil
}

// stop shuts svc down even when ctx is already cancelled.
func (c *cli) stop(ctx context.Context, svc *service.Service) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := svc.Stop(shutdownCtx); err != nil {
		c.logger.Error(ctx, "service shutdown failed", logger.Error(err))
	}
}
