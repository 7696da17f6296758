package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/scorepipe/internal/adapters/repository"
	"github.com/okian/scorepipe/internal/domain/types"
)

func newDeorphanCmd(c *cli) *cobra.Command {
	var filter repository.OrphanFilter
	var game string

	cmd := &cobra.Command{
		Use:   "deorphan [--game <game>] [--user <id>] [--fingerprint <fp>]",
		Short: "Replay stored orphan scores against the current catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Game = types.Game(game)
			return c.runDeorphan(cmd.Context(), cmd.OutOrStdout(), filter)
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "only replay orphans of this game")
	cmd.Flags().StringVar(&filter.UserID, "user", "", "only replay orphans of this user")
	cmd.Flags().StringVar(&filter.Fingerprint, "fingerprint", "", "only replay orphans of this chart fingerprint")
	return cmd
}

func (c *cli) runDeorphan(ctx context.Context, out io.Writer, filter repository.OrphanFilter) error {
	svc, err := c.start(ctx)
	if err != nil {
		return err
	}
	defer c.stop(ctx, svc)

	stats, err := svc.Deorphan(ctx, filter)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%d resolved, %d waiting, %d removed\n", stats.Success, stats.Failed, stats.Removed)
	return err
}
