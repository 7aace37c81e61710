package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"oto-insights-go/internal/app"
)

func newTopicsCommand(ctx *commandContext) *cobra.Command {
	topics := &cobra.Command{
		Use:   "topics",
		Short: "Topic extraction maintenance",
	}
	topics.AddCommand(&cobra.Command{
		Use:   "backfill",
		Short: "Extract topics for completed conversations that have none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				n, err := a.Pipeline.BackfillTopics(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "topics extracted for %d conversations\n", n)
				return err
			})
		},
	})
	return topics
}
