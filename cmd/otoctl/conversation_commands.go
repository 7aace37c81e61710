package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"oto-insights-go/internal/app"
	"oto-insights-go/internal/pipeline"
	"oto-insights-go/internal/services"
	"oto-insights-go/internal/store"
	"oto-insights-go/internal/types"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <conversation-id>...",
		Short: "Run the full pipeline for one or more conversations in the foreground",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				var errs []error
				for _, id := range args {
					st, err := a.Dispatcher.Run(cmd.Context(), id)
					if err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", id, orUnknown(st), services.Kind(err))
						errs = append(errs, fmt.Errorf("%s: %w", id, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, st)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newStageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <conversation-id> <stage>",
		Short: "Replay a single pipeline stage",
		Long:  fmt.Sprintf("Replay a single pipeline stage. Stages: %v", pipeline.Stages),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			stage, err := pipeline.ParseStage(args[1])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.App) error {
				var res pipeline.StageResult
				err := a.Dispatcher.Exclusive(cmd.Context(), id, func(ctx context.Context) error {
					var runErr error
					res, runErr = a.Pipeline.RunStage(ctx, id, stage)
					return runErr
				})
				if err != nil {
					return fmt.Errorf("stage %s: %w", stage, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s finished in %s\n", id, stage, res.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <conversation-id>",
		Short: "Move a failed conversation back to not_started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				conv, err := a.Store.ResetConversation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", conv.ID, conv.Status)
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		owner    string
		statusIn string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List conversations and their processing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.ConversationFilter{OwnerID: owner, Limit: limit}
			if statusIn != "" {
				filter.Status = types.Status(statusIn)
				if !filter.Status.Valid() {
					return fmt.Errorf("unknown status %q", statusIn)
				}
			}
			return ctx.withApp(cmd, func(a *app.App) error {
				convs, err := a.Store.ListConversations(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					if convs == nil {
						convs = []types.Conversation{}
					}
					return writeJSON(cmd, convs)
				}
				if len(convs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No conversations")
					return nil
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(convs))
				for _, c := range convs {
					rows = append(rows, []string{
						c.ID,
						c.OwnerID,
						statusText(c.Status, colorize),
						c.InnerStatus,
						strconv.FormatFloat(c.Points, 'f', 1, 64),
						c.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Owner", "Status", "Stage", "Points", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only conversations of this owner")
	cmd.Flags().StringVar(&statusIn, "status", "", "Only conversations in this status (not_started, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of conversations (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func orUnknown(s types.Status) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}
