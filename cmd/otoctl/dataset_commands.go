package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"oto-insights-go/internal/actionable"
	"oto-insights-go/internal/aggregator"
	"oto-insights-go/internal/app"
	"oto-insights-go/internal/dataset"
	"oto-insights-go/internal/store"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <manifest.xlsx>",
		Short: "Register conversations listed in an xlsx manifest",
		Long: "Register conversations listed in an xlsx manifest. The first sheet needs an owner (or user) " +
			"column and a file (or audio/path) column; local files are uploaded, anything else is taken as a storage key.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := dataset.Load(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.App) error {
				res, err := a.Importer().Import(cmd.Context(), rows)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, c := range res.Created {
					fmt.Fprintf(out, "created %s (%s, %s)\n", c.ID, c.OwnerID, c.FileName)
				}
				failed := make([]int, 0, len(res.Failed))
				for row := range res.Failed {
					failed = append(failed, row)
				}
				sort.Ints(failed)
				for _, row := range failed {
					fmt.Fprintf(out, "row %d rejected: %v\n", row, res.Failed[row])
				}
				if len(failed) > 0 {
					return fmt.Errorf("%d of %d rows rejected", len(failed), len(rows))
				}
				return nil
			})
		},
	}
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "report <out.xlsx>",
		Short: "Write per-owner processing statistics to an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				convs, err := a.Store.ListConversations(cmd.Context(), store.ConversationFilter{OwnerID: owner})
				if err != nil {
					return err
				}
				clips := make(map[string]int, len(convs))
				for _, c := range convs {
					list, err := a.Store.ListClips(cmd.Context(), c.ID)
					if err != nil {
						return err
					}
					clips[c.ID] = len(list)
				}
				report := aggregator.Aggregate(convs, clips)
				cards := actionable.Generate(report)
				if err := dataset.WriteSummary(args[0], report, cards, convs, a.Log); err != nil {
					return err
				}

				rows := make([][]string, 0, len(report.Owners)+1)
				for _, s := range append(report.Owners, report.Totals) {
					label := s.OwnerID
					if label == "" {
						label = "TOTAL"
					}
					rows = append(rows, []string{
						label,
						strconv.Itoa(s.Conversations),
						strconv.FormatFloat(s.Points, 'f', 1, 64),
						strconv.Itoa(s.Clips),
						strconv.FormatFloat(s.CompletionRate*100, 'f', 0, 64) + "%",
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Owner", "Conversations", "Points", "Clips", "Completed"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				for _, c := range cards {
					fmt.Fprintf(cmd.OutOrStdout(), "- %s: %s\n", c.Insight, c.Action)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only report on this owner")
	return cmd
}
