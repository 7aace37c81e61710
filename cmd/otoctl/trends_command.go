package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"oto-insights-go/internal/app"
	"oto-insights-go/internal/types"
)

func newTrendsCommand(ctx *commandContext) *cobra.Command {
	trends := &cobra.Command{
		Use:   "trends",
		Short: "Cross-conversation trends",
	}
	trends.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Cluster recent topics and replace the stored trends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				res, err := a.Trends.Build(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d topics, %d clusters: %d trends, %d micro trends\n",
					res.Topics, res.Clusters, res.Trends, res.MicroTrends)
				return nil
			})
		},
	})

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Show the stored trends and micro trends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				trends, err := a.Store.ListTrends(cmd.Context())
				if err != nil {
					return err
				}
				micro, err := a.Store.ListMicroTrends(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Trends      []types.Trend      `json:"trends"`
						MicroTrends []types.MicroTrend `json:"micro_trends"`
					}{trends, micro})
				}
				if len(trends)+len(micro) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No trends")
					return nil
				}
				rows := make([][]string, 0, len(trends)+len(micro))
				for _, t := range trends {
					rows = append(rows, trendRow("trend", t.Title, t.Volume, t.PositiveSentiment, t.NegativeSentiment))
				}
				for _, t := range micro {
					rows = append(rows, trendRow("micro", t.Title, t.Volume, t.PositiveSentiment, t.NegativeSentiment))
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Kind", "Title", "Volume", "Positive", "Negative"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	trends.AddCommand(list)
	return trends
}

func trendRow(kind, title string, volume, positive, negative float64) []string {
	return []string{
		kind,
		title,
		strconv.FormatFloat(volume, 'f', 0, 64),
		strconv.FormatFloat(positive, 'f', 2, 64),
		strconv.FormatFloat(negative, 'f', 2, 64),
	}
}
