package dataset

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"oto-insights-go/internal/actionable"
	"oto-insights-go/internal/aggregator"
	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/types"
)

const (
	ownersSheet        = "Owners"
	conversationsSheet = "Conversations"
	actionsSheet       = "Actions"
)

var ownerHeader = []any{"Owner", "Conversations", "Not started", "Processing", "Completed", "Failed", "Points", "Clips", "Completion rate"}

var conversationHeader = []any{"ID", "Owner", "Status", "Inner status", "File", "Points", "Created"}

var actionHeader = []any{"Owner", "Insight", "Action", "Impact"}

func ownerRow(label string, s aggregator.OwnerStats) []any {
	return []any{
		label,
		s.Conversations,
		s.ByStatus[types.StatusNotStarted],
		s.ByStatus[types.StatusProcessing],
		s.ByStatus[types.StatusCompleted],
		s.ByStatus[types.StatusFailed],
		s.Points,
		s.Clips,
		s.CompletionRate,
	}
}

// WriteSummary writes an aggregated report, its action cards and the
// underlying conversation listing to an xlsx workbook at path.
func WriteSummary(path string, r aggregator.Report, cards []actionable.ActionCard, convs []types.Conversation, log *logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	entry := log.Component("dataset.summary").With("path", path)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ownersSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, sheet := range []string{conversationsSheet, actionsSheet} {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("add sheet: %w", err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	rows := [][]any{ownerHeader}
	for _, s := range r.Owners {
		rows = append(rows, ownerRow(s.OwnerID, s))
	}
	rows = append(rows, ownerRow("TOTAL", r.Totals))
	if err := writeRows(f, ownersSheet, rows, bold); err != nil {
		return err
	}

	rows = [][]any{conversationHeader}
	for _, c := range convs {
		rows = append(rows, []any{
			c.ID, c.OwnerID, string(c.Status), c.InnerStatus, c.FileName, c.Points,
			c.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := writeRows(f, conversationsSheet, rows, bold); err != nil {
		return err
	}

	rows = [][]any{actionHeader}
	for _, c := range cards {
		rows = append(rows, []any{c.OwnerID, c.Insight, c.Action, c.Impact})
	}
	if err := writeRows(f, actionsSheet, rows, bold); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		entry.WithError(err).Error("save failed")
		return fmt.Errorf("save %s: %w", path, err)
	}
	entry.WithFields(map[string]interface{}{
		"owners":        len(r.Owners),
		"conversations": len(convs),
		"actions":       len(cards),
	}).Info("summary written")
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}
