// Package actionable turns report statistics into short operator action cards.
package actionable

import (
	"fmt"

	"oto-insights-go/internal/aggregator"
	"oto-insights-go/internal/types"
)

const (
	failureThreshold = 0.35
	backlogThreshold = 5
)

type ActionCard struct {
	OwnerID string `json:"owner_id"`
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// Generate returns one card per owner with a high failure rate or a waiting
// backlog, worst failure rate first. With nothing to flag it returns a single
// monitoring card.
func Generate(r aggregator.Report) []ActionCard {
	var cards []ActionCard
	worst := ""
	highest := 0.0
	for _, s := range r.Owners {
		terminal := s.ByStatus[types.StatusCompleted] + s.ByStatus[types.StatusFailed]
		if terminal == 0 {
			continue
		}
		if rate := 1 - s.CompletionRate; rate > highest {
			highest = rate
			worst = s.OwnerID
		}
	}
	if highest >= failureThreshold && worst != "" {
		cards = append(cards, ActionCard{
			OwnerID: worst,
			Insight: fmt.Sprintf("High failure rate for %s (%.0f%%)", worst, highest*100),
			Action:  "Inspect failed conversations, reset them with otoctl reset and rerun",
			Impact:  "Recover points and clips for the owner",
		})
	}
	for _, s := range r.Owners {
		if waiting := s.ByStatus[types.StatusNotStarted]; waiting >= backlogThreshold {
			cards = append(cards, ActionCard{
				OwnerID: s.OwnerID,
				Insight: fmt.Sprintf("%d conversations of %s are waiting", waiting, s.OwnerID),
				Action:  "Trigger processing or raise the worker pool size",
				Impact:  "Shorter time to first analysis",
			})
		}
	}
	if len(cards) == 0 {
		cards = append(cards, ActionCard{
			Insight: "No failure or backlog pattern detected",
			Action:  "Monitor and collect more data",
			Impact:  "Low immediate intervention",
		})
	}
	return cards
}
