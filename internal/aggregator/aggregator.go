// Package aggregator rolls conversations up into per-owner statistics.
package aggregator

import (
	"math"
	"sort"

	"oto-insights-go/internal/types"
)

type OwnerStats struct {
	OwnerID        string               `json:"owner_id"`
	Conversations  int                  `json:"conversations"`
	ByStatus       map[types.Status]int `json:"by_status"`
	Points         float64              `json:"points"`
	Clips          int                  `json:"clips"`
	CompletionRate float64              `json:"completion_rate"`
}

type Report struct {
	Owners []OwnerStats `json:"owners"`
	Totals OwnerStats   `json:"totals"`
}

// Aggregate groups convs by owner. clips maps conversation id to the number
// of clips it produced. CompletionRate is completed over terminal
// conversations.
func Aggregate(convs []types.Conversation, clips map[string]int) Report {
	byOwner := map[string]*OwnerStats{}
	totals := OwnerStats{ByStatus: map[types.Status]int{}}
	for _, c := range convs {
		s, ok := byOwner[c.OwnerID]
		if !ok {
			s = &OwnerStats{OwnerID: c.OwnerID, ByStatus: map[types.Status]int{}}
			byOwner[c.OwnerID] = s
		}
		for _, st := range []*OwnerStats{s, &totals} {
			st.Conversations++
			st.ByStatus[c.Status]++
			st.Points += c.Points
			st.Clips += clips[c.ID]
		}
	}

	out := Report{Owners: make([]OwnerStats, 0, len(byOwner))}
	for _, s := range byOwner {
		finish(s)
		out.Owners = append(out.Owners, *s)
	}
	sort.Slice(out.Owners, func(i, j int) bool { return out.Owners[i].OwnerID < out.Owners[j].OwnerID })
	finish(&totals)
	out.Totals = totals
	return out
}

func finish(s *OwnerStats) {
	s.Points = math.Round(s.Points*10) / 10
	terminal := s.ByStatus[types.StatusCompleted] + s.ByStatus[types.StatusFailed]
	if terminal > 0 {
		s.CompletionRate = float64(s.ByStatus[types.StatusCompleted]) / float64(terminal)
	} else {
		s.CompletionRate = 0
	}
}
