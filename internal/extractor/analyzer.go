package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/timecode"
	"oto-insights-go/internal/types"
)

// Analyzer turns transcripts into typed analysis facets. Every response is
// validated; a malformed or out-of-range answer is a provider error.
type Analyzer struct {
	llm   Completer
	embed Embedder
	log   *logger.Logger
}

// NewAnalyzer returns an Analyzer. embed may be nil, in which case topics
// carry no embedding.
func NewAnalyzer(llm Completer, embed Embedder, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{llm: llm, embed: embed, log: log.Component("extractor")}
}

func transcriptMessage(captions []types.Caption) (Message, error) {
	data, err := json.Marshal(captions)
	if err != nil {
		return Message{}, fmt.Errorf("marshal captions: %w", err)
	}
	return Message{Role: "user", Content: string(data)}, nil
}

// ask sends the transcript and an instruction and decodes the JSON answer.
func (a *Analyzer) ask(ctx context.Context, task, prompt string, captions []types.Caption, target any) error {
	transcript, err := transcriptMessage(captions)
	if err != nil {
		return err
	}
	content, err := a.llm.Complete(ctx, Request{
		Task: task,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			transcript,
			{Role: "user", Content: prompt},
		},
		JSON: true,
	})
	if err != nil {
		return err
	}
	return decode(task, content, target)
}

func (a *Analyzer) Summary(ctx context.Context, captions []types.Caption) (*types.Summary, error) {
	var out types.Summary
	if err := a.ask(ctx, TaskSummary, summaryPrompt, captions, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return nil, invalid(TaskSummary, "empty summary")
	}
	return &out, nil
}

func (a *Analyzer) Highlights(ctx context.Context, captions []types.Caption) ([]types.Highlight, error) {
	var out struct {
		Highlights []types.Highlight `json:"highlights"`
	}
	if err := a.ask(ctx, TaskHighlights, highlightsPrompt, captions, &out); err != nil {
		return nil, err
	}
	for i, h := range out.Highlights {
		if _, err := timecode.Parse(h.TimecodeStartAt); err != nil {
			return nil, invalid(TaskHighlights, fmt.Sprintf("highlight %d: %v", i, err))
		}
		if _, err := timecode.Parse(h.TimecodeEndAt); err != nil {
			return nil, invalid(TaskHighlights, fmt.Sprintf("highlight %d: %v", i, err))
		}
	}
	if out.Highlights == nil {
		out.Highlights = []types.Highlight{}
	}
	return out.Highlights, nil
}

func (a *Analyzer) Insights(ctx context.Context, captions []types.Caption) (*types.Insights, error) {
	var out types.Insights
	if err := a.ask(ctx, TaskInsights, insightsPrompt, captions, &out); err != nil {
		return nil, err
	}
	scores := map[string]float64{
		"boring_score":      out.BoringScore,
		"density_score":     out.DensityScore,
		"clarity_score":     out.ClarityScore,
		"engagement_score":  out.EngagementScore,
		"interesting_score": out.InterestingScore,
	}
	for name, v := range scores {
		if v < 0 || v > 1 {
			return nil, invalid(TaskInsights, fmt.Sprintf("%s %v outside [0, 1]", name, v))
		}
	}
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}
	return &out, nil
}

func (a *Analyzer) Breakdown(ctx context.Context, captions []types.Caption) (*types.Breakdown, error) {
	var out types.Breakdown
	if err := a.ask(ctx, TaskBreakdown, breakdownPrompt, captions, &out); err != nil {
		return nil, err
	}
	s := out.Sentiment
	for _, v := range []float64{s.Positive, s.Neutral, s.Negative} {
		if v < 0 || v > 1 {
			return nil, invalid(TaskBreakdown, fmt.Sprintf("sentiment %v outside [0, 1]", v))
		}
	}
	if out.Keywords == nil {
		out.Keywords = []types.Keyword{}
	}
	return &out, nil
}

// EditProfile proposes an updated profile from the conversation.
func (a *Analyzer) EditProfile(ctx context.Context, captions []types.Caption, current types.ProfileUpdate) (types.ProfileUpdate, error) {
	transcript, err := transcriptMessage(captions)
	if err != nil {
		return types.ProfileUpdate{}, err
	}
	profile, err := json.Marshal(current)
	if err != nil {
		return types.ProfileUpdate{}, fmt.Errorf("marshal profile: %w", err)
	}
	content, err := a.llm.Complete(ctx, Request{
		Task: TaskEditProfile,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			transcript,
			{Role: "user", Content: "Current profile:\n" + string(profile)},
			{Role: "user", Content: editProfilePrompt},
		},
		JSON: true,
	})
	if err != nil {
		return types.ProfileUpdate{}, err
	}
	var out types.ProfileUpdate
	if err := decode(TaskEditProfile, content, &out); err != nil {
		return types.ProfileUpdate{}, err
	}
	if out.Age < 0 || out.Age > 150 {
		return types.ProfileUpdate{}, invalid(TaskEditProfile, fmt.Sprintf("age %d", out.Age))
	}
	return out, nil
}

// Topics extracts topics and, when an embedder is configured, embeds each
// topic's words.
func (a *Analyzer) Topics(ctx context.Context, captions []types.Caption) ([]types.TopicData, error) {
	var out struct {
		Topics []types.TopicData `json:"topics"`
	}
	if err := a.ask(ctx, TaskTopics, topicsPrompt, captions, &out); err != nil {
		return nil, err
	}
	for i, t := range out.Topics {
		if t.Sentiment < -1 || t.Sentiment > 1 {
			return nil, invalid(TaskTopics, fmt.Sprintf("topic %d sentiment %v outside [-1, 1]", i, t.Sentiment))
		}
	}
	if a.embed == nil || len(out.Topics) == 0 {
		return out.Topics, nil
	}

	texts := make([]string, len(out.Topics))
	for i, t := range out.Topics {
		texts[i] = strings.Join(t.Words, " ")
	}
	vectors, err := a.embed.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range out.Topics {
		out.Topics[i].Embedding = vectors[i]
	}
	return out.Topics, nil
}

// MaxTopicsPerCluster caps how many topics of one cluster are shown to the
// model when naming trends.
const MaxTopicsPerCluster = 10

// Trends names the themes behind topic clusters. Every trend must point at
// one of the given clusters.
func (a *Analyzer) Trends(ctx context.Context, clusters []types.TopicCluster) (*types.TrendSet, error) {
	content, err := a.llm.Complete(ctx, Request{
		Task: TaskTrends,
		Messages: []Message{
			{Role: "system", Content: trendsPrompt},
			{Role: "user", Content: clusterText(clusters)},
		},
		JSON: true,
	})
	if err != nil {
		return nil, err
	}
	var out types.TrendSet
	if err := decode(TaskTrends, content, &out); err != nil {
		return nil, err
	}

	known := make(map[int]bool, len(clusters))
	for _, c := range clusters {
		known[c.ID] = true
	}
	for i, t := range out.Trends {
		if !known[t.ClusterID] {
			return nil, invalid(TaskTrends, fmt.Sprintf("trend %d names unknown cluster %d", i, t.ClusterID))
		}
		if err := validateTrend(t.Title, t.Volume, t.PositiveSentiment, t.NegativeSentiment); err != nil {
			return nil, invalid(TaskTrends, fmt.Sprintf("trend %d: %v", i, err))
		}
	}
	for i, t := range out.MicroTrends {
		if err := validateTrend(t.Title, t.Volume, t.PositiveSentiment, t.NegativeSentiment); err != nil {
			return nil, invalid(TaskTrends, fmt.Sprintf("micro trend %d: %v", i, err))
		}
	}
	if out.Trends == nil {
		out.Trends = []types.TrendData{}
	}
	if out.MicroTrends == nil {
		out.MicroTrends = []types.MicroTrendData{}
	}
	a.log.WithField("trends", len(out.Trends)).WithField("micro_trends", len(out.MicroTrends)).Info("trends named")
	return &out, nil
}

func clusterText(clusters []types.TopicCluster) string {
	var b strings.Builder
	for _, c := range clusters {
		fmt.Fprintf(&b, "# Cluster-%d\n", c.ID)
		for i, t := range c.Topics {
			if i == MaxTopicsPerCluster {
				break
			}
			fmt.Fprintf(&b, "- Topic: %s\nWords: %s\nSentiment: %g\n\n", t.Topic, strings.Join(t.Words, ", "), t.Sentiment)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func validateTrend(title string, volume, positive, negative float64) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("empty title")
	}
	if volume < 0 {
		return fmt.Errorf("volume %v is negative", volume)
	}
	for _, v := range []float64{positive, negative} {
		if v < 0 || v > 1 {
			return fmt.Errorf("sentiment %v outside [0, 1]", v)
		}
	}
	return nil
}

// ClipCandidates drafts clips in three turns: pick moments, refine them, then
// structure the result.
func (a *Analyzer) ClipCandidates(ctx context.Context, captions []types.Caption) ([]types.Candidate, error) {
	transcript, err := transcriptMessage(captions)
	if err != nil {
		return nil, err
	}
	conversation := []Message{
		{Role: "system", Content: systemPrompt},
		transcript,
		{Role: "user", Content: clipDraftPrompt},
	}
	draft, err := a.llm.Complete(ctx, Request{Task: TaskClipDraft, Messages: conversation, Temperature: 1})
	if err != nil {
		return nil, err
	}

	conversation = append(conversation,
		Message{Role: "assistant", Content: draft},
		Message{Role: "user", Content: clipRefinePrompt},
	)
	refined, err := a.llm.Complete(ctx, Request{Task: TaskClipRefine, Messages: conversation, Temperature: 1})
	if err != nil {
		return nil, err
	}

	content, err := a.llm.Complete(ctx, Request{
		Task: TaskClipStructure,
		Messages: []Message{
			{Role: "system", Content: clipStructurePrompt},
			{Role: "user", Content: refined},
		},
		JSON: true,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Clips []types.Candidate `json:"clips"`
	}
	if err := decode(TaskClipStructure, content, &out); err != nil {
		return nil, err
	}
	for i, c := range out.Clips {
		if strings.TrimSpace(c.Title) == "" {
			return nil, invalid(TaskClipStructure, fmt.Sprintf("clip %d has no title", i))
		}
		if err := validateClipCaptions(c.Captions); err != nil {
			return nil, invalid(TaskClipStructure, fmt.Sprintf("clip %d: %v", i, err))
		}
	}
	a.log.WithField("candidates", len(out.Clips)).Info("clip candidates drafted")
	return out.Clips, nil
}

// CleanClip drops fillers from a clip transcript and returns the captions to
// keep on the clip's own timeline.
func (a *Analyzer) CleanClip(ctx context.Context, captions []types.Caption) ([]types.ClipCaption, error) {
	var out struct {
		Captions []types.ClipCaption `json:"captions"`
	}
	if err := a.ask(ctx, TaskCleanClip, cleanClipPrompt, captions, &out); err != nil {
		return nil, err
	}
	if err := validateClipCaptions(out.Captions); err != nil {
		return nil, invalid(TaskCleanClip, err.Error())
	}
	return out.Captions, nil
}

func validateClipCaptions(captions []types.ClipCaption) error {
	for i, c := range captions {
		start, err := timecode.Parse(c.TimecodeStart)
		if err != nil {
			return fmt.Errorf("caption %d: %w", i, err)
		}
		end, err := timecode.Parse(c.TimecodeEnd)
		if err != nil {
			return fmt.Errorf("caption %d: %w", i, err)
		}
		if end < start {
			return fmt.Errorf("caption %d ends before it starts", i)
		}
	}
	return nil
}
