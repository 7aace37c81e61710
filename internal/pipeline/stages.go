package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"oto-insights-go/internal/services"
	"oto-insights-go/internal/types"
)

// Stage names one replayable unit of work.
type Stage string

const (
	StageTranscribe    Stage = "transcribe"
	StageEmptyAnalysis Stage = "empty_analysis"
	StageSummary       Stage = "summary"
	StageHighlights    Stage = "highlights"
	StageInsights      Stage = "insights"
	StageBreakdown     Stage = "breakdown"
	StageEditProfile   Stage = "edit_profile"
	StageGivePoints    Stage = "give_points"
	StageComplete      Stage = "complete"
	StageExtractTopic  Stage = "extract_topic"
	StageClips         Stage = "clips"
	StageMarkFailed    Stage = "mark_failed"
)

// Stages lists every stage RunStage accepts.
var Stages = []Stage{
	StageTranscribe, StageEmptyAnalysis, StageSummary, StageHighlights, StageInsights,
	StageBreakdown, StageEditProfile, StageGivePoints, StageComplete, StageExtractTopic,
	StageClips, StageMarkFailed,
}

// ParseStage validates a stage name.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages {
		if string(s) == name {
			return s, nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "pipeline", "parse stage", fmt.Sprintf("unknown stage %q", name), nil)
}

// Critical reports whether a failure of s fails the conversation.
func (s Stage) Critical() bool {
	switch s {
	case StageExtractTopic, StageClips:
		return false
	}
	return true
}

const (
	labelTranscribing = "Transcribing conversation"
	labelTranscribed  = "Transcription completed"
	labelAnalyzing    = "Analyzing conversation"
	labelBreakdown    = "Breaking down conversation"
	labelPoints       = "Awarding points"
	labelResuming     = "Resuming at "
)

// StageResult is the outcome of one stage execution.
type StageResult struct {
	Stage    Stage
	Critical bool
	Err      error
	Duration time.Duration
}

// Points converts active speech into points: 200 per hour, one decimal.
func Points(activeSeconds float64) float64 {
	if activeSeconds <= 0 {
		return 0
	}
	return math.Round(activeSeconds/3600*200*10) / 10
}

type stageFunc func(ctx context.Context, conv *types.Conversation) error

func (p *Pipeline) stageFunc(s Stage) stageFunc {
	switch s {
	case StageTranscribe:
		return p.transcribe
	case StageEmptyAnalysis:
		return p.emptyAnalysis
	case StageSummary:
		return p.summary
	case StageHighlights:
		return p.highlights
	case StageInsights:
		return p.insights
	case StageBreakdown:
		return p.breakdown
	case StageEditProfile:
		return p.editProfile
	case StageGivePoints:
		return p.givePoints
	case StageComplete:
		return p.complete
	case StageExtractTopic:
		return p.extractTopic
	case StageClips:
		return p.createClips
	case StageMarkFailed:
		return func(ctx context.Context, conv *types.Conversation) error {
			return p.status.Fail(ctx, conv.ID, string(StageMarkFailed)+": requested")
		}
	}
	return nil
}

// persistable guards writes made after a sibling broke the barrier or the
// budget expired.
func persistable(ctx context.Context, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: not persisting: %w", stage, err)
	}
	return nil
}

func (p *Pipeline) transcript(ctx context.Context, stage Stage, id string) ([]types.Caption, error) {
	t, err := p.store.GetTranscript(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return nil, services.Wrap(services.ErrPrerequisiteMissing, string(stage), "load transcript", id, nil)
	}
	if err != nil {
		return nil, err
	}
	return t.Captions, nil
}

// transcribe stores the transcript and the points it is worth. Replaying it
// on a completed conversation refreshes both without touching the status.
func (p *Pipeline) transcribe(ctx context.Context, conv *types.Conversation) error {
	if conv.Status != types.StatusCompleted {
		if err := p.status.Begin(ctx, conv.ID, labelTranscribing); err != nil {
			return err
		}
	}
	src, err := p.storage.Open(ctx, conv.FilePath)
	if err != nil {
		return services.Wrap(services.ErrPrerequisiteMissing, string(StageTranscribe), "open audio", conv.FilePath, err)
	}
	defer src.Close()

	res, err := p.transcriber.Transcribe(ctx, src, conv.FileName, conv.MimeType)
	if err != nil {
		return err
	}
	captions := res.Captions()
	points := Points(res.ActiveSeconds)

	if err := persistable(ctx, StageTranscribe); err != nil {
		return err
	}
	if err := p.store.SaveTranscript(ctx, types.Transcript{ID: conv.ID, OwnerID: conv.OwnerID, Captions: captions}); err != nil {
		return err
	}
	if err := p.store.SetPoints(ctx, conv.ID, points); err != nil {
		return err
	}
	p.log.WithConversation(conv.ID).WithField("captions", len(captions)).WithField("points", points).Info("transcript stored")
	return p.status.Label(ctx, conv.ID, labelTranscribed)
}

func (p *Pipeline) emptyAnalysis(ctx context.Context, conv *types.Conversation) error {
	if err := p.status.Label(ctx, conv.ID, labelAnalyzing); err != nil {
		return err
	}
	return p.store.ResetAnalysis(ctx, conv.ID, conv.OwnerID)
}

// facet runs one analysis call and writes only that facet's column.
func facet[T any](ctx context.Context, p *Pipeline, stage Stage, conv *types.Conversation, f types.Facet,
	produce func(context.Context, []types.Caption) (T, error)) (T, error) {
	var zero T
	captions, err := p.transcript(ctx, stage, conv.ID)
	if err != nil {
		return zero, err
	}
	value, err := produce(ctx, captions)
	if err != nil {
		return zero, err
	}
	if err := persistable(ctx, stage); err != nil {
		return zero, err
	}
	if err := p.store.SaveFacet(ctx, conv.ID, conv.OwnerID, f, value); err != nil {
		return zero, err
	}
	return value, nil
}

func (p *Pipeline) summary(ctx context.Context, conv *types.Conversation) error {
	_, err := facet(ctx, p, StageSummary, conv, types.FacetSummary, p.analyzer.Summary)
	return err
}

func (p *Pipeline) highlights(ctx context.Context, conv *types.Conversation) error {
	_, err := facet(ctx, p, StageHighlights, conv, types.FacetHighlights,
		func(ctx context.Context, captions []types.Caption) ([]types.Highlight, error) {
			h, err := p.analyzer.Highlights(ctx, captions)
			if err == nil && h == nil {
				h = []types.Highlight{}
			}
			return h, err
		})
	return err
}

func (p *Pipeline) insights(ctx context.Context, conv *types.Conversation) error {
	_, err := facet(ctx, p, StageInsights, conv, types.FacetInsights, p.analyzer.Insights)
	return err
}

func (p *Pipeline) breakdown(ctx context.Context, conv *types.Conversation) error {
	if err := p.status.Label(ctx, conv.ID, labelBreakdown); err != nil {
		return err
	}
	b, err := facet(ctx, p, StageBreakdown, conv, types.FacetBreakdown, p.analyzer.Breakdown)
	if err != nil {
		return err
	}
	if err := persistable(ctx, StageBreakdown); err != nil {
		return err
	}
	return p.store.SetMetadata(ctx, conv.ID, b.Metadata)
}

func (p *Pipeline) editProfile(ctx context.Context, conv *types.Conversation) error {
	captions, err := p.transcript(ctx, StageEditProfile, conv.ID)
	if err != nil {
		return err
	}
	user, err := p.store.GetUser(ctx, conv.OwnerID)
	if err != nil {
		return err
	}
	updated, err := p.analyzer.EditProfile(ctx, captions, user.Profile())
	if err != nil {
		return err
	}
	if err := persistable(ctx, StageEditProfile); err != nil {
		return err
	}
	return p.store.UpdateProfile(ctx, conv.OwnerID, updated)
}

func (p *Pipeline) givePoints(ctx context.Context, conv *types.Conversation) error {
	if err := p.status.Label(ctx, conv.ID, labelPoints); err != nil {
		return err
	}
	// Points were written by transcribe; the snapshot may predate that.
	current, err := p.store.GetConversation(ctx, conv.ID)
	if err != nil {
		return err
	}
	if current.Status != types.StatusProcessing && current.Status != types.StatusCompleted {
		return services.Wrap(services.ErrInvalidTransition, string(StageGivePoints), "award",
			fmt.Sprintf("%s is %s", conv.ID, current.Status), nil)
	}
	awarded, err := p.store.AwardPoints(ctx, current.OwnerID, current.ID, current.Points)
	if err != nil {
		return err
	}
	log := p.log.WithConversation(conv.ID).WithField("points", current.Points)
	if !awarded {
		log.Info("points already awarded, skipping")
		return nil
	}
	p.metrics.RecordPoints(current.Points)
	log.Info("points awarded")
	return nil
}

func (p *Pipeline) complete(ctx context.Context, conv *types.Conversation) error {
	return p.status.Complete(ctx, conv.ID)
}

func (p *Pipeline) extractTopic(ctx context.Context, conv *types.Conversation) error {
	exists, err := p.store.HasTopic(ctx, conv.ID)
	if err != nil {
		return err
	}
	if exists {
		p.log.WithConversation(conv.ID).Debug("topics already extracted")
		return nil
	}
	captions, err := p.transcript(ctx, StageExtractTopic, conv.ID)
	if err != nil {
		return err
	}
	topics, err := p.analyzer.Topics(ctx, captions)
	if err != nil {
		return err
	}
	if err := persistable(ctx, StageExtractTopic); err != nil {
		return err
	}
	return p.store.SaveTopic(ctx, types.Topic{ID: conv.ID, OwnerID: conv.OwnerID, Topics: topics})
}
