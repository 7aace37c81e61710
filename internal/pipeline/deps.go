package pipeline

import (
	"context"
	"io"
	"time"

	"oto-insights-go/internal/media"
	"oto-insights-go/internal/store"
	"oto-insights-go/internal/types"
)

// ConversationStore reads conversations and admission counts.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
	ListConversations(ctx context.Context, f store.ConversationFilter) ([]types.Conversation, error)
	CountConversations(ctx context.Context) (int, error)
	SetPoints(ctx context.Context, id string, points float64) error
	SetMetadata(ctx context.Context, id string, md types.Metadata) error
}

// AnalysisStore persists transcripts, facets and topics.
type AnalysisStore interface {
	SaveTranscript(ctx context.Context, t types.Transcript) error
	GetTranscript(ctx context.Context, id string) (*types.Transcript, error)
	ResetAnalysis(ctx context.Context, id, ownerID string) error
	SaveFacet(ctx context.Context, id, ownerID string, facet types.Facet, value any) error
	HasTopic(ctx context.Context, id string) (bool, error)
	SaveTopic(ctx context.Context, t types.Topic) error
}

// ProfileStore reads and rewrites user profiles.
type ProfileStore interface {
	GetUser(ctx context.Context, id string) (*types.User, error)
	UpdateProfile(ctx context.Context, id string, p types.ProfileUpdate) error
}

// Ledger credits points at most once per conversation.
type Ledger interface {
	AwardPoints(ctx context.Context, ownerID, conversationID string, amount float64) (bool, error)
}

// ClipStore swaps the clips of a conversation in one write.
type ClipStore interface {
	ReplaceClips(ctx context.Context, conversationID string, clips []types.Clip) ([]types.Clip, error)
}

// Store is everything the pipeline persists. *store.Store satisfies it.
type Store interface {
	ConversationStore
	AnalysisStore
	ProfileStore
	Ledger
	ClipStore
}

// Storage holds conversation and clip audio.
type Storage interface {
	Upload(ctx context.Context, prefix, ext string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Analyzer produces analysis facets and clip candidates.
// *extractor.Analyzer satisfies it.
type Analyzer interface {
	Summary(ctx context.Context, captions []types.Caption) (*types.Summary, error)
	Highlights(ctx context.Context, captions []types.Caption) ([]types.Highlight, error)
	Insights(ctx context.Context, captions []types.Caption) (*types.Insights, error)
	Breakdown(ctx context.Context, captions []types.Caption) (*types.Breakdown, error)
	EditProfile(ctx context.Context, captions []types.Caption, current types.ProfileUpdate) (types.ProfileUpdate, error)
	Topics(ctx context.Context, captions []types.Caption) ([]types.TopicData, error)
	ClipCandidates(ctx context.Context, captions []types.Caption) ([]types.Candidate, error)
	CleanClip(ctx context.Context, captions []types.Caption) ([]types.ClipCaption, error)
}

// ClipBuilder cuts candidate audio. *clip.Constructor satisfies it.
type ClipBuilder interface {
	Construct(ctx context.Context, src io.Reader, candidates []types.Candidate) ([]types.Candidate, error)
	ConstructWithCaptions(ctx context.Context, src io.Reader, captions []types.ClipCaption) ([]byte, []types.ClipCaption, error)
}

// Enhancer turns a signed WAV URL into enhanced audio.
type Enhancer interface {
	Enhance(ctx context.Context, url string, format media.Format) ([]byte, error)
}

// Synthesizer voices clip comments.
type Synthesizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// StatusProjector owns every status write. *status.Projector satisfies it.
type StatusProjector interface {
	Begin(ctx context.Context, id, label string) error
	Label(ctx context.Context, id, label string) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, reason string) error
}

// Recorder receives run and stage measurements. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordRunStart()
	RecordRunEnd(outcome string, durationSeconds float64)
	RecordStage(stage string, critical bool, kind string, durationSeconds float64)
	RecordClips(created, skipped int)
	RecordPoints(amount float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordRunStart()                           {}
func (nopRecorder) RecordRunEnd(string, float64)              {}
func (nopRecorder) RecordStage(string, bool, string, float64) {}
func (nopRecorder) RecordClips(int, int)                      {}
func (nopRecorder) RecordPoints(float64)                      {}
