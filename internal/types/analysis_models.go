// internal/types/analysis_models.go
package types

import "time"

// --------------------------------------------
// Summary facet
// --------------------------------------------
type Summary struct {
	Summary string `json:"summary"`
}

// --------------------------------------------
// Highlights facet
// --------------------------------------------
type Highlight struct {
	Summary         string `json:"summary"`
	Highlight       string `json:"highlight"`
	TimecodeStartAt string `json:"timecode_start_at"`
	TimecodeEndAt   string `json:"timecode_end_at"`
	Favorite        bool   `json:"favorite"`
}

// --------------------------------------------
// Insights facet (scores are 0–1)
// --------------------------------------------
type Insights struct {
	Suggestions      []string `json:"suggestions"`
	BoringScore      float64  `json:"boring_score"`
	DensityScore     float64  `json:"density_score"`
	ClarityScore     float64  `json:"clarity_score"`
	EngagementScore  float64  `json:"engagement_score"`
	InterestingScore float64  `json:"interesting_score"`
}

// --------------------------------------------
// Breakdown facet
// --------------------------------------------
type Metadata struct {
	Duration     string   `json:"duration"`
	Language     string   `json:"language"`
	Situation    string   `json:"situation"`
	Place        string   `json:"place"`
	Time         string   `json:"time"`
	Location     string   `json:"location"`
	Participants []string `json:"participants"`
}

type Sentiment struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

type Keyword struct {
	Keyword         string  `json:"keyword"`
	ImportanceScore float64 `json:"importance_score"`
}

type Breakdown struct {
	Metadata  Metadata  `json:"metadata"`
	Sentiment Sentiment `json:"sentiment"`
	Keywords  []Keyword `json:"keywords"`
}

// Facet names one independently produced section of an Analysis.
type Facet string

const (
	FacetSummary    Facet = "summary"
	FacetHighlights Facet = "highlights"
	FacetInsights   Facet = "insights"
	FacetBreakdown  Facet = "breakdown"
)

// Facets lists every analysis facet in storage order.
var Facets = []Facet{FacetSummary, FacetHighlights, FacetInsights, FacetBreakdown}

// Analysis is the per-conversation record. A nil facet has not been produced yet.
type Analysis struct {
	ID         string      `json:"id"`
	OwnerID    string      `json:"owner_id"`
	Summary    *Summary    `json:"summary,omitempty"`
	Highlights []Highlight `json:"highlights,omitempty"`
	Insights   *Insights   `json:"insights,omitempty"`
	Breakdown  *Breakdown  `json:"breakdown,omitempty"`
}

// --------------------------------------------
// Topics (extracted after completion)
// --------------------------------------------
type TopicData struct {
	Topic                string    `json:"topic"`
	Words                []string  `json:"words"`
	RelatedConversations []Caption `json:"related_conversations"`
	Sentiment            float64   `json:"sentiment"`
	Embedding            []float32 `json:"embedding,omitempty"`
}

type Topic struct {
	ID      string      `json:"id"`
	OwnerID string      `json:"owner_id"`
	Topics  []TopicData `json:"topics"`
}

// --------------------------------------------
// Trends (built across conversations)
// --------------------------------------------

// TopicCluster is a group of similar topics from any number of conversations.
type TopicCluster struct {
	ID     int         `json:"id"`
	Topics []TopicData `json:"topics"`
}

type TrendData struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Volume            float64 `json:"volume"`
	PositiveSentiment float64 `json:"overall_positive_sentiment"`
	NegativeSentiment float64 `json:"overall_negative_sentiment"`
	ClusterID         int     `json:"cluster_id"`
}

type MicroTrendData struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Volume            float64 `json:"volume"`
	PositiveSentiment float64 `json:"overall_positive_sentiment"`
	NegativeSentiment float64 `json:"overall_negative_sentiment"`
}

// TrendSet is one analyzer answer: broad trends tied to clusters plus
// smaller micro trends.
type TrendSet struct {
	Trends      []TrendData      `json:"trends"`
	MicroTrends []MicroTrendData `json:"micro_trends"`
}

type Trend struct {
	ID string `json:"id"`
	TrendData
	CreatedAt time.Time `json:"created_at"`
}

type MicroTrend struct {
	ID string `json:"id"`
	MicroTrendData
	CreatedAt time.Time `json:"created_at"`
}

// Produced reports whether facet f has been written.
func (a *Analysis) Produced(f Facet) bool {
	if a == nil {
		return false
	}
	switch f {
	case FacetSummary:
		return a.Summary != nil
	case FacetHighlights:
		return a.Highlights != nil
	case FacetInsights:
		return a.Insights != nil
	case FacetBreakdown:
		return a.Breakdown != nil
	}
	return false
}
