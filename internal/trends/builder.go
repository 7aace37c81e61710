package trends

import (
	"context"
	"fmt"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/types"
)

const (
	// MaxTopics caps how many recent topics one build looks at.
	MaxTopics = 1000
	// DefaultMinSimilarity is the cosine similarity that links two topics.
	DefaultMinSimilarity = 0.75
	// DefaultMinClusterSize drops singletons.
	DefaultMinClusterSize = 2
)

type Store interface {
	ListTopics(ctx context.Context, limit int) ([]types.TopicData, error)
	ReplaceTrends(ctx context.Context, trends []types.TrendData, micro []types.MicroTrendData) error
}

type Summarizer interface {
	Trends(ctx context.Context, clusters []types.TopicCluster) (*types.TrendSet, error)
}

// Builder rebuilds the trend tables from the topics of all conversations.
type Builder struct {
	store      Store
	summarizer Summarizer
	log        *logger.Logger

	MinSimilarity  float64
	MinClusterSize int
}

func NewBuilder(store Store, summarizer Summarizer, log *logger.Logger) *Builder {
	return &Builder{
		store:          store,
		summarizer:     summarizer,
		log:            log.Component("trends"),
		MinSimilarity:  DefaultMinSimilarity,
		MinClusterSize: DefaultMinClusterSize,
	}
}

// Result describes one build.
type Result struct {
	Topics      int `json:"topics"`
	Clusters    int `json:"clusters"`
	Trends      int `json:"trends"`
	MicroTrends int `json:"micro_trends"`
}

// Build clusters the most recent topics, names the clusters and replaces
// the stored trends. With no cluster the tables are emptied and the
// analyzer is not called.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	topics, err := b.store.ListTopics(ctx, MaxTopics)
	if err != nil {
		return Result{}, fmt.Errorf("list topics: %w", err)
	}
	clusters := Cluster(topics, b.MinSimilarity, b.MinClusterSize)
	res := Result{Topics: len(topics), Clusters: len(clusters)}

	set := &types.TrendSet{}
	if len(clusters) > 0 {
		set, err = b.summarizer.Trends(ctx, clusters)
		if err != nil {
			return res, fmt.Errorf("name trends: %w", err)
		}
	}
	if err := b.store.ReplaceTrends(ctx, set.Trends, set.MicroTrends); err != nil {
		return res, fmt.Errorf("replace trends: %w", err)
	}
	res.Trends, res.MicroTrends = len(set.Trends), len(set.MicroTrends)
	b.log.WithFields(map[string]any{
		"topics":       res.Topics,
		"clusters":     res.Clusters,
		"trends":       res.Trends,
		"micro_trends": res.MicroTrends,
	}).Info("trends built")
	return res, nil
}
