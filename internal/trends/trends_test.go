package trends_test

import (
	"context"
	"errors"
	"testing"

	"oto-insights-go/internal/extractor"
	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/testsupport"
	"oto-insights-go/internal/trends"
	"oto-insights-go/internal/types"
)

func topic(name string, embedding ...float32) types.TopicData {
	return types.TopicData{Topic: name, Embedding: embedding}
}

func names(c types.TopicCluster) []string {
	var out []string
	for _, t := range c.Topics {
		out = append(out, t.Topic)
	}
	return out
}

func TestCluster(t *testing.T) {
	tests := []struct {
		name   string
		topics []types.TopicData
		want   [][]string
	}{
		{
			name: "empty",
			want: nil,
		},
		{
			name:   "singletons are dropped",
			topics: []types.TopicData{topic("a", 1, 0), topic("b", 0, 1)},
			want:   nil,
		},
		{
			name: "largest first",
			topics: []types.TopicData{
				topic("x1", 0, 1), topic("k1", 1, 0), topic("k2", 0.99, 0.05),
				topic("x2", 0.05, 0.99), topic("k3", 0.98, 0.1),
			},
			want: [][]string{{"k1", "k2", "k3"}, {"x1", "x2"}},
		},
		{
			name: "chains link through a shared neighbour",
			topics: []types.TopicData{
				topic("a", 1, 0), topic("b", 0.8, 0.6), topic("c", 0.28, 0.96),
			},
			want: [][]string{{"a", "b", "c"}},
		},
		{
			name: "missing or zero embeddings are ignored",
			topics: []types.TopicData{
				topic("none"), topic("zero", 0, 0), topic("a", 1, 0), topic("b", 1, 0),
				topic("short", 1),
			},
			want: [][]string{{"a", "b"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trends.Cluster(tt.topics, 0.75, 2)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d clusters, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, c := range got {
				if c.ID != i {
					t.Fatalf("cluster %d has id %d", i, c.ID)
				}
				n := names(c)
				if len(n) != len(tt.want[i]) {
					t.Fatalf("cluster %d = %v, want %v", i, n, tt.want[i])
				}
				for j := range n {
					if n[j] != tt.want[i][j] {
						t.Fatalf("cluster %d = %v, want %v", i, n, tt.want[i])
					}
				}
			}
		})
	}
}

type failingSummarizer struct{ calls int }

func (f *failingSummarizer) Trends(context.Context, []types.TopicCluster) (*types.TrendSet, error) {
	f.calls++
	return nil, errors.New("unavailable")
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	s := testsupport.MustOpenStore(t)
	a := testsupport.MustCreateConversation(t, s, "owner-1", "a.wav")
	b := testsupport.MustCreateConversation(t, s, "owner-2", "b.wav")
	if err := s.SaveTopic(ctx, types.Topic{ID: a.ID, OwnerID: a.OwnerID, Topics: []types.TopicData{topic("kyoto", 1, 0)}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTopic(ctx, types.Topic{ID: b.ID, OwnerID: b.OwnerID, Topics: []types.TopicData{topic("osaka", 0.95, 0.1), topic("coffee", 0, 1)}}); err != nil {
		t.Fatal(err)
	}

	builder := trends.NewBuilder(s, extractor.NewAnalyzer(extractor.Mock{}, nil, nil), logger.Nop())
	res, err := builder.Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res != (trends.Result{Topics: 3, Clusters: 1, Trends: 1, MicroTrends: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}
	list, err := s.ListTrends(ctx)
	if err != nil || len(list) != 1 || list[0].ClusterID != 0 {
		t.Fatalf("ListTrends = %+v, %v", list, err)
	}

	failing := &failingSummarizer{}
	if _, err := trends.NewBuilder(s, failing, logger.Nop()).Build(ctx); err == nil {
		t.Fatal("expected summarizer failure")
	}
	if list, _ := s.ListTrends(ctx); len(list) != 1 {
		t.Fatalf("failed build must keep the previous trends, got %d", len(list))
	}
}

func TestBuildWithoutClustersClearsTrends(t *testing.T) {
	ctx := context.Background()
	s := testsupport.MustOpenStore(t)
	if err := s.ReplaceTrends(ctx, []types.TrendData{{Title: "stale", Volume: 3}}, nil); err != nil {
		t.Fatal(err)
	}

	failing := &failingSummarizer{}
	res, err := trends.NewBuilder(s, failing, logger.Nop()).Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if failing.calls != 0 || res.Clusters != 0 {
		t.Fatalf("summarizer called %d times for %+v", failing.calls, res)
	}
	if list, _ := s.ListTrends(ctx); len(list) != 0 {
		t.Fatalf("stale trends left: %+v", list)
	}
}
