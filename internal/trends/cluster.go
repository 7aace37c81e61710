// Package trends groups topics from every conversation by embedding
// similarity and asks the analyzer to name the trends behind the groups.
package trends

import (
	"math"
	"sort"

	"oto-insights-go/internal/types"
)

// Cluster links every pair of topics whose embeddings have a cosine
// similarity of at least minSimilarity and returns the connected groups
// holding at least minSize topics. Topics without a usable embedding are
// ignored. Clusters come largest first and are numbered from 0.
func Cluster(topics []types.TopicData, minSimilarity float64, minSize int) []types.TopicCluster {
	var (
		usable []types.TopicData
		norms  []float64
	)
	for _, t := range topics {
		n := norm(t.Embedding)
		if n == 0 {
			continue
		}
		usable = append(usable, t)
		norms = append(norms, n)
	}

	parent := make([]int, len(usable))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range usable {
		for j := i + 1; j < len(usable); j++ {
			if len(usable[i].Embedding) != len(usable[j].Embedding) {
				continue
			}
			if dot(usable[i].Embedding, usable[j].Embedding)/(norms[i]*norms[j]) >= minSimilarity {
				parent[find(i)] = find(j)
			}
		}
	}

	groups := map[int][]int{}
	var roots []int
	for i := range usable {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}
	// Stable on first appearance so equal sized clusters keep input order.
	sort.SliceStable(roots, func(a, b int) bool { return len(groups[roots[a]]) > len(groups[roots[b]]) })

	out := []types.TopicCluster{}
	for _, r := range roots {
		members := groups[r]
		if len(members) < minSize {
			continue
		}
		c := types.TopicCluster{ID: len(out)}
		for _, i := range members {
			c.Topics = append(c.Topics, usable[i])
		}
		out = append(out, c)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
