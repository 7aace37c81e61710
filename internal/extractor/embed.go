package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"oto-insights-go/internal/services"
)

// EmbeddingDimensions is the vector size stored with each topic.
const EmbeddingDimensions = 64

// Embedder maps texts to vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Embeddings calls an OpenAI-compatible /embeddings endpoint.
type Embeddings struct {
	URL        string
	APIKey     string
	Model      string
	Dimensions int
	HTTP       *http.Client
}

func NewEmbeddings(url, apiKey, model string) *Embeddings {
	return &Embeddings{
		URL:        url,
		APIKey:     apiKey,
		Model:      model,
		Dimensions: EmbeddingDimensions,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Embeddings) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(map[string]any{
		"model":      e.Model,
		"input":      texts,
		"dimensions": e.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := e.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("embedding server error %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("embedding client error %d: %s", resp.StatusCode, string(body)))
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode embeddings: %w", err))
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, services.Provider("embeddings", "embed", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, services.Wrap(services.ErrProvider, "embeddings", "embed",
			fmt.Sprintf("got %d vectors for %d inputs", len(parsed.Data), len(texts)), nil)
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// HashEmbedder builds deterministic unit vectors from word hashes. It stands
// in for the embeddings endpoint in mock mode.
type HashEmbedder struct{}

func (HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, EmbeddingDimensions)
		for _, word := range bytes.Fields([]byte(text)) {
			h := fnv.New32a()
			_, _ = h.Write(bytes.ToLower(word))
			v[h.Sum32()%EmbeddingDimensions]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for j := range v {
				v[j] *= scale
			}
		}
		out[i] = v
	}
	return out, nil
}
