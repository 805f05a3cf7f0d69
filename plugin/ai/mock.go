package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockEmbedder is a deterministic in-process EmbeddingService for tests and
// demo mode. Identical texts embed to identical unit vectors and texts that
// share words land closer together than unrelated texts.
type MockEmbedder struct {
	Dims    int
	Version string

	// Err, when set, is returned from every embed call.
	Err error
}

var _ EmbeddingService = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder with the given dimensionality.
func NewMockEmbedder(dims int) *MockEmbedder {
	return &MockEmbedder{Dims: dims, Version: "mock/deterministic-v1"}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.embed(text), nil
}

func (m *MockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.embed(text)
	}
	return vectors, nil
}

func (m *MockEmbedder) Dimensions() int {
	return m.Dims
}

func (m *MockEmbedder) ModelVersion() string {
	return m.Version
}

// embed projects each word into a few hashed buckets so word overlap
// translates into cosine similarity, then normalizes to unit length.
func (m *MockEmbedder) embed(text string) []float32 {
	vec := make([]float32, m.Dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		seed := h.Sum32()
		for k := 0; k < 3; k++ {
			idx := int(seed>>uint(k*8)) % m.Dims
			if idx < 0 {
				idx = -idx
			}
			vec[idx] += 1.0
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1.0
		return vec
	}
	scale := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// MockLLM is a scripted LLMService for tests.
type MockLLM struct {
	// Response is returned from every chat call.
	Response string

	// Err, when set, is returned instead.
	Err error

	// Calls records every conversation passed in.
	Calls [][]ChatMessage
}

var _ LLMService = (*MockLLM)(nil)

func (m *MockLLM) Chat(_ context.Context, messages []ChatMessage, _ ChatOptions) (string, error) {
	m.Calls = append(m.Calls, messages)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

func (m *MockLLM) ChatStream(ctx context.Context, messages []ChatMessage, opts ChatOptions, onDelta func(string)) (string, error) {
	resp, err := m.Chat(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		onDelta(resp)
	}
	return resp, nil
}

func (m *MockLLM) Model() string {
	return "mock/scripted"
}
