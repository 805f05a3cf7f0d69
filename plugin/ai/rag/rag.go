// Package rag assembles retrieval-augmented context: one query embedding
// fanned out across knowledge namespaces, merged, re-ranked and truncated to
// a token budget.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strideai/coach/plugin/ai/timeout"
	"github.com/strideai/coach/plugin/ai/token"
	"github.com/strideai/coach/plugin/ai/vector"
)

// Config tunes the assembler.
type Config struct {
	// TokenBudget caps the formatted context text.
	TokenBudget int

	// TopKPerNamespace is the per-namespace retrieval depth before merging.
	TopKPerNamespace int

	// MinConfidence filters low-trust sources at query time.
	MinConfidence float32

	// SourceTypeWeights scale similarity during the merge re-rank. Unknown
	// types weigh 1.
	SourceTypeWeights map[string]float32
}

// DefaultConfig returns the assembler defaults.
func DefaultConfig() Config {
	return Config{
		TokenBudget:      1024,
		TopKPerNamespace: 5,
		MinConfidence:    0.3,
		SourceTypeWeights: map[string]float32{
			vector.SourceTypeCurated:   1.0,
			vector.SourceTypeUser:      0.9,
			vector.SourceTypeGenerated: 0.7,
		},
	}
}

// Metadata describes how a RAGContext was assembled.
type Metadata struct {
	TotalSources int
	QueryTime    time.Duration
	Confidence   float32

	// Namespaces lists the namespaces that contributed sources. A namespace
	// that failed or timed out is absent.
	Namespaces []string

	// Degraded records per-namespace failures without failing the call.
	Degraded map[string]string
}

// RAGContext is the assembled retrieval context for one query. Ephemeral,
// never persisted.
type RAGContext struct {
	Sources  []vector.Source
	Context  string
	Metadata Metadata
}

// Empty reports whether no sources survived assembly.
func (c *RAGContext) Empty() bool {
	return len(c.Sources) == 0
}

// Assembler fans a query out across namespaces and folds the results into a
// bounded context.
type Assembler struct {
	embedder vector.Embedder
	store    vector.Store
	config   Config
	logger   *slog.Logger
}

// NewAssembler creates a RAG assembler.
func NewAssembler(embedder vector.Embedder, store vector.Store, config Config) *Assembler {
	if config.TokenBudget <= 0 {
		config.TokenBudget = DefaultConfig().TokenBudget
	}
	if config.TopKPerNamespace <= 0 {
		config.TopKPerNamespace = DefaultConfig().TopKPerNamespace
	}
	return &Assembler{
		embedder: embedder,
		store:    store,
		config:   config,
		logger:   slog.Default().With("component", "rag"),
	}
}

// Assemble retrieves and formats context for the query from the given
// namespaces. Partial failures degrade the result instead of failing it; an
// empty RAGContext with the failure recorded in Metadata.Degraded is a valid
// terminal state.
func (a *Assembler) Assemble(ctx context.Context, query string, namespaces []string) (*RAGContext, error) {
	start := time.Now()
	result := &RAGContext{
		Metadata: Metadata{Degraded: make(map[string]string)},
	}
	if len(namespaces) == 0 {
		namespaces = vector.Namespaces()
	}

	// One embedding serves every namespace query.
	queryVector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		a.logger.Warn("query embedding failed, returning empty context", "error", err)
		result.Metadata.Degraded["embedding"] = err.Error()
		result.Metadata.QueryTime = time.Since(start)
		return result, nil
	}

	merged, contributed, degraded := a.fanOut(ctx, queryVector, namespaces)
	result.Metadata.Namespaces = contributed
	for ns, msg := range degraded {
		result.Metadata.Degraded[ns] = msg
	}

	a.rank(merged)
	kept := a.truncate(merged)

	result.Sources = kept
	result.Context = formatSources(kept)
	result.Metadata.TotalSources = len(kept)
	result.Metadata.Confidence = weightedConfidence(kept)
	result.Metadata.QueryTime = time.Since(start)
	return result, nil
}

// fanOut queries every namespace concurrently under the in-flight limit.
// Branch failures are collected, not propagated.
func (a *Assembler) fanOut(ctx context.Context, queryVector []float32, namespaces []string) ([]vector.Source, []string, map[string]string) {
	var mu sync.Mutex
	merged := make([]vector.Source, 0, len(namespaces)*a.config.TopKPerNamespace)
	contributed := make([]string, 0, len(namespaces))
	degraded := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(timeout.MaxInflightNamespaceQueries)
	for _, namespace := range namespaces {
		namespace := namespace
		g.Go(func() error {
			sources, err := vector.QueryWithTimeout(gctx, a.store, namespace, queryVector, vector.QueryOptions{
				TopK:          a.config.TopKPerNamespace,
				MinConfidence: a.config.MinConfidence,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn("namespace query degraded", "namespace", namespace, "error", err)
				degraded[namespace] = err.Error()
				return nil
			}
			if len(sources) > 0 {
				merged = append(merged, sources...)
				contributed = append(contributed, namespace)
			}
			return nil
		})
	}
	// Branches never return errors; Wait only joins.
	_ = g.Wait()

	sort.Strings(contributed)
	return merged, contributed, degraded
}

// rank orders merged sources by similarity scaled by source-type weight.
func (a *Assembler) rank(sources []vector.Source) {
	weight := func(s vector.Source) float32 {
		if w, ok := a.config.SourceTypeWeights[s.Metadata.Type]; ok {
			return s.Similarity * w
		}
		return s.Similarity
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return weight(sources[i]) > weight(sources[j])
	})
}

// truncate enforces the token budget by dropping the lowest-confidence
// sources first, preserving rank order among the survivors.
func (a *Assembler) truncate(sources []vector.Source) []vector.Source {
	kept := append([]vector.Source(nil), sources...)
	for len(kept) > 0 && token.Estimate(formatSources(kept)) > a.config.TokenBudget {
		lowest := 0
		for i, s := range kept {
			if s.Metadata.Confidence < kept[lowest].Metadata.Confidence {
				lowest = i
			}
		}
		kept = append(kept[:lowest], kept[lowest+1:]...)
	}
	return kept
}

// formatSources renders sources into the context text handed to generation.
func formatSources(sources []vector.Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant knowledge:\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "- [%s] %s\n", s.Namespace, s.Content)
	}
	return b.String()
}

// weightedConfidence is the similarity-weighted average confidence across
// sources.
func weightedConfidence(sources []vector.Source) float32 {
	if len(sources) == 0 {
		return 0
	}
	var weightedSum, weightTotal float64
	for _, s := range sources {
		w := float64(s.Similarity)
		if w <= 0 {
			w = 1e-6
		}
		weightedSum += w * float64(s.Metadata.Confidence)
		weightTotal += w
	}
	return float32(weightedSum / weightTotal)
}
