package context

import (
	"sort"
	"strings"

	"github.com/strideai/coach/plugin/ai/token"
)

// SegmentPriority orders sections for budget truncation. Safety-relevant
// sections outrank enrichment.
type SegmentPriority int

const (
	PriorityProfile     SegmentPriority = 100
	PriorityConstraints SegmentPriority = 95 // injuries and equipment
	PriorityStyle       SegmentPriority = 90
	PriorityGoals       SegmentPriority = 85
	PriorityPreferences SegmentPriority = 80
	PriorityKnowledge   SegmentPriority = 70
	PriorityMemories    SegmentPriority = 60
	PriorityInsights    SegmentPriority = 50
	PriorityActivity    SegmentPriority = 40
)

// minSegmentTokens is the smallest useful partial segment.
const minSegmentTokens = 20

// joinerTokens is the budget reserved per section boundary. Sections render
// joined by a blank line, and the estimate of the joined text can exceed the
// sum of the per-section estimates by the separator plus rounding.
const joinerTokens = 2

// segment is one candidate section of the assembled context.
type segment struct {
	section  string
	content  string
	priority SegmentPriority
	// order is the canonical render position, independent of priority.
	order int
}

// rankAndTruncate keeps the highest-priority segments that fit the budget,
// partially truncating the first one that overflows, then restores canonical
// section order for rendering.
func rankAndTruncate(segments []segment, budget int) []segment {
	if len(segments) == 0 {
		return nil
	}

	sorted := make([]segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority > sorted[j].priority
	})

	var kept []segment
	used := 0
	for _, seg := range sorted {
		cost := token.Estimate(seg.content)
		if cost == 0 {
			continue
		}
		join := 0
		if len(kept) > 0 {
			join = joinerTokens
		}
		if used+join+cost <= budget {
			kept = append(kept, seg)
			used += join + cost
			continue
		}
		remaining := budget - used - join
		if remaining >= minSegmentTokens {
			seg.content = truncateToTokens(seg.content, remaining)
			if seg.content != "" {
				kept = append(kept, seg)
			}
		}
		break
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].order < kept[j].order
	})
	return kept
}

// truncateToTokens cuts content to approximately maxTokens, preferring a line
// boundary so sections stay readable.
func truncateToTokens(content string, maxTokens int) string {
	if token.Estimate(content) <= maxTokens {
		return content
	}

	// Binary search the longest prefix within budget.
	lo, hi := 0, len(content)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if token.Estimate(content[:mid]) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	cut := content[:lo]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
