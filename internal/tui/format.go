package tui

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

// FormatScore renders a similarity score with three decimals.
func FormatScore(score float32) string {
	return fmt.Sprintf("%.3f", score)
}

// FormatSources lists the retrieved chunks as "id (score)" pairs.
func FormatSources(res *pipeline.Result) string {
	if res == nil || len(res.Hits) == 0 {
		return "none"
	}
	parts := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		parts[i] = fmt.Sprintf("%s (%s)", h.Chunk.ID, FormatScore(h.Score))
	}
	return strings.Join(parts, ", ")
}

// FormatDuration renders an elapsed time in seconds with one decimal.
func FormatDuration(seconds float64) string {
	if seconds < 1 {
		return fmt.Sprintf("%.0fms", seconds*1000)
	}
	return fmt.Sprintf("%.1fs", seconds)
}
