package rag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/VeritasAI/veritas-engine/engine/domain"
)

// neutralScore is used when the scorer's reply cannot be parsed. A flaky
// scorer degrades to threshold comparison against this value instead of
// failing the whole request.
const neutralScore = 0.5

// parseScore extracts a faithfulness score from a scorer reply. The reply
// should be a bare number, but models sometimes wrap it in prose, so the
// first parsable token wins. The result is clamped to [0,1].
func parseScore(reply string) (float64, error) {
	for _, tok := range strings.Fields(reply) {
		tok = strings.Trim(tok, ".,:;()[]")
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		return clamp01(v), nil
	}
	return 0, fmt.Errorf("rag: %w: %q", domain.ErrScoreParse, truncate(reply, 80))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
