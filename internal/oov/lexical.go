package oov

import (
	"math"

	"github.com/agnivade/levenshtein"
	"github.com/geo-recog/internal/normalizer"
	"github.com/xrash/smetrics"
)

// nearestLexical scores text against the romanized vocabulary with the
// better of Jaro-Winkler and normalized Levenshtein. First entry wins ties.
func (n *Normalizer) nearestLexical(text string) (int, float64) {
	query := normalizer.Romanize(text)
	best, bestScore := 0, -1.0
	for i, entry := range n.lexical {
		score := lexicalScore(query, entry)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

func lexicalScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	score := smetrics.JaroWinkler(a, b, 0.7, 4)

	dist := levenshtein.ComputeDistance(a, b)
	maxLen := math.Max(float64(len([]rune(a))), float64(len([]rune(b))))
	if lev := 1.0 - float64(dist)/maxLen; lev > score {
		score = lev
	}
	return score
}
