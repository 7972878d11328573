package narrow

import (
	"math"
	"sort"
	"strings"

	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/pkg/utils"
)

const (
	// PerKeywordBoost is the score change per matching keyword.
	PerKeywordBoost = 0.07
	// MaxAdjustment caps the score change from a single answer.
	MaxAdjustment = 0.15
)

// KeywordHits counts the keywords that occur in text. text must already be case-folded.
func KeywordHits(keywords []string, text string) int {
	hits := 0
	for _, k := range keywords {
		k = utils.Fold(k)
		if k != "" && strings.Contains(text, k) {
			hits++
		}
	}
	return hits
}

// Adjustment returns the score delta for a candidate with the given number of hits.
func Adjustment(yes bool, hits int) float64 {
	delta := math.Min(MaxAdjustment, PerKeywordBoost*float64(hits))
	if !yes {
		delta = -delta
	}
	return delta
}

// ApplyAnswer rescores candidates by keyword evidence in their combined text and returns
// a new slice sorted by descending similarity. Equal scores keep their prior order. The
// input slice is not modified.
func ApplyAnswer(yes bool, keywords []string, candidates []models.CandidateResult) []models.CandidateResult {
	out := models.CloneCandidates(candidates)
	for i := range out {
		out[i].Similarity += Adjustment(yes, KeywordHits(keywords, out[i].CombinedText()))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}
