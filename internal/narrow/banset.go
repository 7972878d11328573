// Package narrow implements the yes/no disambiguation dialogue that shrinks a ranked
// candidate list to a single answer.
package narrow

import (
	"sort"
	"strings"

	"github.com/hyperjump/rootcause/pkg/utils"
)

// BanSet holds the questions and keywords a dialogue has already used. Both lists are
// case-folded, de-duplicated and sorted. The zero value bans nothing.
type BanSet struct {
	Keywords  []string `json:"banned_keywords"`
	Questions []string `json:"banned_questions"`
}

// NewBanSet builds a BanSet from raw keywords and questions.
func NewBanSet(keywords, questions []string) BanSet {
	return BanSet{
		Keywords:  foldedSet(nil, keywords),
		Questions: foldedSet(nil, questions),
	}
}

// BanSetFromAsked bans every question and keyword in the asked log, answered or skipped.
func BanSetFromAsked(asked []AskedQuestion) BanSet {
	var b BanSet
	for _, a := range asked {
		b = b.With(a.Question, a.Keywords)
	}
	return b
}

// With returns a copy of b that also bans question and keywords.
func (b BanSet) With(question string, keywords []string) BanSet {
	return BanSet{
		Keywords:  foldedSet(b.Keywords, keywords),
		Questions: foldedSet(b.Questions, []string{question}),
	}
}

// QuestionTooSimilar reports whether q equals, contains, or is contained in a banned
// question after case folding. A blank question is never too similar.
func (b BanSet) QuestionTooSimilar(q string) bool {
	qn := utils.Fold(q)
	if qn == "" {
		return false
	}
	for _, banned := range b.Questions {
		if qn == banned || strings.Contains(banned, qn) || strings.Contains(qn, banned) {
			return true
		}
	}
	return false
}

// KeywordOverlap reports whether any keyword is banned.
func (b BanSet) KeywordOverlap(keywords []string) bool {
	for _, k := range keywords {
		if b.hasKeyword(utils.Fold(k)) {
			return true
		}
	}
	return false
}

// AllKeywordsBanned reports whether every keyword is already banned. It is true for an
// empty list, since such a question cannot move any score.
func (b BanSet) AllKeywordsBanned(keywords []string) bool {
	for _, k := range keywords {
		if !b.hasKeyword(utils.Fold(k)) {
			return false
		}
	}
	return true
}

func (b BanSet) hasKeyword(k string) bool {
	i := sort.SearchStrings(b.Keywords, k)
	return i < len(b.Keywords) && b.Keywords[i] == k
}

// foldedSet merges base (already folded and sorted) with extra into a new sorted set.
func foldedSet(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			s = utils.Fold(s)
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
