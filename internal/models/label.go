package models

import (
	"regexp"
	"strings"
)

var labelSynonyms = map[string]string{
	"motors":      "motor",
	"pumps":       "pump",
	"compressors": "compressor",
}

var wordish = regexp.MustCompile(`^[a-z0-9][a-z0-9 _\-/]{0,40}$`)

// CanonicalLabel lowercases, trims, and maps known plural synonyms to their singular label.
func CanonicalLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if canon, ok := labelSynonyms[s]; ok {
		return canon
	}
	return s
}

// IsReasonableComponent rejects component values that look like sentences or stray CSV
// fragments: punctuation, more than three words, or characters outside a short label alphabet.
// s is expected to be canonical already.
func IsReasonableComponent(s string) bool {
	if s == "" {
		return false
	}
	if strings.ContainsAny(s, ",.") {
		return false
	}
	if len(strings.Fields(s)) > 3 {
		return false
	}
	return wordish.MatchString(s)
}
