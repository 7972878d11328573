package ingest

import (
	"strings"
	"unicode"

	"github.com/hyperjump/rootcause/internal/models"
)

// Normalize canonicalizes labels, collapses whitespace in the text fields and drops
// records with an unreasonable component or an empty fault description. It returns the
// kept records and the number dropped.
func Normalize(records []models.Record) ([]models.Record, int) {
	out := make([]models.Record, 0, len(records))
	dropped := 0
	for _, r := range records {
		c := r.Canonical()
		c.FaultDescription = collapseSpace(c.FaultDescription)
		c.RootCause = collapseSpace(c.RootCause)
		c.CorrectiveAction = collapseSpace(c.CorrectiveAction)
		if !models.IsReasonableComponent(c.Component) || c.FaultDescription == "" {
			dropped++
			continue
		}
		out = append(out, c)
	}
	return out, dropped
}

// collapseSpace trims text and replaces each run of whitespace with one space.
func collapseSpace(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
