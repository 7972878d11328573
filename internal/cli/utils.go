// Package cli provides output formatting and the interactive narrowing loop for the
// rootcause command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/rootcause/internal/ingest"
	"github.com/hyperjump/rootcause/internal/keyword"
	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/internal/narrow"
	"github.com/hyperjump/rootcause/internal/storage"
	"github.com/hyperjump/rootcause/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat accepts "text" or "json".
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteCandidates writes a diagnose result list.
func WriteCandidates(w io.Writer, query string, candidates []models.CandidateResult, format OutputFormat) error {
	if format == OutputJSON {
		if candidates == nil {
			candidates = []models.CandidateResult{}
		}
		return writeJSON(w, map[string]interface{}{"query": query, "candidates": candidates, "count": len(candidates)})
	}
	if len(candidates) == 0 {
		fmt.Fprintf(w, "\nNo matching faults for %q\n", query)
		return nil
	}
	fmt.Fprintf(w, "\n%d candidate(s) for %q\n\n", len(candidates), query)
	for i, c := range candidates {
		writeCandidate(w, i+1, c)
	}
	return nil
}

func writeCandidate(w io.Writer, rank int, c models.CandidateResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	label := c.Component
	if c.Model != "" {
		label += " / " + c.Model
	}
	fmt.Fprintf(w, "#%d [%s] similarity %.4f\n", rank, label, c.Similarity)
	fmt.Fprintf(w, "Fault:  %s\n", Truncate(c.MatchedFaultDescription, 200))
	fmt.Fprintf(w, "Cause:  %s\n", Truncate(c.RootCause, 200))
	fmt.Fprintf(w, "Action: %s\n\n", Truncate(c.CorrectiveAction, 200))
}

// WriteOutcome writes the end of a narrowing dialogue.
func WriteOutcome(w io.Writer, o narrow.Outcome, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, o)
	}
	switch {
	case o.Resolved:
		fmt.Fprintln(w, "\nMost likely root cause:")
		writeCandidate(w, 1, *o.Answer)
	case len(o.Candidates) == 0:
		fmt.Fprintln(w, "\nNo candidates left.")
	default:
		fmt.Fprintf(w, "\nCould not separate %d candidates:\n\n", len(o.Candidates))
		for i, c := range o.Candidates {
			writeCandidate(w, i+1, c)
		}
	}
	return nil
}

// WriteIngestResult writes an ingest summary.
func WriteIngestResult(w io.Writer, res ingest.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "added:      %d\n", res.Added)
	fmt.Fprintf(w, "skipped:    %d   # already known fault descriptions\n", res.Skipped)
	fmt.Fprintf(w, "invalid:    %d   # blank description or unusable component\n", res.Invalid)
	fmt.Fprintf(w, "components: %s\n", strings.Join(res.Components, ", "))
	return nil
}

// WriteHits writes keyword lookup results.
func WriteHits(w io.Writer, terms string, hits []keyword.Hit, format OutputFormat) error {
	if format == OutputJSON {
		if hits == nil {
			hits = []keyword.Hit{}
		}
		return writeJSON(w, map[string]interface{}{"query": terms, "hits": hits, "count": len(hits)})
	}
	if len(hits) == 0 {
		fmt.Fprintf(w, "No records contain %q\n", terms)
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%.3f  [%s] %s -> %s\n", h.Score, h.Record.Component,
			TruncateWords(h.Record.FaultDescription, 12), TruncateWords(h.Record.RootCause, 8))
	}
	return nil
}

// Status summarizes the local data directory.
type Status struct {
	Rows        int           `json:"rows"`
	CatalogRows int64         `json:"catalog_rows"`
	Dimensions  int           `json:"dimensions"`
	VectorIndex string        `json:"vector_index"`
	Components  []string      `json:"components"`
	Embedding   string        `json:"embedding"`
	LLM         string        `json:"llm"`
	DiskUsage   storage.Usage `json:"disk_usage"`
}

// WriteStatus writes s.
func WriteStatus(w io.Writer, s Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "rows:           %d   # records in the vector store\n", s.Rows)
	fmt.Fprintf(w, "catalog_rows:   %d\n", s.CatalogRows)
	fmt.Fprintf(w, "dimensions:     %d\n", s.Dimensions)
	fmt.Fprintf(w, "vector_index:   %s\n", s.VectorIndex)
	fmt.Fprintf(w, "components:     %s\n", strings.Join(s.Components, ", "))
	fmt.Fprintf(w, "embedding:      %s\n", s.Embedding)
	fmt.Fprintf(w, "llm:            %s\n", s.LLM)
	fmt.Fprintf(w, "disk_usage:     %d bytes\n", s.DiskUsage.TotalBytes)
	return nil
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
