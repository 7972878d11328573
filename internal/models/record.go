// Package models defines core data structures for fault records, diagnose queries, and candidates.
package models

import "strings"

// Record is one known fault case.
// FaultDescription is unique across the store and is the de-duplication key.
type Record struct {
	Component        string `json:"component" db:"component"`
	Model            string `json:"model,omitempty" db:"model"`
	FaultDescription string `json:"fault_description" db:"fault_description"`
	RootCause        string `json:"root_cause" db:"root_cause"`
	CorrectiveAction string `json:"corrective_action" db:"corrective_action"`
}

// Canonical returns a copy with component and model reduced to canonical labels
// and the free-text fields trimmed.
func (r Record) Canonical() Record {
	return Record{
		Component:        CanonicalLabel(r.Component),
		Model:            CanonicalLabel(r.Model),
		FaultDescription: strings.TrimSpace(r.FaultDescription),
		RootCause:        strings.TrimSpace(r.RootCause),
		CorrectiveAction: strings.TrimSpace(r.CorrectiveAction),
	}
}

// CombinedText is the case-folded text searched for narrowing keywords.
func (r Record) CombinedText() string {
	return combinedText(r.FaultDescription, r.RootCause, r.CorrectiveAction)
}

func combinedText(description, cause, action string) string {
	return strings.ToLower(description + " " + cause + " " + action)
}
