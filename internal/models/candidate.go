package models

// CandidateResult is a ranked projection of a stored record. Similarity starts as the
// cosine similarity of the match and is adjusted by narrowing answers.
type CandidateResult struct {
	Component               string  `json:"component"`
	Model                   string  `json:"model,omitempty"`
	MatchedFaultDescription string  `json:"matched_fault_description"`
	RootCause               string  `json:"root_cause"`
	CorrectiveAction        string  `json:"corrective_action"`
	Similarity              float64 `json:"similarity"`
}

// NewCandidate projects r with the given similarity score.
func NewCandidate(r Record, similarity float64) CandidateResult {
	return CandidateResult{
		Component:               r.Component,
		Model:                   r.Model,
		MatchedFaultDescription: r.FaultDescription,
		RootCause:               r.RootCause,
		CorrectiveAction:        r.CorrectiveAction,
		Similarity:              similarity,
	}
}

// CombinedText is the case-folded text searched for narrowing keywords.
func (c CandidateResult) CombinedText() string {
	return combinedText(c.MatchedFaultDescription, c.RootCause, c.CorrectiveAction)
}

// CloneCandidates returns a copy of cs so callers can reorder without aliasing.
func CloneCandidates(cs []CandidateResult) []CandidateResult {
	if cs == nil {
		return nil
	}
	out := make([]CandidateResult, len(cs))
	copy(out, cs)
	return out
}
