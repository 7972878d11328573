// Package llm talks to chat models that propose discriminating yes/no questions for a
// set of candidate fault records.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when the model reply is not the expected JSON object.
var ErrMalformedResponse = errors.New("malformed question response")

// SystemPrompt instructs the model to produce one discriminating question and keywords.
const SystemPrompt = `You are assisting a maintenance technician. You will see 2–5 candidate fault cases
(component/model + fault description + root cause + corrective action) and a free-text user query.
Propose ONE short yes/no question that best discriminates between these candidates. Also provide
3–6 lowercase keywords to look for in text that indicate a "Yes" answer.

Rules:
- Keep the question 8–16 words, unambiguous, technician-friendly.
- Avoid jargon or multi-part questions.
- The question MUST target a different signal than any previously asked questions.
- NONE of the keywords may match any banned keywords (exact string match).
- Return JSON ONLY with keys: question, keywords (array of strings), rationale.
- Do NOT include any other text.
`

// FeedbackNote is appended once per rejected attempt.
const FeedbackNote = "The previous suggestion overlapped with banned items. Ask about a DIFFERENT symptom and provide NEW, distinct keywords."

// CandidateContext is the part of a candidate record shown to the model.
type CandidateContext struct {
	Component        string `json:"component"`
	Model            string `json:"model"`
	FaultDescription string `json:"fault_description"`
	RootCause        string `json:"root_cause"`
	CorrectiveAction string `json:"corrective_action"`
}

// QuestionRequest is one proposal attempt.
type QuestionRequest struct {
	Query           string             `json:"query"`
	Candidates      []CandidateContext `json:"candidates"`
	BannedKeywords  []string           `json:"banned_keywords"`
	BannedQuestions []string           `json:"banned_questions"`
	// Rejections is the number of earlier attempts in this proposal that were rejected.
	Rejections int `json:"-"`
}

// QuestionResponse is the model's proposal, not yet checked against the ban lists.
type QuestionResponse struct {
	Question  string   `json:"question"`
	Keywords  []string `json:"keywords"`
	Rationale string   `json:"rationale"`
}

// QuestionProvider proposes a question for a request. Implementations make exactly one
// model call per Propose.
type QuestionProvider interface {
	Propose(ctx context.Context, req QuestionRequest) (*QuestionResponse, error)
	Name() string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildMessages renders the system prompt, the request context and one feedback note per
// earlier rejection.
func buildMessages(req QuestionRequest) ([]chatMessage, error) {
	ctxJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal question context: %w", err)
	}
	msgs := []chatMessage{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: string(ctxJSON)},
	}
	for i := 0; i < req.Rejections; i++ {
		msgs = append(msgs, chatMessage{Role: "system", Content: FeedbackNote})
	}
	return msgs, nil
}

// ParseResponse decodes model output into a QuestionResponse. Non-string keywords are
// rendered as text; anything that is not a JSON object is ErrMalformedResponse.
func ParseResponse(content string) (*QuestionResponse, error) {
	var raw struct {
		Question  any   `json:"question"`
		Keywords  []any `json:"keywords"`
		Rationale any   `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	resp := &QuestionResponse{
		Question:  asText(raw.Question),
		Rationale: asText(raw.Rationale),
	}
	for _, k := range raw.Keywords {
		if s := asText(k); s != "" {
			resp.Keywords = append(resp.Keywords, s)
		}
	}
	return resp, nil
}

func asText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func temperatureOrDefault(t *float64) float64 {
	if t == nil || *t < 0 {
		return DefaultTemperature
	}
	return *t
}
