package narrow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/rootcause/internal/models"
)

// State is a dialogue's position in the narrowing protocol.
type State string

const (
	StateInit            State = "init"
	StateQuestionPending State = "question_pending"
	StateAnswered        State = "answered"
	StateDone            State = "done"
)

// Answer is a user's reply to a pending question.
type Answer string

const (
	AnswerYes  Answer = "yes"
	AnswerNo   Answer = "no"
	AnswerSkip Answer = "skip"
)

// ParseAnswer accepts yes/no/skip and their one-letter forms, case-insensitively.
func ParseAnswer(s string) (Answer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return AnswerYes, nil
	case "n", "no":
		return AnswerNo, nil
	case "s", "skip":
		return AnswerSkip, nil
	}
	return "", fmt.Errorf("invalid answer %q: want yes, no or skip", s)
}

// ErrNoPendingQuestion is returned by Answer when no question is waiting.
var ErrNoPendingQuestion = errors.New("no pending question")

// AskedQuestion is one entry of a dialogue's log. Answer is nil for a skipped question.
type AskedQuestion struct {
	Question string   `json:"question"`
	Keywords []string `json:"keywords"`
	Answer   *bool    `json:"answer"`
}

// Options are the dialogue's stopping parameters.
type Options struct {
	MaxSteps        int
	ShortlistTarget int
	GapThreshold    float64
}

// DefaultOptions returns MaxSteps 6, ShortlistTarget 1 and GapThreshold 0.15.
func DefaultOptions() Options {
	return Options{MaxSteps: 6, ShortlistTarget: 1, GapThreshold: 0.15}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxSteps <= 0 {
		o.MaxSteps = d.MaxSteps
	}
	if o.ShortlistTarget <= 0 {
		o.ShortlistTarget = d.ShortlistTarget
	}
	if o.GapThreshold <= 0 {
		o.GapThreshold = d.GapThreshold
	}
	return o
}

// ShouldStop reports whether narrowing is finished: the shortlist is small enough, the
// step budget is spent, or after at least one answer the leader is clear of the runner-up
// by the gap threshold.
func (o Options) ShouldStop(candidates []models.CandidateResult, step int) bool {
	if len(candidates) <= o.ShortlistTarget {
		return true
	}
	if step >= o.MaxSteps {
		return true
	}
	if len(candidates) >= 2 && step >= 1 {
		if candidates[0].Similarity-candidates[1].Similarity >= o.GapThreshold {
			return true
		}
	}
	return false
}

// Prune keeps the top 5 candidates after the first answer, the top 3 after the second
// and only the leader from the third on.
func Prune(candidates []models.CandidateResult, step int) []models.CandidateResult {
	limit := len(candidates)
	switch {
	case step >= 3:
		limit = 1
	case step >= 2:
		limit = 3
	case step >= 1:
		limit = 5
	}
	if len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

// Dialogue is one narrowing conversation over a fixed query. It is not safe for
// concurrent use; Registry serializes access.
type Dialogue struct {
	id         string
	query      string
	opts       Options
	state      State
	candidates []models.CandidateResult
	step       int
	asked      []AskedQuestion
	pending    *Proposal
}

// NewDialogue starts a dialogue. A list of one or no candidates is already done.
func NewDialogue(query string, candidates []models.CandidateResult, opts Options) *Dialogue {
	d := &Dialogue{
		query:      query,
		opts:       opts.withDefaults(),
		state:      StateInit,
		candidates: models.CloneCandidates(candidates),
	}
	if len(d.candidates) <= 1 {
		d.state = StateDone
	}
	return d
}

// Resume rebuilds a dialogue from a client-held question log, for callers that keep no
// server-side state. The step is the number of yes/no answers in asked.
func Resume(query string, candidates []models.CandidateResult, asked []AskedQuestion, opts Options) *Dialogue {
	d := NewDialogue(query, candidates, opts)
	d.asked = append([]AskedQuestion(nil), asked...)
	for _, q := range asked {
		if q.Answer != nil {
			d.step++
		}
	}
	if len(asked) > 0 && d.state != StateDone {
		d.state = StateAnswered
	}
	return d
}

// ID returns the registry id, or "" for an unregistered dialogue.
func (d *Dialogue) ID() string { return d.id }

// Query returns the query text the dialogue was started with.
func (d *Dialogue) Query() string { return d.query }

// State returns the current state.
func (d *Dialogue) State() State { return d.state }

// Done reports whether the dialogue has ended.
func (d *Dialogue) Done() bool { return d.state == StateDone }

// Step returns the number of yes/no answers applied.
func (d *Dialogue) Step() int { return d.step }

// Candidates returns a copy of the current ranking.
func (d *Dialogue) Candidates() []models.CandidateResult {
	return models.CloneCandidates(d.candidates)
}

// Asked returns a copy of the question log.
func (d *Dialogue) Asked() []AskedQuestion {
	out := make([]AskedQuestion, len(d.asked))
	copy(out, d.asked)
	return out
}

// Pending returns the question awaiting an answer, if any.
func (d *Dialogue) Pending() *Proposal {
	if d.pending == nil {
		return nil
	}
	p := *d.pending
	return &p
}

// Bans returns every question and keyword used so far.
func (d *Dialogue) Bans() BanSet {
	return BanSetFromAsked(d.asked)
}

// Next moves the dialogue to QUESTION_PENDING and returns the question, or returns nil
// once the dialogue is done. A pending question is returned again unchanged. Running out
// of acceptable proposals, or a proposal whose keywords are all banned, ends the
// dialogue. Any other proposer error is returned and the dialogue is left as it was.
func (d *Dialogue) Next(ctx context.Context, proposer QuestionProposer) (*Proposal, error) {
	switch d.state {
	case StateDone:
		return nil, nil
	case StateQuestionPending:
		return d.Pending(), nil
	}
	// Skipped questions do not advance the step, so the log length bounds the turns.
	if d.opts.ShouldStop(d.candidates, d.step) || len(d.asked) >= d.opts.MaxSteps {
		d.finish()
		return nil, nil
	}

	bans := d.Bans()
	prop, err := proposer.Propose(ctx, d.query, d.candidates, bans)
	if errors.Is(err, ErrNoProposal) {
		d.finish()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if bans.AllKeywordsBanned(prop.Keywords) {
		d.finish()
		return nil, nil
	}
	d.pending = &prop
	d.state = StateQuestionPending
	return d.Pending(), nil
}

// Answer applies the user's reply to the pending question. Skip only logs the question.
// Yes and No rescore, advance the step, prune the shortlist and may end the dialogue.
func (d *Dialogue) Answer(a Answer) error {
	if d.state != StateQuestionPending || d.pending == nil {
		return ErrNoPendingQuestion
	}
	q := *d.pending
	entry := AskedQuestion{Question: q.Question, Keywords: q.Keywords}

	switch a {
	case AnswerSkip:
		d.asked = append(d.asked, entry)
		d.pending = nil
		d.state = StateAnswered
		return nil
	case AnswerYes, AnswerNo:
	default:
		return fmt.Errorf("invalid answer %q", a)
	}

	yes := a == AnswerYes
	entry.Answer = &yes
	d.candidates = Prune(ApplyAnswer(yes, q.Keywords, d.candidates), d.step+1)
	d.asked = append(d.asked, entry)
	d.step++
	d.pending = nil
	d.state = StateAnswered
	if d.opts.ShouldStop(d.candidates, d.step) {
		d.finish()
	}
	return nil
}

// Respond answers the pending question and proposes the next one.
func (d *Dialogue) Respond(ctx context.Context, proposer QuestionProposer, a Answer) (*Proposal, error) {
	if err := d.Answer(a); err != nil {
		return nil, err
	}
	return d.Next(ctx, proposer)
}

func (d *Dialogue) finish() {
	d.pending = nil
	d.state = StateDone
}

// Outcome is the result presented when a dialogue ends.
type Outcome struct {
	Resolved   bool                     `json:"resolved"`
	Answer     *models.CandidateResult  `json:"answer,omitempty"`
	Candidates []models.CandidateResult `json:"candidates"`
}

// Outcome returns the single remaining candidate as the answer, or the remaining ranking
// as a tie.
func (d *Dialogue) Outcome() Outcome {
	out := Outcome{Candidates: d.Candidates()}
	if len(out.Candidates) == 1 {
		out.Resolved = true
		out.Answer = &out.Candidates[0]
	}
	return out
}

// Snapshot is a serializable view of a dialogue.
type Snapshot struct {
	ID         string                   `json:"id,omitempty"`
	Query      string                   `json:"query"`
	State      State                    `json:"state"`
	Step       int                      `json:"step"`
	Done       bool                     `json:"done"`
	Pending    *Proposal                `json:"pending,omitempty"`
	Asked      []AskedQuestion          `json:"asked"`
	Candidates []models.CandidateResult `json:"candidates"`
	Outcome    *Outcome                 `json:"outcome,omitempty"`
}

// Snapshot captures the dialogue's current state.
func (d *Dialogue) Snapshot() Snapshot {
	s := Snapshot{
		ID:         d.id,
		Query:      d.query,
		State:      d.state,
		Step:       d.step,
		Done:       d.Done(),
		Pending:    d.Pending(),
		Asked:      d.Asked(),
		Candidates: d.Candidates(),
	}
	if s.Done {
		o := d.Outcome()
		s.Outcome = &o
	}
	return s
}
