package narrow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/llm"
	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/pkg/utils"
)

const (
	// DefaultMaxAttempts bounds provider calls per proposal.
	DefaultMaxAttempts = 3
	// MaxPromptCandidates is the number of top candidates shown to the provider.
	MaxPromptCandidates = 5
	// MaxKeywords is the number of keywords kept from a proposal.
	MaxKeywords = 6
)

// ErrNoProposal means no acceptable question could be obtained. It ends a dialogue and is
// not a failure of the request.
var ErrNoProposal = errors.New("no acceptable question proposal")

// Proposal is an accepted question with its normalized "yes" keywords.
type Proposal struct {
	Question  string   `json:"question"`
	Keywords  []string `json:"keywords"`
	Rationale string   `json:"rationale,omitempty"`
}

// QuestionProposer produces the next question for a candidate set.
type QuestionProposer interface {
	Propose(ctx context.Context, query string, candidates []models.CandidateResult, bans BanSet) (Proposal, error)
}

// Proposer asks a QuestionProvider for questions and rejects ones that repeat banned
// questions or keywords.
type Proposer struct {
	provider    llm.QuestionProvider
	maxAttempts int
	logger      *zap.Logger
}

// ProposerOption configures a Proposer.
type ProposerOption func(*Proposer)

// WithMaxAttempts sets the attempt budget per proposal.
func WithMaxAttempts(n int) ProposerOption {
	return func(p *Proposer) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithLogger sets the logger for rejected attempts.
func WithLogger(logger *zap.Logger) ProposerOption {
	return func(p *Proposer) {
		p.logger = logger
	}
}

// NewProposer creates a Proposer over provider.
func NewProposer(provider llm.QuestionProvider, opts ...ProposerOption) *Proposer {
	p := &Proposer{provider: provider, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Propose returns a question that is not too similar to any banned question and whose
// keywords are all unbanned. Each malformed, empty, or rejected reply and each provider
// failure uses one attempt. When attempts run out it returns ErrNoProposal, unless every
// attempt failed at the provider, in which case the last provider error is returned.
func (p *Proposer) Propose(ctx context.Context, query string, candidates []models.CandidateResult, bans BanSet) (Proposal, error) {
	req := llm.QuestionRequest{
		Query:           query,
		Candidates:      promptCandidates(candidates),
		BannedKeywords:  nonNil(bans.Keywords),
		BannedQuestions: nonNil(bans.Questions),
	}

	var lastErr error
	replies := 0
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Proposal{}, err
		}
		resp, err := p.provider.Propose(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return Proposal{}, ctx.Err()
			}
			if errors.Is(err, llm.ErrMalformedResponse) {
				replies++
			}
			lastErr = err
			p.logger.Debug("question attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			req.Rejections++
			continue
		}
		replies++

		prop := normalize(resp)
		switch {
		case prop.Question == "":
			p.logger.Debug("question attempt empty", zap.Int("attempt", attempt))
		case bans.QuestionTooSimilar(prop.Question):
			p.logger.Debug("question attempt repeats a banned question",
				zap.Int("attempt", attempt), zap.String("question", prop.Question))
		case bans.KeywordOverlap(prop.Keywords):
			p.logger.Debug("question attempt reuses banned keywords",
				zap.Int("attempt", attempt), zap.Strings("keywords", prop.Keywords))
		default:
			return prop, nil
		}
		req.Rejections++
	}
	if replies == 0 && lastErr != nil {
		return Proposal{}, fmt.Errorf("propose question: %w", lastErr)
	}
	return Proposal{}, ErrNoProposal
}

// normalize trims the question and keeps at most MaxKeywords distinct, case-folded,
// non-empty keywords.
func normalize(resp *llm.QuestionResponse) Proposal {
	prop := Proposal{
		Question:  strings.TrimSpace(resp.Question),
		Rationale: strings.TrimSpace(resp.Rationale),
	}
	seen := make(map[string]struct{}, len(resp.Keywords))
	for _, k := range resp.Keywords {
		k = utils.Fold(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		prop.Keywords = append(prop.Keywords, k)
		if len(prop.Keywords) == MaxKeywords {
			break
		}
	}
	return prop
}

func promptCandidates(candidates []models.CandidateResult) []llm.CandidateContext {
	n := min(len(candidates), MaxPromptCandidates)
	out := make([]llm.CandidateContext, n)
	for i, c := range candidates[:n] {
		out[i] = llm.CandidateContext{
			Component:        c.Component,
			Model:            c.Model,
			FaultDescription: c.MatchedFaultDescription,
			RootCause:        c.RootCause,
			CorrectiveAction: c.CorrectiveAction,
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
