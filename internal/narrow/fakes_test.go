package narrow

import (
	"context"
	"fmt"

	"github.com/hyperjump/rootcause/internal/llm"
	"github.com/hyperjump/rootcause/internal/models"
)

// scriptedProvider replays replies in order and repeats the last one.
type scriptedProvider struct {
	replies  []reply
	requests []llm.QuestionRequest
}

type reply struct {
	resp *llm.QuestionResponse
	err  error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Propose(_ context.Context, req llm.QuestionRequest) (*llm.QuestionResponse, error) {
	p.requests = append(p.requests, req)
	r := p.replies[min(len(p.requests), len(p.replies))-1]
	if r.err != nil {
		return nil, r.err
	}
	cp := *r.resp
	return &cp, nil
}

func ok(question string, keywords ...string) reply {
	return reply{resp: &llm.QuestionResponse{Question: question, Keywords: keywords}}
}

// freshProvider always proposes a question and keyword never seen before.
type freshProvider struct {
	n int
}

func (p *freshProvider) Name() string { return "fresh" }

func (p *freshProvider) Propose(_ context.Context, _ llm.QuestionRequest) (*llm.QuestionResponse, error) {
	p.n++
	return &llm.QuestionResponse{
		Question: fmt.Sprintf("Distinct question number %d?", p.n),
		Keywords: []string{fmt.Sprintf("kw%d", p.n)},
	}, nil
}

// fixedProposer returns a canned proposal or error without ban checks.
type fixedProposer struct {
	prop  Proposal
	err   error
	calls int
	bans  []BanSet
}

func (p *fixedProposer) Propose(_ context.Context, _ string, _ []models.CandidateResult, bans BanSet) (Proposal, error) {
	p.calls++
	p.bans = append(p.bans, bans)
	return p.prop, p.err
}

func ranked(sims ...float64) []models.CandidateResult {
	out := make([]models.CandidateResult, len(sims))
	for i, s := range sims {
		out[i] = models.CandidateResult{
			Component:               "motor",
			MatchedFaultDescription: fmt.Sprintf("fault %d", i),
			Similarity:              s,
		}
	}
	return out
}
