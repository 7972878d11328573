package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/metrics"
	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/internal/narrow"
)

func (s *Server) narrowOptions() narrow.Options {
	return narrow.Options{
		MaxSteps:        s.cfg.Narrow.MaxSteps,
		ShortlistTarget: s.cfg.Narrow.ShortlistTarget,
		GapThreshold:    s.cfg.Narrow.GapThreshold,
	}
}

func (s *Server) narrowingEnabled(w http.ResponseWriter) bool {
	if s.proposer == nil || s.dialogues == nil {
		s.respondError(w, http.StatusServiceUnavailable, "narrowing disabled: no question provider configured")
		return false
	}
	return true
}

// respondProposerFailure reports provider failures as a bad gateway.
func (s *Server) respondProposerFailure(w http.ResponseWriter, op string, err error) {
	metrics.NarrowQuestionsTotal.WithLabelValues("error").Inc()
	if errorStatus(err) != http.StatusInternalServerError {
		s.respondFailure(w, op, err)
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	s.respondError(w, http.StatusBadGateway, fmt.Sprintf("question provider unavailable: %v", err))
}

// advance asks for the dialogue's next question and records the transition.
func (s *Server) advance(ctx context.Context, d *narrow.Dialogue) (*narrow.Proposal, error) {
	wasPending, wasDone := d.State() == narrow.StateQuestionPending, d.Done()
	q, err := d.Next(ctx, s.proposer)
	if err != nil {
		return nil, err
	}
	switch {
	case q != nil && !wasPending:
		metrics.NarrowQuestionsTotal.WithLabelValues("proposed").Inc()
	case d.Done() && !wasDone:
		recordOutcome(d)
	}
	return q, nil
}

func recordOutcome(d *narrow.Dialogue) {
	outcome := "tie"
	if d.Outcome().Resolved {
		outcome = "resolved"
	}
	metrics.NarrowOutcomesTotal.WithLabelValues(outcome).Inc()
}

type proposeRequest struct {
	Query      string                   `json:"query"`
	Candidates []models.CandidateResult `json:"candidates"`
	Asked      []narrow.AskedQuestion   `json:"asked"`
}

type proposeResponse struct {
	Done      bool            `json:"done"`
	Question  string          `json:"question,omitempty"`
	Keywords  []string        `json:"keywords,omitempty"`
	Rationale string          `json:"rationale,omitempty"`
	Outcome   *narrow.Outcome `json:"outcome,omitempty"`
}

// handleNarrowPropose serves clients that hold the dialogue state themselves.
func (s *Server) handleNarrowPropose(w http.ResponseWriter, r *http.Request) {
	if !s.narrowingEnabled(w) {
		return
	}
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d := narrow.Resume(req.Query, req.Candidates, req.Asked, s.narrowOptions())
	q, err := s.advance(r.Context(), d)
	if err != nil {
		s.respondProposerFailure(w, "propose", err)
		return
	}
	if q == nil {
		o := d.Outcome()
		s.respondJSON(w, http.StatusOK, proposeResponse{Done: true, Outcome: &o})
		return
	}
	s.respondJSON(w, http.StatusOK, proposeResponse{Question: q.Question, Keywords: q.Keywords, Rationale: q.Rationale})
}

type applyRequest struct {
	Answer     string                   `json:"answer"`
	Keywords   []string                 `json:"keywords"`
	Candidates []models.CandidateResult `json:"candidates"`
	Step       int                      `json:"step"` // yes/no answers applied before this one
}

type applyResponse struct {
	Candidates []models.CandidateResult `json:"candidates"`
	Step       int                      `json:"step"`
	Done       bool                     `json:"done"`
}

func (s *Server) handleNarrowApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, err := narrow.ParseAnswer(req.Answer)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.NarrowAnswersTotal.WithLabelValues(string(answer)).Inc()
	resp := applyResponse{Candidates: nonNilCandidates(req.Candidates), Step: req.Step}
	if answer != narrow.AnswerSkip {
		resp.Step++
		resp.Candidates = narrow.Prune(narrow.ApplyAnswer(answer == narrow.AnswerYes, req.Keywords, req.Candidates), resp.Step)
	}
	resp.Done = s.narrowOptions().ShouldStop(resp.Candidates, resp.Step)
	s.respondJSON(w, http.StatusOK, resp)
}

type dialogueStartRequest struct {
	Query         string  `json:"query"`
	Component     string  `json:"component,omitempty"`
	Model         string  `json:"model,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
	MinSimilarity float64 `json:"min_similarity,omitempty"`
}

func (s *Server) handleDialogueStart(w http.ResponseWriter, r *http.Request) {
	if !s.narrowingEnabled(w) {
		return
	}
	var req dialogueStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query := models.DiagnoseQuery{
		Query:         req.Query,
		Component:     req.Component,
		Model:         req.Model,
		TopK:          req.TopK,
		MinSimilarity: req.MinSimilarity,
	}
	if err := s.applySearchDefaults(&query); err != nil {
		s.respondFailure(w, "start dialogue", err)
		return
	}
	candidates, err := s.engine.Diagnose(r.Context(), &query)
	if err != nil {
		s.respondFailure(w, "start dialogue", err)
		return
	}

	id := s.dialogues.Add(narrow.NewDialogue(query.Query, candidates, s.narrowOptions()))
	metrics.ActiveDialogues.Set(float64(s.dialogues.Len()))
	var snap narrow.Snapshot
	err = s.dialogues.Do(id, func(d *narrow.Dialogue) error {
		_, err := s.advance(r.Context(), d)
		snap = d.Snapshot()
		return err
	})
	if err != nil {
		s.dialogues.Remove(id)
		s.respondProposerFailure(w, "start dialogue", err)
		return
	}
	s.logger.Debug("dialogue started", zap.String("id", id), zap.Int("candidates", len(candidates)))
	s.respondJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleDialogueGet(w http.ResponseWriter, r *http.Request) {
	if !s.narrowingEnabled(w) {
		return
	}
	var snap narrow.Snapshot
	err := s.dialogues.Do(chi.URLParam(r, "id"), func(d *narrow.Dialogue) error {
		snap = d.Snapshot()
		return nil
	})
	if err != nil {
		s.respondFailure(w, "get dialogue", err)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) handleDialogueAnswer(w http.ResponseWriter, r *http.Request) {
	if !s.narrowingEnabled(w) {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, err := narrow.ParseAnswer(req.Answer)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var snap narrow.Snapshot
	var answerErr error
	err = s.dialogues.Do(chi.URLParam(r, "id"), func(d *narrow.Dialogue) error {
		if answerErr = d.Answer(answer); answerErr != nil {
			return answerErr
		}
		metrics.NarrowAnswersTotal.WithLabelValues(string(answer)).Inc()
		if d.Done() {
			recordOutcome(d)
		}
		_, err := s.advance(r.Context(), d)
		snap = d.Snapshot()
		return err
	})
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, snap)
	case answerErr != nil || errorStatus(err) != http.StatusInternalServerError:
		s.respondFailure(w, "answer dialogue", err)
	default:
		// The answer is kept; POST .../next asks again.
		s.respondProposerFailure(w, "answer dialogue", err)
	}
}

// handleDialogueNext returns the pending question, or asks for one after a provider
// failure left the dialogue waiting.
func (s *Server) handleDialogueNext(w http.ResponseWriter, r *http.Request) {
	if !s.narrowingEnabled(w) {
		return
	}
	var snap narrow.Snapshot
	err := s.dialogues.Do(chi.URLParam(r, "id"), func(d *narrow.Dialogue) error {
		_, err := s.advance(r.Context(), d)
		snap = d.Snapshot()
		return err
	})
	if err != nil {
		s.respondProposerFailure(w, "next question", err)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDialogueDelete(w http.ResponseWriter, r *http.Request) {
	if !s.narrowingEnabled(w) {
		return
	}
	if !s.dialogues.Remove(chi.URLParam(r, "id")) {
		s.respondFailure(w, "delete dialogue", narrow.ErrDialogueNotFound)
		return
	}
	metrics.ActiveDialogues.Set(float64(s.dialogues.Len()))
	w.WriteHeader(http.StatusNoContent)
}
