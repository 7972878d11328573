package server

import (
	"errors"
	"net/http"
	"testing"

	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/internal/narrow"
)

func TestDialogueLifecycle(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	w := f.do(t, http.MethodPost, "/api/v1/dialogues", map[string]interface{}{"query": "smells burnt"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start: got %d: %s", w.Code, w.Body.String())
	}
	var snap narrow.Snapshot
	decode(t, w, &snap)
	if snap.ID == "" || snap.State != narrow.StateQuestionPending || snap.Pending == nil {
		t.Fatalf("start snapshot = %+v", snap)
	}
	if len(snap.Candidates) != 3 {
		t.Errorf("candidates = %d", len(snap.Candidates))
	}

	for i := 0; !snap.Done; i++ {
		if i > narrow.DefaultOptions().MaxSteps {
			t.Fatal("dialogue did not finish")
		}
		w = f.do(t, http.MethodPost, "/api/v1/dialogues/"+snap.ID+"/answer", map[string]string{"answer": "yes"})
		if w.Code != http.StatusOK {
			t.Fatalf("answer: got %d: %s", w.Code, w.Body.String())
		}
		snap = narrow.Snapshot{}
		decode(t, w, &snap)
	}
	if snap.Outcome == nil || len(snap.Outcome.Candidates) == 0 {
		t.Fatalf("outcome = %+v", snap.Outcome)
	}

	var again narrow.Snapshot
	decode(t, f.do(t, http.MethodGet, "/api/v1/dialogues/"+snap.ID, nil), &again)
	if !again.Done || again.Step != snap.Step {
		t.Errorf("get = %+v", again)
	}

	w = f.do(t, http.MethodPost, "/api/v1/dialogues/"+snap.ID+"/answer", map[string]string{"answer": "no"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("answer after done: got %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/v1/dialogues/"+snap.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete: got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/dialogues/"+snap.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d", w.Code)
	}
}

func TestDialogue_SkipKeepsStep(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	var snap narrow.Snapshot
	decode(t, f.do(t, http.MethodPost, "/api/v1/dialogues", map[string]interface{}{"query": "smells burnt"}), &snap)
	w := f.do(t, http.MethodPost, "/api/v1/dialogues/"+snap.ID+"/answer", map[string]string{"answer": "s"})
	if w.Code != http.StatusOK {
		t.Fatalf("skip: got %d", w.Code)
	}
	snap = narrow.Snapshot{}
	decode(t, w, &snap)
	if snap.Step != 0 || len(snap.Asked) != 1 || snap.Asked[0].Answer != nil {
		t.Errorf("after skip = %+v", snap)
	}
}

func TestDialogue_InvalidAnswerAndUnknownID(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	if w := f.do(t, http.MethodPost, "/api/v1/dialogues/nope/answer", map[string]string{"answer": "maybe"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid answer: got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/dialogues/nope/answer", map[string]string{"answer": "yes"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/dialogues/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id get: got %d", w.Code)
	}
}

func TestDialogue_ProviderFailure(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.proposer.err = errors.New("connection refused")
	w := f.do(t, http.MethodPost, "/api/v1/dialogues", map[string]interface{}{"query": "smells burnt"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("start: got %d: %s", w.Code, w.Body.String())
	}
	if n := f.srv.dialogues.Len(); n != 0 {
		t.Errorf("failed dialogue kept in registry: %d", n)
	}

	f.proposer.err = nil
	f.srv.cfg.Narrow.GapThreshold = 5 // keep the dialogue open after one answer
	var snap narrow.Snapshot
	decode(t, f.do(t, http.MethodPost, "/api/v1/dialogues", map[string]interface{}{"query": "smells burnt"}), &snap)
	f.proposer.err = errors.New("timeout")
	if w := f.do(t, http.MethodPost, "/api/v1/dialogues/"+snap.ID+"/answer", map[string]string{"answer": "no"}); w.Code != http.StatusBadGateway {
		t.Fatalf("answer: got %d", w.Code)
	}
	f.proposer.err = nil
	w = f.do(t, http.MethodPost, "/api/v1/dialogues/"+snap.ID+"/next", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("next: got %d", w.Code)
	}
	snap = narrow.Snapshot{}
	decode(t, w, &snap)
	if snap.Step != 1 || (snap.Pending == nil && !snap.Done) {
		t.Errorf("after recovery = %+v", snap)
	}
}

func TestNarrowingDisabled(t *testing.T) {
	f := newFixture(t, fixtureOpts{noNarrow: true})
	for _, path := range []string{"/api/v1/dialogues", "/api/v1/narrow/propose"} {
		if w := f.do(t, http.MethodPost, path, map[string]string{"query": "x"}); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: got %d, want 503", path, w.Code)
		}
	}
}

func TestNarrowProposeAndApply(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	candidates := []models.CandidateResult{
		{Component: "motor", MatchedFaultDescription: "burnt smell", RootCause: "Winding failure", Similarity: 0.60},
		{Component: "motor", MatchedFaultDescription: "hums", RootCause: "Bearing wear", Similarity: 0.50},
		{Component: "pump", MatchedFaultDescription: "leak", RootCause: "Seal", Similarity: 0.30},
	}

	var prop proposeResponse
	decode(t, f.do(t, http.MethodPost, "/api/v1/narrow/propose", proposeRequest{Query: "motor smells", Candidates: candidates}), &prop)
	if prop.Done || prop.Question == "" || len(prop.Keywords) == 0 {
		t.Fatalf("propose = %+v", prop)
	}

	var applied applyResponse
	decode(t, f.do(t, http.MethodPost, "/api/v1/narrow/apply", applyRequest{Answer: "yes", Keywords: []string{"bearing", "wear", "hums"}, Candidates: candidates}), &applied)
	if applied.Step != 1 || applied.Done {
		t.Errorf("step = %d, done = %v", applied.Step, applied.Done)
	}
	if applied.Candidates[0].MatchedFaultDescription != "hums" {
		t.Errorf("bearing match should lead after yes: %+v", applied.Candidates)
	}

	applied = applyResponse{}
	decode(t, f.do(t, http.MethodPost, "/api/v1/narrow/apply", applyRequest{Answer: "yes", Keywords: []string{"winding", "burnt"}, Candidates: candidates}), &applied)
	if !applied.Done {
		t.Errorf("gap %.2f should end narrowing", applied.Candidates[0].Similarity-applied.Candidates[1].Similarity)
	}

	applied = applyResponse{}
	decode(t, f.do(t, http.MethodPost, "/api/v1/narrow/apply", applyRequest{Answer: "skip", Keywords: []string{"bearing"}, Candidates: candidates}), &applied)
	if applied.Step != 0 || applied.Candidates[0].MatchedFaultDescription != "burnt smell" {
		t.Errorf("skip changed state: %+v", applied)
	}

	if w := f.do(t, http.MethodPost, "/api/v1/narrow/apply", applyRequest{Answer: "perhaps"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid answer: got %d", w.Code)
	}

	decode(t, f.do(t, http.MethodPost, "/api/v1/narrow/propose", proposeRequest{Query: "q", Candidates: candidates[:1]}), &prop)
	if !prop.Done || prop.Outcome == nil || !prop.Outcome.Resolved {
		t.Errorf("single candidate should be done: %+v", prop)
	}
}
