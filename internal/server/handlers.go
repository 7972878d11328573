package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/ingest"
	"github.com/hyperjump/rootcause/internal/keyword"
	"github.com/hyperjump/rootcause/internal/metrics"
	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/internal/storage"
)

var maxUploadBytes int64 = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"rows":   s.engine.Store().Len(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	resp := map[string]interface{}{
		"rows":         store.Len(),
		"dimensions":   store.Dimensions(),
		"vector_index": store.NativeIndex(),
		"components":   store.Components(),
		"embedding":    s.cfg.Embedding.Provider,
		"llm":          s.cfg.LLM.Provider,
	}
	if s.catalog != nil {
		n, err := s.catalog.Count(r.Context())
		if err != nil {
			s.respondFailure(w, "status", err)
			return
		}
		resp["catalog_rows"] = n
	}
	if s.dialogues != nil {
		resp["active_dialogues"] = s.dialogues.Len()
	}
	usage, err := storage.MeasureUsage(map[string]string{
		"index":    s.cfg.Storage.IndexDir,
		"catalog":  s.cfg.Storage.DatabasePath,
		"keywords": s.cfg.Storage.KeywordIndexPath,
	})
	if err == nil {
		resp["disk_usage"] = usage
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	components := s.engine.Store().Components()
	if s.catalog != nil {
		var err error
		if components, err = s.catalog.Components(r.Context()); err != nil {
			s.respondFailure(w, "list components", err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"components": nonNil(components)})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	component := models.CanonicalLabel(r.URL.Query().Get("component"))
	list := s.engine.Store().Models(component)
	if s.catalog != nil {
		var err error
		if list, err = s.catalog.Models(r.Context(), component); err != nil {
			s.respondFailure(w, "list models", err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"component": component, "models": nonNil(list)})
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var query models.DiagnoseQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.applySearchDefaults(&query); err != nil {
		s.respondFailure(w, "diagnose", err)
		return
	}
	s.logger.Debug("diagnose request", zap.String("query", query.Query), zap.String("component", query.Component), zap.Int("top_k", query.TopK))
	candidates, err := s.engine.Diagnose(r.Context(), &query)
	if err != nil {
		metrics.DiagnosesTotal.WithLabelValues("error").Inc()
		s.respondFailure(w, "diagnose", err)
		return
	}
	outcome := "ok"
	if len(candidates) == 0 {
		outcome = "empty"
	}
	metrics.DiagnosesTotal.WithLabelValues(outcome).Inc()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":      query.Query,
		"candidates": nonNilCandidates(candidates),
		"count":      len(candidates),
	})
}

// applySearchDefaults fills top_k and min_similarity from config and enforces the
// configured top_k ceiling.
func (s *Server) applySearchDefaults(q *models.DiagnoseQuery) error {
	if q.TopK == 0 {
		q.TopK = s.cfg.Search.DefaultTopK
	}
	if q.MinSimilarity == 0 {
		q.MinSimilarity = s.cfg.Search.MinSimilarity
	}
	if max := s.cfg.Search.MaxTopK; max > 0 && q.TopK > max {
		return fmt.Errorf("%w: top_k must be at most %d, got %d", models.ErrInvalidQuery, max, q.TopK)
	}
	return nil
}

type ingestRequest struct {
	Records []models.Record `json:"records"`
	Source  string          `json:"source,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var (
		records []models.Record
		source  string
	)
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
			return
		}
		defer file.Close()
		if records, err = ingest.Read(header.Filename, file); err != nil {
			s.respondFailure(w, "ingest", err)
			return
		}
		source = header.Filename
	} else {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		records, source = req.Records, req.Source
		if source == "" {
			source = "api"
		}
	}

	res, err := s.ingester.Ingest(r.Context(), records, source)
	if err != nil {
		s.respondFailure(w, "ingest", err)
		return
	}
	metrics.RecordsIngestedTotal.WithLabelValues("added").Add(float64(res.Added))
	metrics.RecordsIngestedTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
	metrics.RecordsIngestedTotal.WithLabelValues("invalid").Add(float64(res.Invalid))
	metrics.StoreRecords.Set(float64(s.engine.Store().Len()))
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecordSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	component := models.CanonicalLabel(r.URL.Query().Get("component"))
	hits, err := s.engine.Lookup(r.Context(), q, component, limit)
	if err != nil {
		s.respondFailure(w, "record search", err)
		return
	}
	if hits == nil {
		hits = []keyword.Hit{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": q, "hits": hits, "count": len(hits)})
}

func (s *Server) handleWatchDirectories(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilCandidates(c []models.CandidateResult) []models.CandidateResult {
	if c == nil {
		return []models.CandidateResult{}
	}
	return c
}
