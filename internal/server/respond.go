package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/ingest"
	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/internal/narrow"
	"github.com/hyperjump/rootcause/internal/search"
	"github.com/hyperjump/rootcause/internal/vector"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondFailure maps err to its status code and logs server-side failures.
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	if status >= 500 {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidQuery),
		errors.Is(err, ingest.ErrMissingColumn),
		errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, narrow.ErrNoPendingQuestion):
		return http.StatusBadRequest
	case errors.Is(err, narrow.ErrDialogueNotFound):
		return http.StatusNotFound
	case errors.Is(err, vector.ErrDimensionMismatch), errors.Is(err, vector.ErrShapeMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, search.ErrEmbeddingUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, search.ErrLookupUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
