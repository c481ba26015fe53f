package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/backend"
	"github.com/user/extractor-service/internal/domain"
)

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req domain.ExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg, ok := validateRequest(req); !ok {
		s.respondWithError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := s.dispatcher.ExtractOne(r.Context(), req)
	if err != nil {
		s.respondExtractionError(w, req.ArticleID, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchExtract(w http.ResponseWriter, r *http.Request) {
	var reqs []domain.ExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(reqs) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "Request list cannot be empty")
		return
	}
	for _, req := range reqs {
		if msg, ok := validateRequest(req); !ok {
			s.respondWithError(w, http.StatusBadRequest, msg)
			return
		}
	}

	results := s.dispatcher.ExtractBatch(r.Context(), reqs)
	s.respondWithJSON(w, http.StatusOK, map[string]any{
		"requested": len(reqs),
		"extracted": len(results),
		"results":   results,
	})
}

func (s *Server) handleReparse(w http.ResponseWriter, r *http.Request) {
	newspaperID, err := strconv.ParseInt(chi.URLParam(r, "newspaperID"), 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid newspaper ID")
		return
	}

	outcomes, err := s.reparser.Reparse(r.Context(), newspaperID)
	if err != nil {
		s.logger.Error("reparse failed", zap.Int64("newspaper_id", newspaperID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Reparse failed")
		return
	}

	resolved := 0
	for _, o := range outcomes {
		if o.Resolved {
			resolved++
		}
	}
	s.respondWithJSON(w, http.StatusOK, map[string]any{
		"newspaper_id": newspaperID,
		"processed":    len(outcomes),
		"resolved":     resolved,
		"outcomes":     outcomes,
	})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if err := s.queueConn.Ping(ctx); err != nil {
		healthStatus["queue"] = "unhealthy"
		s.logger.Error("health check failed for queue", zap.Error(err))
	} else {
		healthStatus["queue"] = "healthy"
	}

	if healthStatus["postgres"] != "healthy" || healthStatus["queue"] != "healthy" {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

func validateRequest(req domain.ExtractionRequest) (string, bool) {
	if req.ArticleID == 0 {
		return "article_id is required", false
	}
	if req.NewspaperID == 0 {
		return "newspaper_id is required", false
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return "Invalid article URL: " + req.URL, false
	}
	return "", true
}

func (s *Server) respondExtractionError(w http.ResponseWriter, articleID int64, err error) {
	s.logger.Error("extraction failed", zap.Int64("article_id", articleID), zap.Error(err))
	switch {
	case errors.Is(err, backend.ErrLoginRequiresBrowser):
		s.respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, backend.ErrAuthFailed):
		s.respondWithError(w, http.StatusBadGateway, "Authentication against the source failed")
	default:
		s.respondWithError(w, http.StatusInternalServerError, "Extraction failed")
	}
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
