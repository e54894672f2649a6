package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tutu-network/classifier/internal/domain"
)

// ─── Classify ───────────────────────────────────────────────────────────────

type classifyRequest struct {
	Images []string `json:"images"`
}

type classifyResponse struct {
	BatchID   string            `json:"batch_id"`
	Mode      domain.Mode       `json:"mode"`
	Workers   int               `json:"workers"`
	Failed    int               `json:"failed"`
	ElapsedMS int64             `json:"elapsed_ms"`
	Responses []domain.Response `json:"responses"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	items := domain.ItemsFromStrings(req.Images)
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, domain.ErrNoItems.Error())
		return
	}
	if s.maxBatch > 0 && len(items) > s.maxBatch {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("%v: %d images, limit %d", domain.ErrBatchTooLarge, len(items), s.maxBatch))
		return
	}

	b, err := s.runner.Classify(r.Context(), items)
	if err != nil {
		s.logger.Error("classify failed",
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, classifyResponse{
		BatchID:   b.ID,
		Mode:      b.Mode,
		Workers:   b.Workers,
		Failed:    domain.CountFailed(b.Responses),
		ElapsedMS: b.Elapsed.Milliseconds(),
		Responses: b.Responses,
	})
}

// ─── History ────────────────────────────────────────────────────────────────

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	batches, err := s.history.ListBatches(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.history.GetBatch(r.Context(), id)
	if errors.Is(err, domain.ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
