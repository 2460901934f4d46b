package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Backend   string    `json:"backend"`
	Semantic  bool      `json:"semantic"`
}

type batchRequest struct {
	Texts []string `json:"texts"`
}

type batchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Backend    string      `json:"backend"`
	Semantic   bool        `json:"semantic"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	vec, err := s.engine.Embed(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("embed request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "embedding failed"})
		return
	}

	writeJSON(w, http.StatusOK, embedResponse{
		Embedding: vec,
		Backend:   s.engine.Status().Active.String(),
		Semantic:  s.engine.SemanticAvailable(),
	})
}

func (s *Server) handleEmbedBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.Texts) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "texts must not be empty"})
		return
	}
	if s.cfg.MaxBatchSize > 0 && len(req.Texts) > s.cfg.MaxBatchSize {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "batch exceeds maximum size"})
		return
	}

	vecs, err := s.engine.EmbedBatch(r.Context(), req.Texts)
	if err != nil {
		s.logger.Error("batch embed request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "embedding failed"})
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{
		Embeddings: vecs,
		Backend:    s.engine.Status().Active.String(),
		Semantic:   s.engine.SemanticAvailable(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
