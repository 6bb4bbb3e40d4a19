package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kotoba/internal/models"
	"go.uber.org/zap"
)

type processRequest struct {
	URL     string `json:"url"`
	VideoID string `json:"video_id"`
}

type processResponse struct {
	Success       bool   `json:"success"`
	VideoID       string `json:"video_id"`
	ChunksCreated int    `json:"chunks_created"`
	Message       string `json:"message"`
}

type indexRequest struct {
	SourceID string                `json:"source_id"`
	Segments []models.TimedSegment `json:"segments"`
}

type indexResponse struct {
	Success       bool   `json:"success"`
	SourceID      string `json:"source_id"`
	ChunksCreated int    `json:"chunks_created"`
}

type chatResponse struct {
	Success bool            `json:"success"`
	Answer  string          `json:"answer"`
	Sources []models.Source `json:"sources"`
}

type sessionResponse struct {
	SourceID       string `json:"source_id"`
	Ready          bool   `json:"ready"`
	CollectionName string `json:"collection_name,omitempty"`
	TotalChunks    int    `json:"total_chunks"`
}

func (s *Server) handleProcessVideo(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target := req.URL
	if target == "" {
		target = req.VideoID
	}
	if target == "" {
		s.respondError(w, http.StatusBadRequest, "No URL provided")
		return
	}
	s.logger.Debug("process video request", zap.String("url", target))
	res, err := s.svc.Process(r.Context(), target)
	if err != nil {
		s.fail(w, "processing failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, processResponse{
		Success:       true,
		VideoID:       res.SourceID,
		ChunksCreated: res.ChunksCreated,
		Message:       "Video processed successfully",
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index request", zap.String("source_id", req.SourceID), zap.Int("segments", len(req.Segments)))
	res, err := s.svc.Index(r.Context(), req.SourceID, req.Segments)
	if err != nil {
		s.fail(w, "indexing failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, indexResponse{
		Success:       true,
		SourceID:      res.SourceID,
		ChunksCreated: res.ChunksCreated,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var q models.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ans, err := s.svc.Answer(r.Context(), q.SourceID, q.Text)
	if err != nil {
		s.fail(w, "chat failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, chatResponse{Success: true, Answer: ans.Answer, Sources: ans.Sources})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.svc.Session(r.Context(), id)
	if errors.Is(err, models.ErrSourceNotIndexed) {
		s.respondJSON(w, http.StatusOK, sessionResponse{SourceID: id})
		return
	}
	if err != nil {
		s.fail(w, "session lookup failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, sessionResponse{
		SourceID:       entry.SourceID,
		Ready:          true,
		CollectionName: entry.CollectionName,
		TotalChunks:    entry.TotalChunks,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete session request", zap.String("source_id", id))
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.fail(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"sessions": s.svc.Sessions(r.Context()),
		"config": map[string]interface{}{
			"vector_store":         s.info.StoreKind,
			"embedding_backend":    s.info.EmbeddingBackend,
			"embedding_dimensions": s.info.Dimensions,
			"chunk_size":           s.info.ChunkSize,
			"chunk_overlap":        s.info.ChunkOverlap,
		},
	}
	if s.info.GeminiUsage != nil {
		resp["gemini_usage"] = s.info.GeminiUsage()
	}
	if s.info.DiskUsage != nil {
		if n, err := s.info.DiskUsage(); err == nil {
			resp["disk_usage_bytes"] = n
		} else {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrSourceNotIndexed),
		errors.Is(err, models.ErrTranscriptUnavailable),
		errors.Is(err, models.ErrTranscriptDisabled):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrIndexingInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrIndexingTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrCollaboratorUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
