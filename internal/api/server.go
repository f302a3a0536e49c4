// Package api exposes the status HTTP interface for the crawler.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chainintel/tagcrawler/internal/checkpoint"
	"github.com/chainintel/tagcrawler/internal/crawl"
	"github.com/chainintel/tagcrawler/internal/metrics"
)

// Server serves health, metrics and crawl progress.
type Server struct {
	router     chi.Router
	checkpoint *checkpoint.Checkpoint
	progress   *crawl.Progress
	logger     *zap.Logger
}

// NewServer constructs a Server with its routes.
func NewServer(cp *checkpoint.Checkpoint, progress *crawl.Progress, logger *zap.Logger) *Server {
	s := &Server{
		checkpoint: cp,
		progress:   progress,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/progress", s.getProgress)
	s.router = r
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type progressResponse struct {
	Counters      crawl.Snapshot `json:"counters"`
	CompletedTags []string       `json:"completed_tags"`
	GeneratedAt   time.Time      `json:"generated_at"`
}

func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	resp := progressResponse{
		Counters:      s.progress.Snapshot(),
		CompletedTags: s.checkpoint.Snapshot(),
		GeneratedAt:   time.Now().UTC(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encode progress response", zap.Error(err))
	}
}
