// File: internal/server/server.go
// Description: Thin HTTP surface over the scan orchestrator. Request-shape
// validation maps to 400; every scan outcome, including Unknown results, is
// a 200 with a fully populated body. Authentication is the deployment's
// concern, not this server's.

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/scan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBulkUpload bounds the CSV body size.
const maxBulkUpload = 10 << 20

// Server is the HTTP API surface.
type Server struct {
	cfg          config.ServerConfig
	engineCfg    config.EngineConfig
	orchestrator *scan.Orchestrator
	router       chi.Router
	logger       *zap.Logger
	httpServer   *http.Server
}

// ScanRequest is the single-URL scan payload.
type ScanRequest struct {
	URL string `json:"url"`
}

// BatchScanRequest is the interactive batch payload.
type BatchScanRequest struct {
	URLs []string `json:"urls"`
}

// ErrorResponse is the uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the routes onto a fresh chi router.
func NewServer(cfg config.ServerConfig, engineCfg config.EngineConfig, orch *scan.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:          cfg,
		engineCfg:    engineCfg,
		orchestrator: orch,
		router:       chi.NewRouter(),
		logger:       logger.Named("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Post("/api/v1/scan", s.handleScan)
	r.Post("/api/v1/scan/batch", s.handleScanBatch)
	r.Post("/api/v1/scan/bulk", s.handleScanBulk)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler { return s.router }

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", zap.String("addr", s.cfg.Addr))
		errChan <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP API")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.orchestrator.ScanOne(r.Context(), req.URL)
	if err != nil {
		s.writeValidation(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	batch, err := s.orchestrator.ScanBatch(r.Context(), req.URLs, s.engineCfg.InteractiveBatchCap)
	if err != nil {
		s.writeValidation(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

// handleScanBulk accepts a CSV body whose first column is the URL. The bulk
// path has its own, larger cardinality cap than the interactive endpoint.
func (s *Server) handleScanBulk(w http.ResponseWriter, r *http.Request) {
	urls, err := scan.URLsFromCSV(http.MaxBytesReader(w, r.Body, maxBulkUpload))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusBadRequest, "CSV body exceeds the upload limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid CSV body")
		return
	}

	batch, err := s.orchestrator.ScanBatch(r.Context(), urls, s.engineCfg.BulkBatchCap)
	if err != nil {
		s.writeValidation(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeValidation maps request-shape rejections to 400 and anything else to
// a 500, which should not happen: scans themselves never surface errors.
func (s *Server) writeValidation(w http.ResponseWriter, err error) {
	var ve *scan.ValidationError
	if errors.As(err, &ve) {
		s.writeError(w, http.StatusBadRequest, ve.Message)
		return
	}
	s.logger.Error("Unexpected scan error", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}
