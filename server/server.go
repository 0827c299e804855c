// Package server exposes the scan processor over HTTP so handheld scanners
// and other stations can submit codes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"packscan/history"
	"packscan/processor"
)

// scanTimeout bounds one scan submitted over HTTP, snapshot retries included.
const scanTimeout = 90 * time.Second

// Scanner is the part of the processor the API drives.
type Scanner interface {
	ProcessCode(ctx context.Context, code string) processor.Result
	Status() processor.State
	EndSession() processor.State
}

// Finder looks up past scans.
type Finder interface {
	FindByCode(ctx context.Context, code string) ([]history.Scan, error)
	Recent(ctx context.Context, n int) ([]history.Scan, error)
}

// Server is the station HTTP API.
type Server struct {
	scanner Scanner
	finder  Finder
	logger  *zap.Logger
	started time.Time
}

// New creates the API. finder may be nil when history is disabled.
func New(scanner Scanner, finder Finder, logger *zap.Logger) *Server {
	return &Server{
		scanner: scanner,
		finder:  finder,
		logger:  logger.With(zap.String("component", "server")),
		started: time.Now(),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	r.HandleFunc("/session/end", s.handleEndSession).Methods(http.MethodPost)
	r.HandleFunc("/scans", s.handleScans).Methods(http.MethodGet)
	r.Use(s.logRequests)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http api shutdown: %w", err)
		}
		return nil
	}
}

type scanRequest struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	// a client hanging up must not abort a scan halfway through saving
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), scanTimeout)
	defer cancel()
	res := s.scanner.ProcessCode(ctx, req.Code)
	s.writeJSON(w, scanStatusCode(res.Status), res)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scanner.EndSession())
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	if s.finder == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "scan history is disabled"})
		return
	}

	var (
		scans []history.Scan
		err   error
	)
	if code := r.URL.Query().Get("code"); code != "" {
		scans, err = s.finder.FindByCode(r.Context(), code)
	} else {
		limit, convErr := strconv.Atoi(r.URL.Query().Get("limit"))
		if convErr != nil {
			limit = 20
		}
		scans, err = s.finder.Recent(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("history query failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history query failed"})
		return
	}
	if scans == nil {
		scans = []history.Scan{}
	}
	s.writeJSON(w, http.StatusOK, scans)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// scanStatusCode maps a scan outcome to an HTTP status. Operator mistakes
// are client errors; camera and disk failures are server errors.
func scanStatusCode(st processor.Status) int {
	switch st {
	case processor.StatusPackerSelected, processor.StatusSaved:
		return http.StatusOK
	case processor.StatusEmpty:
		return http.StatusBadRequest
	case processor.StatusPackerNotFound:
		return http.StatusNotFound
	case processor.StatusNoPacker:
		return http.StatusConflict
	case processor.StatusSnapshotFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Int("status", status), zap.Error(err))
	}
}
