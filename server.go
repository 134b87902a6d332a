package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ramworld21/sda-auditor/config"
	"github.com/ramworld21/sda-auditor/jobs"
	"github.com/ramworld21/sda-auditor/scanner"
)

const (
	// MaxRequestBodySize limits POST body to 1KB (URLs shouldn't be larger)
	MaxRequestBodySize = 1024
)

// server is the HTTP wrapper around the job manager.
type server struct {
	jobs     *jobs.Manager
	resolver scanner.Resolver
	logger   *slog.Logger

	port            int
	trustProxy      bool
	allowedSuffixes []string
	captureDir      string
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	manager := jobs.NewManager(func(ctx context.Context, url string, opts scanner.Options) *scanner.AuditResult {
		opts.Timeout = cfg.ScanTimeout
		return a.engine.RunAudit(ctx, url, opts)
	}, jobs.ManagerOptions{
		JobTTL:          cfg.JobTTL,
		CleanupInterval: cfg.CleanupInterval,
		MaxConcurrent:   cfg.MaxJobs,
		Logger:          logger,
	})
	defer manager.Close()

	s := &server{
		jobs:            manager,
		resolver:        net.DefaultResolver,
		logger:          logger,
		port:            cfg.Port,
		trustProxy:      cfg.TrustProxy,
		allowedSuffixes: cfg.AllowedSuffixes,
		captureDir:      cfg.CaptureDir,
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", "http://localhost"+httpServer.Addr, "trust_proxy", cfg.TrustProxy, "allowed_suffixes", cfg.AllowedSuffixes)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	logger.Info("cleanup complete")
	return nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.With(s.csrfProtection).Post("/scan", s.handleCreateJob)
		r.Get("/jobs/{id}", s.handleJobByID)
		r.Get("/jobs/{id}/stream", s.handleJobStream)
		r.Get("/queue/stats", s.handleQueueStats)
	})

	if s.captureDir != "" {
		r.Handle("/captures/*", http.StripPrefix("/captures/", http.FileServer(http.Dir(s.captureDir))))
	}
	return r
}

// getVisitorIP extracts the visitor's IP address.
// Only trusts proxy headers if TRUST_PROXY is set.
func (s *server) getVisitorIP(r *http.Request) string {
	if s.trustProxy {
		// Take the first IP (original client)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			ip := strings.TrimSpace(parts[0])
			if parsedIP := net.ParseIP(ip); parsedIP != nil {
				return ip
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if parsedIP := net.ParseIP(xri); parsedIP != nil {
				return xri
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have port in some cases
		return r.RemoteAddr
	}
	return host
}

// securityHeaders adds security headers to responses
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:")

		next.ServeHTTP(w, r)
	})
}

// csrfProtection validates the Origin header of state-changing requests
func (s *server) csrfProtection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		referer := r.Header.Get("Referer")

		if origin == "" && referer == "" {
			// non-browser client (curl, etc.): allow but log
			s.logger.Debug("request without Origin/Referer", "visitor", s.getVisitorIP(r))
		} else if origin != "" {
			if !strings.HasSuffix(origin, "://"+r.Host) &&
				!strings.HasSuffix(origin, fmt.Sprintf("://localhost:%d", s.port)) {
				writeJSON(w, http.StatusForbidden, jobs.ErrorResponse{
					Error: "Cross-origin requests not allowed",
					Code:  "CSRF_BLOCKED",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// handleCreateJob handles POST /api/scan
func (s *server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req jobs.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, jobs.ErrorResponse{Error: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, jobs.ErrorResponse{Error: "Invalid request body"})
		return
	}

	url, err := s.validateTarget(r.Context(), req.URL)
	if err != nil {
		code := "INVALID_URL"
		if errors.Is(err, scanner.ErrHostNotAllowed) {
			code = "HOST_NOT_ALLOWED"
		}
		writeJSON(w, http.StatusBadRequest, jobs.ErrorResponse{
			Error: "Invalid URL: " + err.Error(),
			Code:  code,
		})
		return
	}

	job, err := s.jobs.CreateJob(s.getVisitorIP(r), url, req.FastMode)
	if err != nil {
		var activeErr *jobs.ActiveJobError
		if errors.As(err, &activeErr) {
			writeJSON(w, http.StatusConflict, jobs.ErrorResponse{
				Error:       "You already have an active scan job",
				Code:        "ACTIVE_JOB_EXISTS",
				ActiveJobID: activeErr.JobID,
			})
			return
		}
		s.logger.Error("create job", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, jobs.ErrorResponse{Error: "Failed to create job"})
		return
	}

	message := "Job created successfully"
	if job.QueuePosition > 0 {
		message = fmt.Sprintf("Job queued at position %d", job.QueuePosition)
	}

	writeJSON(w, http.StatusCreated, jobs.CreateJobResponse{
		JobID:         job.ID,
		Status:        job.Status,
		QueuePosition: job.QueuePosition,
		Message:       message,
	})
}

// validateTarget applies the host allow-list before resolving, so rejected
// hosts never reach DNS.
func (s *server) validateTarget(ctx context.Context, raw string) (string, error) {
	u, err := scanner.NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	if err := scanner.CheckAllowedHost(u, s.allowedSuffixes); err != nil {
		return "", err
	}
	return scanner.ValidateURL(ctx, u.String(), s.resolver)
}

// handleQueueStats returns current queue statistics
func (s *server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	running, queued, maxConcurrent := s.jobs.GetQueueStats()
	writeJSON(w, http.StatusOK, jobs.QueueStatsResponse{
		Running:       running,
		Queued:        queued,
		MaxConcurrent: maxConcurrent,
	})
}

// handleJobByID handles GET /api/jobs/{id}
func (s *server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobs.GetJob(chi.URLParam(r, "id"))
	if !exists {
		writeJSON(w, http.StatusNotFound, jobs.ErrorResponse{Error: "Job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleJobStream streams job progress as server-sent events
func (s *server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, exists := s.jobs.GetJob(jobID)
	if !exists {
		writeJSON(w, http.StatusNotFound, jobs.ErrorResponse{Error: "Job not found"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// a finished job yields an already-closed channel
	progressCh, unsubscribe := s.jobs.Subscribe(jobID)
	defer unsubscribe()

	if job.Progress != nil {
		sendSSE(w, flusher, "progress", job.Progress)
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				if updated, _ := s.jobs.GetJob(jobID); updated != nil {
					sendSSE(w, flusher, "complete", map[string]any{
						"status": updated.Status,
						"error":  updated.Error,
					})
				}
				return
			}
			if progress != nil {
				sendSSE(w, flusher, "progress", progress)
			}
		case <-r.Context().Done():
			// Client disconnected
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
