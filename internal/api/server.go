// Package api exposes the HTTP interface for the capture service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
	"github.com/pagesnap/pagesnap/internal/config"
	"github.com/pagesnap/pagesnap/internal/dispatcher"
	"github.com/pagesnap/pagesnap/internal/metrics"
	"github.com/pagesnap/pagesnap/internal/packager"
)

// Server wires HTTP handlers to the dispatcher, store and packager.
type Server struct {
	router     chi.Router
	jobStore   capture.JobStore
	dispatcher *dispatcher.Dispatcher
	packager   *packager.Packager
	idGen      capture.IDGenerator
	clock      capture.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore capture.JobStore,
	dispatch *dispatcher.Dispatcher,
	pack *packager.Packager,
	idGen capture.IDGenerator,
	clock capture.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:   jobStore,
		dispatcher: dispatch,
		packager:   pack,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/captures", func(r chi.Router) {
			r.Post("/", s.createCapture)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getCapture)
				r.Post("/cancel", s.cancelCapture)
				r.Get("/download", s.downloadCapture)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store answers a cheap read when its backend is reachable.
	if _, err := s.jobStore.Get(r.Context(), "readyz-probe"); err != nil && !errors.Is(err, capture.ErrJobNotFound) {
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type captureRequest struct {
	OwnerID       string   `json:"owner_id"`
	URL           string   `json:"url"`
	Devices       []string `json:"devices"`
	MaxPages      *int     `json:"max_pages"`
	AllPages      bool     `json:"all_pages"`
	ExcludePopups bool     `json:"exclude_popups"`
}

func (s *Server) createCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.buildJob(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.jobStore.Create(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("create job: %v", err))
		return
	}
	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.dispatcher.Enqueue(queueCtx, capture.Task{JobID: job.ID, Submitted: job.Submitted}); err != nil {
		// The row exists but no worker will pick it up; fail it so the
		// client sees a terminal status instead of a stuck job.
		if ferr := s.jobStore.Fail(context.WithoutCancel(r.Context()), job.ID, "capture queue is full"); ferr != nil {
			s.logger.Error("failing unqueued job", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		writeError(w, http.StatusServiceUnavailable, "capture queue is full")
		return
	}
	writeJSON(w, http.StatusAccepted, jobPayload(job))
}

func (s *Server) buildJob(req captureRequest) (capture.Job, error) {
	if err := capture.ValidateSeedURL(req.URL); err != nil {
		return capture.Job{}, fmt.Errorf("invalid url: %w", err)
	}
	devices, err := parseDevices(req.Devices)
	if err != nil {
		return capture.Job{}, err
	}
	budget := 0
	if req.MaxPages != nil {
		budget = *req.MaxPages
		if budget < 1 {
			return capture.Job{}, fmt.Errorf("max_pages must be at least 1")
		}
		if budget > capture.MaxPageBudget {
			return capture.Job{}, fmt.Errorf("max_pages cannot exceed %d", capture.MaxPageBudget)
		}
	}
	spec := capture.Request{
		OwnerID:       req.OwnerID,
		SeedURL:       req.URL,
		Devices:       devices,
		PageBudget:    budget,
		AllPages:      req.AllPages,
		ExcludePopups: req.ExcludePopups,
	}
	if spec.PageBudget == 0 && !spec.AllPages && s.cfg.Capture.MaxPagesDefault > 0 {
		spec.PageBudget = s.cfg.Capture.MaxPagesDefault
	}
	jobID, err := s.idGen.NewID()
	if err != nil {
		return capture.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	owner := spec.OwnerID
	if owner == "" {
		owner = "public"
	}
	now := s.clock.Now()
	return capture.Job{
		ID:            jobID,
		OwnerID:       owner,
		SeedURL:       spec.SeedURL,
		Devices:       devices,
		PageBudget:    spec.EffectiveBudget(),
		ExcludePopups: spec.ExcludePopups,
		Status:        capture.JobStatusProcessing,
		Submitted:     now,
		ExpiresAt:     now.Add(s.cfg.Retention.TTL()),
	}, nil
}

// parseDevices resolves the requested device set. An omitted field means
// every known device; an explicit empty array is a client error.
func parseDevices(names []string) ([]capture.Device, error) {
	if names == nil {
		return append([]capture.Device(nil), capture.DeviceOrder...), nil
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("devices cannot be empty")
	}
	seen := map[capture.Device]bool{}
	out := make([]capture.Device, 0, len(names))
	for _, name := range names {
		d := capture.Device(name)
		if !d.Valid() {
			return nil, fmt.Errorf("unknown device %q", name)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

func (s *Server) getCapture(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, jobPayload(job))
}

func (s *Server) cancelCapture(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	err := s.jobStore.RequestCancel(r.Context(), jobID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"job_id": jobID,
			"status": string(capture.JobStatusCancelled),
		})
	case errors.Is(err, capture.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, capture.ErrNotCancellable):
		writeError(w, http.StatusConflict, "job is not cancellable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) downloadCapture(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	var buf bytes.Buffer
	job, err := s.packager.Archive(r.Context(), jobID, &buf)
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, capture.ErrNotCompleted):
		writeError(w, http.StatusConflict, "job is not completed")
		return
	case errors.Is(err, capture.ErrExpired):
		writeError(w, http.StatusGone, "job has expired")
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", capture.ArchiveFilename(job)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	n, err := w.Write(buf.Bytes())
	if err != nil {
		s.logger.Warn("streaming archive", zap.String("job_id", jobID), zap.Error(err))
	}
	metrics.ObserveArchiveBytes(int64(n))
}

func jobPayload(job capture.Job) map[string]any {
	payload := map[string]any{
		"id":             job.ID,
		"url":            job.SeedURL,
		"devices":        job.Devices,
		"status":         job.Status,
		"progress":       job.Progress,
		"page_count":     job.PageCount,
		"download_count": job.DownloadCount,
		"submitted_at":   job.Submitted,
		"expires_at":     job.ExpiresAt,
	}
	if job.ErrorText != "" {
		payload["error_message"] = job.ErrorText
	}
	if len(job.FileMapping) > 0 {
		payload["files"] = job.FileMapping
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
