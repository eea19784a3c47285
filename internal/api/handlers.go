package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/config"
	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/scheduler"
	"powerwatch-backend/internal/storage"
)

type Jobs interface {
	ListJobs() []scheduler.JobInfo
	PollNow(ctx context.Context, deviceID string) ([]pipeline.Report, error)
}

type ReportReader interface {
	ListServices(ctx context.Context, deviceID string) ([]storage.ServiceRecord, error)
	ListReports(ctx context.Context, deviceID string, limit int) ([]storage.ReportRecord, error)
}

type SampleReader interface {
	RecentSamples(ctx context.Context, device string, limit int) ([]map[string]any, error)
}

// Handler serves the worker's admin API. Repo, Samples and Metrics are
// optional.
type Handler struct {
	Catalog *checks.Catalog
	Devices func() []config.Device
	Jobs    Jobs
	Repo    ReportReader
	Samples SampleReader
	Reload  func(ctx context.Context) error
	Metrics http.Handler
	Timeout time.Duration
}

type checkInfo struct {
	Name        string       `json:"name"`
	ServiceName string       `json:"serviceName"`
	Table       checks.Table `json:"table"`
	PerEntity   bool         `json:"perEntity"`
	Required    []string     `json:"required,omitempty"`
	Rules       []string     `json:"rules"`
	Metrics     []string     `json:"metrics,omitempty"`
}

type deviceInfo struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Address             string   `json:"address"`
	Checks              []string `json:"checks"`
	PollIntervalSeconds int      `json:"pollIntervalSeconds"`
}

func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/checks", h.handleChecks)
	r.Route("/devices", func(r chi.Router) {
		r.Get("/", h.handleDevices)
		r.Get("/{id}/services", h.handleServices)
		r.Post("/{id}/poll", h.handlePoll)
		r.Get("/{id}/reports", h.handleReports)
		r.Get("/{id}/samples", h.handleSamples)
	})
	r.Get("/jobs", h.handleJobs)
	r.Post("/jobs/reload", h.handleReload)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
}

func (h *Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 10 * time.Second
	}
	return h.Timeout
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleChecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, describeChecks(h.Catalog))
}

func describeChecks(catalog *checks.Catalog) []checkInfo {
	all := catalog.All()
	out := make([]checkInfo, 0, len(all))
	for _, c := range all {
		info := checkInfo{
			Name:        c.Name,
			ServiceName: c.ServiceName,
			Table:       c.Table,
			PerEntity:   c.HasEntities(),
			Required:    c.Rules.Required(),
			Rules:       []string{},
		}
		for _, rule := range c.Rules.Rules() {
			info.Rules = append(info.Rules, rule.Name)
		}
		for _, m := range c.Metrics {
			info.Metrics = append(info.Metrics, m.Name)
		}
		out = append(out, info)
	}
	return out
}

func (h *Handler) findDevice(id string) (config.Device, bool) {
	if h.Devices == nil {
		return config.Device{}, false
	}
	for _, d := range h.Devices() {
		if d.ID == id {
			return d, true
		}
	}
	return config.Device{}, false
}

func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	out := []deviceInfo{}
	if h.Devices != nil {
		for _, d := range h.Devices() {
			out = append(out, deviceInfo{ID: d.ID, Name: d.Name, Address: d.Address, Checks: d.Checks, PollIntervalSeconds: d.PollIntervalSeconds})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.findDevice(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "device not found"})
		return
	}
	if h.Repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "message": "persistence disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()
	services, err := h.Repo.ListServices(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list services"})
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()
	reports, err := h.Jobs.PollNow(ctx, id)
	if errors.Is(err, scheduler.ErrNotScheduled) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "device not scheduled"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) handleReports(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.Repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "message": "persistence disabled"})
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()
	reports, err := h.Repo.ListReports(ctx, id, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list reports"})
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) handleSamples(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.Samples == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "message": "metric sink disabled"})
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()
	samples, err := h.Samples.RecentSamples(ctx, id, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to read samples"})
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "limit must be a positive integer"})
		return 0, false
	}
	return limit, true
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Jobs.ListJobs())
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if h.Reload == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"ok": false, "message": "reload not supported"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()
	if err := h.Reload(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
