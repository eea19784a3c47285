package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/security"
)

// Handler evaluates checks on request without keeping any state between
// calls. Runner is nil when no telemetry source is configured; callers must
// then send rows.
type Handler struct {
	Catalog *checks.Catalog
	Runner  *pipeline.Runner
	Limits  security.Limits
	Now     func() time.Time
}

func NewHandler(catalog *checks.Catalog, runner *pipeline.Runner) *Handler {
	return &Handler{Catalog: catalog, Runner: runner, Limits: security.DefaultLimits(), Now: time.Now}
}

func (h *Handler) HandleChecks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	type entry struct {
		Name        string `json:"name"`
		ServiceName string `json:"serviceName"`
		PerEntity   bool   `json:"perEntity"`
	}
	out := []entry{}
	for _, c := range h.Catalog.All() {
		out = append(out, entry{Name: c.Name, ServiceName: c.ServiceName, PerEntity: c.HasEntities()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, check, ok := h.decodeCheckRequest(w, r)
	if !ok {
		return
	}
	at := h.Now()
	if req.At != nil {
		at = *req.At
	}
	if req.Device != nil {
		if h.Runner == nil {
			writeError(w, http.StatusBadRequest, "no telemetry source configured; send rows")
			return
		}
		reports, err := h.Runner.Run(r.Context(), req.Device.device(), check.Name, at)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
		return
	}
	rows, err := req.rawRows()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": pipeline.Evaluate(check, rows, at)})
}

func (h *Handler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	req, check, ok := h.decodeCheckRequest(w, r)
	if !ok {
		return
	}
	if req.Device != nil {
		if h.Runner == nil {
			writeError(w, http.StatusBadRequest, "no telemetry source configured; send rows")
			return
		}
		services, err := h.Runner.Discover(r.Context(), req.Device.device(), check.Name)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": services})
		return
	}
	rows, err := req.rawRows()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	services, err := pipeline.DiscoverRows(check, rows)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (h *Handler) decodeCheckRequest(w http.ResponseWriter, r *http.Request) (checkRequest, checks.Check, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return checkRequest{}, checks.Check{}, false
	}
	var req checkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return checkRequest{}, checks.Check{}, false
	}
	if strings.TrimSpace(req.Check) == "" {
		writeError(w, http.StatusBadRequest, "check is required")
		return checkRequest{}, checks.Check{}, false
	}
	check, found := h.Catalog.Get(req.Check)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s: %s", pipeline.ErrUnknownCheck, req.Check))
		return checkRequest{}, checks.Check{}, false
	}
	if req.Device != nil && len(req.Rows) > 0 {
		writeError(w, http.StatusBadRequest, "send either rows or device, not both")
		return checkRequest{}, checks.Check{}, false
	}
	if req.Device != nil && strings.TrimSpace(req.Device.ID) == "" {
		writeError(w, http.StatusBadRequest, "device.id is required")
		return checkRequest{}, checks.Check{}, false
	}
	if req.Device == nil {
		rows, err := req.rawRows()
		if err == nil {
			err = h.Limits.CheckRows(rows)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return checkRequest{}, checks.Check{}, false
		}
	}
	return req, check, true
}
