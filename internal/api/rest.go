// Package api exposes the provisioner over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/stackforge/stackforge/internal/api/middleware"
	"github.com/stackforge/stackforge/internal/engine"
	"github.com/stackforge/stackforge/internal/graph"
	"github.com/stackforge/stackforge/internal/models"
	"github.com/stackforge/stackforge/internal/policy"
	"github.com/stackforge/stackforge/internal/provider"
)

var startTime = time.Now()

type Handler struct {
	eng *engine.Engine
}

// NewHTTPHandler wires all API routes over the engine.
func NewHTTPHandler(eng *engine.Engine) http.Handler {
	h := &Handler{eng: eng}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/plan", h.handlePlan)
	mux.HandleFunc("/apply", h.handleApply)
	mux.HandleFunc("/destroy", h.handleDestroy)
	mux.HandleFunc("/lint", h.handleLint)
	mux.HandleFunc("/resources", h.handleResources)

	return middleware.Cors(mux)
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Service   string            `json:"service"`
	Uptime    string            `json:"uptime,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   "stackforge-stackd",
		Uptime:    time.Since(startTime).String(),
		Details: map[string]string{
			"go_version": runtime.Version(),
		},
	})
}

// decodeTemplate reads a template from the request body; an empty body means
// the built-in CI build template.
func decodeTemplate(r *http.Request) (*models.Template, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	if len(body) == 0 {
		return models.DefaultTemplate(), nil
	}
	var t models.Template
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t, err := decodeTemplate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template: "+err.Error())
		return
	}
	p, err := h.eng.Plan(r.Context(), t)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":  p,
		"graph": graph.Build(t),
	})
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t, err := decodeTemplate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template: "+err.Error())
		return
	}
	res, err := h.eng.Apply(r.Context(), t)
	if err != nil {
		log.Printf("[apply] %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, provider.ErrNameConflict) || errors.Is(err, provider.ErrNoImage) ||
			errors.Is(err, provider.ErrAmbiguousImage) || errors.Is(err, provider.ErrPrecondition) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDestroy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t, err := decodeTemplate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template: "+err.Error())
		return
	}
	if err := h.eng.Destroy(r.Context(), t); err != nil {
		log.Printf("[destroy] %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed", "deployment": t.Deployment})
}

func (h *Handler) handleLint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t, err := decodeTemplate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template: "+err.Error())
		return
	}
	findings := policy.Lint(t)
	writeJSON(w, http.StatusOK, map[string]any{
		"findings": findings,
		"errors":   len(policy.Errors(findings)),
	})
}

func (h *Handler) handleResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	deployment := r.URL.Query().Get("deployment")
	if deployment == "" {
		writeError(w, http.StatusBadRequest, "deployment required")
		return
	}
	recs, err := h.eng.Resources(r.Context(), deployment)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": recs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
	log.Printf("[HTTP %d] %s", status, msg)
}
