package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/internal/store"
	"github.com/sells-group/conjoint-cli/internal/workflow"
)

// maxUploadBytes caps survey export uploads at 64 MiB.
const maxUploadBytes = 64 << 20

// AttributeExtractor derives attribute catalogs from study briefs.
type AttributeExtractor interface {
	Attributes(ctx context.Context, brief string) ([]conjoint.FlatAttribute, error)
}

type handler struct {
	svc       *workflow.Service
	extractor AttributeExtractor
}

// Version is stamped at build time via -ldflags.
var Version = "dev"

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type createWorkflowRequest struct {
	Name       string               `json:"name"`
	Attributes []map[string]any     `json:"attributes"`
	Design     []conjoint.DesignRow `json:"design"`
}

func (h *handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, eris.Wrap(workflow.ErrInvalidInput, "malformed request body"))
		return
	}

	created, err := h.svc.Create(r.Context(), req.Name, req.Attributes, req.Design)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *handler) listWorkflows(w http.ResponseWriter, r *http.Request) {
	listed, err := h.svc.List(r.Context(), store.WorkflowFilter{
		Name: r.URL.Query().Get("name"),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"workflows": listed})
}

func (h *handler) getWorkflow(w http.ResponseWriter, r *http.Request) {
	got, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, got)
}

func (h *handler) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) attachSurvey(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, eris.Wrap(workflow.ErrInvalidInput, "expected multipart form with a file field"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, eris.Wrap(workflow.ErrInvalidInput, "missing file field"))
		return
	}
	defer file.Close()

	updated, err := h.svc.AttachSurvey(r.Context(), chi.URLParam(r, "id"), header.Filename, file)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *handler) estimate(w http.ResponseWriter, r *http.Request) {
	updated, err := h.svc.Estimate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

type simulateRequest struct {
	Scenarios []conjoint.Scenario `json:"scenarios"`
	Rule      string              `json:"rule"`
}

func (h *handler) simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, eris.Wrap(workflow.ErrInvalidInput, "malformed request body"))
		return
	}
	if req.Rule == "" {
		req.Rule = conjoint.RuleLogit
	}

	res, err := h.svc.Simulate(r.Context(), chi.URLParam(r, "id"), req.Scenarios, req.Rule)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type scenariosRequest struct {
	OriginalMarketShares []conjoint.ProductShare `json:"originalMarketShares"`
	NewScenarios         []conjoint.Scenario     `json:"newScenarios"`
	Rule                 string                  `json:"rule"`
}

func (h *handler) analyzeScenarios(w http.ResponseWriter, r *http.Request) {
	var req scenariosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, eris.Wrap(workflow.ErrInvalidInput, "malformed request body"))
		return
	}
	if req.Rule == "" {
		req.Rule = conjoint.RuleLogit
	}

	analysis, err := h.svc.AnalyzeScenarios(r.Context(), chi.URLParam(r, "id"),
		req.OriginalMarketShares, req.NewScenarios, req.Rule)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

type extractRequest struct {
	Brief string `json:"brief"`
}

func (h *handler) extract(w http.ResponseWriter, r *http.Request) {
	if h.extractor == nil {
		respondJSON(w, http.StatusServiceUnavailable,
			map[string]string{"detail": "attribute extraction is not configured"})
		return
	}

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, eris.Wrap(workflow.ErrInvalidInput, "malformed request body"))
		return
	}

	attrs, err := h.extractor.Attributes(r.Context(), req.Brief)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"attributes": attrs})
}
