// Package workflow coordinates the conjoint study lifecycle: attribute
// definition, design upload, survey attachment, estimation, and simulation.
package workflow

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/internal/model"
	"github.com/sells-group/conjoint-cli/internal/store"
	"github.com/sells-group/conjoint-cli/internal/survey"
)

// ErrInvalidInput marks request-level failures the caller can correct.
var ErrInvalidInput = eris.New("workflow: invalid input")

// Engine computes estimations and simulations. The orchestrator in
// internal/engine satisfies this.
type Engine interface {
	Estimate(ctx context.Context, surveyPath string, attrs []conjoint.Attribute) (*conjoint.Estimation, error)
	Simulate(ctx context.Context, req conjoint.SimulationRequest) (*conjoint.SimulationResult, error)
}

// Service runs conjoint workflows against a store and a computation engine.
type Service struct {
	store   store.Store
	engine  Engine
	dataDir string
}

// NewService creates a Service. dataDir is where attached survey exports
// are kept, one subdirectory per workflow.
func NewService(st store.Store, eng Engine, dataDir string) *Service {
	return &Service{store: st, engine: eng, dataDir: dataDir}
}

// Create registers a new workflow from flat attribute records and an
// optional design matrix. Attribute records may use any of the common
// header aliases; they are normalized before storage.
func (s *Service) Create(ctx context.Context, name string, records []map[string]any, design []conjoint.DesignRow) (*model.Workflow, error) {
	if strings.TrimSpace(name) == "" {
		return nil, eris.Wrap(ErrInvalidInput, "workflow name is required")
	}

	w := &model.Workflow{
		ID:         uuid.New().String(),
		Name:       strings.TrimSpace(name),
		Attributes: conjoint.NormalizeFlatAttributes(records),
		Design:     design,
	}
	if len(design) > 0 {
		summary := conjoint.SummarizeDesign(design, w.Attributes)
		w.DesignSummary = &summary
	}

	if err := s.store.Upsert(ctx, w); err != nil {
		return nil, err
	}

	zap.L().Info("workflow created",
		zap.String("id", w.ID),
		zap.String("name", w.Name),
		zap.Int("attributes", len(w.Attributes)),
		zap.Int("design_rows", len(w.Design)),
	)
	return w, nil
}

// Get returns the full workflow record.
func (s *Service) Get(ctx context.Context, id string) (*model.Workflow, error) {
	return s.store.Get(ctx, id)
}

// List returns workflow metadata, newest first.
func (s *Service) List(ctx context.Context, filter store.WorkflowFilter) ([]model.Workflow, error) {
	return s.store.List(ctx, filter)
}

// Delete removes the workflow record and its data directory.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(s.workflowDir(id)); err != nil {
		zap.L().Warn("workflow data directory not removed",
			zap.String("id", id), zap.Error(err))
	}
	return nil
}

// AttachSurvey stores a fielded survey export workbook for the workflow and
// summarizes it. A mismatch between the export's attribute tokens and the
// workflow's attribute catalog is recorded as a warning, not an error.
func (s *Service) AttachSurvey(ctx context.Context, id, filename string, r io.Reader) (*model.Workflow, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return nil, eris.Wrap(ErrInvalidInput, "only .xlsx survey exports are supported")
	}

	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	dir := s.workflowDir(id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, eris.Wrapf(err, "workflow: create data dir %s", dir)
	}

	dest := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(dest)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: create %s", dest)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return nil, eris.Wrapf(err, "workflow: write %s", dest)
	}
	if err := f.Close(); err != nil {
		return nil, eris.Wrapf(err, "workflow: close %s", dest)
	}

	summary, err := survey.ReadExportSummary(dest)
	if err != nil {
		os.Remove(dest) //nolint:errcheck
		return nil, eris.Wrap(ErrInvalidInput, err.Error())
	}

	w.SurveyFile = dest
	w.SurveySummary = summary
	if warning := tokenMismatchWarning(w.Attributes, summary.Tokens); warning != "" {
		w.Warnings = append(w.Warnings, warning)
	}

	if err := s.store.Upsert(ctx, w); err != nil {
		return nil, err
	}

	zap.L().Info("survey attached",
		zap.String("id", id),
		zap.Int("respondents", summary.Respondents),
		zap.Int("tasks", summary.TaskCount),
		zap.Strings("tokens", summary.Tokens),
	)
	return w, nil
}

// Estimate encodes the workflow's attribute catalog against the attached
// survey export and runs partworth estimation through the engine.
func (s *Service) Estimate(ctx context.Context, id string) (*model.Workflow, error) {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.SurveyFile == "" {
		return nil, eris.Wrap(ErrInvalidInput, "no survey export attached; upload one before estimating")
	}

	var tokens []string
	if w.SurveySummary != nil {
		tokens = w.SurveySummary.Tokens
	}
	encoded := conjoint.EncodeAttributes(w.Attributes, tokens)
	if len(encoded) == 0 {
		return nil, eris.Wrap(ErrInvalidInput, "attribute catalog is empty; cannot proceed with estimation")
	}

	est, err := s.engine.Estimate(ctx, w.SurveyFile, encoded)
	if err != nil {
		return nil, err
	}

	w.Estimation = &model.Estimation{
		Estimation:  *est,
		EstimatedAt: time.Now().UTC(),
	}
	if err := s.store.Upsert(ctx, w); err != nil {
		return nil, err
	}

	zap.L().Info("estimation complete",
		zap.String("id", id),
		zap.Int("attributes", len(est.Utilities)),
		zap.Int("warnings", len(est.Warnings)),
	)
	return w, nil
}

// Simulate computes preference shares for candidate scenarios using the
// workflow's stored estimation. Results are returned, not persisted.
func (s *Service) Simulate(ctx context.Context, id string, scenarios []conjoint.Scenario, rule string) (*conjoint.SimulationResult, error) {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Estimation == nil {
		return nil, eris.Wrap(ErrInvalidInput, "workflow has no estimation; run estimation first")
	}
	if len(scenarios) == 0 {
		return nil, eris.Wrap(ErrInvalidInput, "scenarios must be a non-empty list")
	}
	if rule != conjoint.RuleLogit && rule != conjoint.RuleFirstChoice {
		return nil, eris.Wrapf(ErrInvalidInput, "unsupported choice rule %q", rule)
	}

	return s.engine.Simulate(ctx, conjoint.SimulationRequest{
		Intercept: w.Estimation.Intercept,
		Utilities: w.Estimation.Utilities,
		Scenarios: scenarios,
		Rule:      rule,
	})
}

// AnalyzeScenarios projects market shares for new concepts entering an
// existing market and persists the analysis on the workflow.
func (s *Service) AnalyzeScenarios(ctx context.Context, id string, shares []conjoint.ProductShare, newScenarios []conjoint.Scenario, rule string) (*conjoint.ScenarioAnalysis, error) {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Estimation == nil {
		return nil, eris.Wrap(ErrInvalidInput, "workflow has no estimation; run estimation first")
	}

	analysis, err := conjoint.AnalyzeScenarios(conjoint.ScenarioAnalysisRequest{
		Intercept:            w.Estimation.Intercept,
		Utilities:            w.Estimation.Utilities,
		OriginalMarketShares: shares,
		NewScenarios:         newScenarios,
		Rule:                 rule,
	})
	if err != nil {
		return nil, eris.Wrap(ErrInvalidInput, err.Error())
	}

	w.Scenarios = analysis
	if err := s.store.Upsert(ctx, w); err != nil {
		return nil, err
	}
	return analysis, nil
}

func (s *Service) workflowDir(id string) string {
	return filepath.Join(s.dataDir, "workflows", id)
}

// tokenMismatchWarning flags a survey export whose hidden attribute columns
// do not line up one-to-one with the workflow's attribute catalog.
func tokenMismatchWarning(attrs []conjoint.FlatAttribute, tokens []string) string {
	groups := map[string]bool{}
	for _, a := range attrs {
		no := strings.TrimSpace(a.AttributeNo)
		if no != "" {
			groups[no] = true
		}
	}
	if len(tokens) == 0 || len(groups) == 0 || len(tokens) == len(groups) {
		return ""
	}
	return fmt.Sprintf(
		"survey export carries %d attribute tokens but the workflow defines %d attributes",
		len(tokens), len(groups),
	)
}
