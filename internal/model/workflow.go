// Package model holds the persisted domain records shared across the
// service, store, and API layers.
package model

import (
	"time"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/internal/survey"
)

// WorkflowStatus represents how far a conjoint study has progressed.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"
	WorkflowStatusSurveyed  WorkflowStatus = "surveyed"
	WorkflowStatusEstimated WorkflowStatus = "estimated"
)

// Estimation wraps the partworth estimation with the time it was produced.
type Estimation struct {
	conjoint.Estimation
	EstimatedAt time.Time `json:"estimated_at"`
}

// Workflow is a single conjoint study: the attribute definitions, the
// experimental design, the survey export once fielded, and the estimation
// and analysis artifacts once computed.
type Workflow struct {
	ID            string                     `json:"id"`
	Name          string                     `json:"name"`
	Attributes    []conjoint.FlatAttribute   `json:"attributes,omitempty"`
	Design        []conjoint.DesignRow       `json:"design,omitempty"`
	DesignSummary *conjoint.DesignSummary    `json:"design_summary,omitempty"`
	SurveyFile    string                     `json:"survey_file,omitempty"`
	SurveySummary *survey.ExportSummary      `json:"survey_summary,omitempty"`
	Estimation    *Estimation                `json:"estimation,omitempty"`
	Scenarios     *conjoint.ScenarioAnalysis `json:"scenarios,omitempty"`
	Warnings      []string                   `json:"warnings,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// Status derives the lifecycle stage from which artifacts are present.
func (w *Workflow) Status() WorkflowStatus {
	switch {
	case w.Estimation != nil:
		return WorkflowStatusEstimated
	case w.SurveyFile != "":
		return WorkflowStatusSurveyed
	default:
		return WorkflowStatusDraft
	}
}
