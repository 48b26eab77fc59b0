// Package store persists conjoint workflows. Two backends are provided:
// SQLite for single-machine use and PostgreSQL for shared deployments, plus
// an in-memory store for tests.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/conjoint-cli/internal/model"
)

// ErrNotFound is returned when a workflow ID has no record.
var ErrNotFound = eris.New("store: workflow not found")

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	Name   string `json:"name,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for conjoint workflows.
// Get returns the full record including the design matrix; List returns
// metadata only (Design is left nil) since design matrices can run to
// thousands of rows.
type Store interface {
	Get(ctx context.Context, id string) (*model.Workflow, error)
	List(ctx context.Context, filter WorkflowFilter) ([]model.Workflow, error)
	Upsert(ctx context.Context, w *model.Workflow) error
	Delete(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}
