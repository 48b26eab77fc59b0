package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleWorkflow(id string) *model.Workflow {
	return &model.Workflow{
		ID:   id,
		Name: "Pricing Study",
		Attributes: []conjoint.FlatAttribute{
			{AttributeNo: "1", AttributeText: "Price", LevelNo: "1", LevelText: "Low", Code: "1"},
			{AttributeNo: "1", AttributeText: "Price", LevelNo: "2", LevelText: "High", Code: "2"},
		},
		Design: []conjoint.DesignRow{
			{"Version": float64(1), "Task": float64(1), "Concept": float64(1), "Att1": float64(1)},
			{"Version": float64(1), "Task": float64(1), "Concept": float64(2), "Att1": float64(2)},
		},
	}
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	w := sampleWorkflow("wf-1")
	require.NoError(t, s.Upsert(ctx, w))
	assert.False(t, w.CreatedAt.IsZero())

	got, err := s.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Pricing Study", got.Name)
	assert.Equal(t, w.Attributes, got.Attributes)
	require.Len(t, got.Design, 2)
	assert.Equal(t, float64(2), got.Design[1]["Concept"], "design rows keep their order")
}

func TestSQLiteStore_UpsertReplacesDesign(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	w := sampleWorkflow("wf-1")
	require.NoError(t, s.Upsert(ctx, w))

	w.Design = []conjoint.DesignRow{{"Version": float64(2), "Task": float64(1)}}
	require.NoError(t, s.Upsert(ctx, w))

	got, err := s.Get(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, got.Design, 1)
	assert.Equal(t, float64(2), got.Design[0]["Version"])
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListExcludesDesign(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first := sampleWorkflow("wf-1")
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.Upsert(ctx, first))

	second := sampleWorkflow("wf-2")
	second.Name = "Feature Study"
	require.NoError(t, s.Upsert(ctx, second))

	listed, err := s.List(ctx, WorkflowFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "wf-2", listed[0].ID, "newest first")
	for _, w := range listed {
		assert.Nil(t, w.Design)
	}

	filtered, err := s.List(ctx, WorkflowFilter{Name: "Feature Study"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "wf-2", filtered[0].ID)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleWorkflow("wf-1")))
	require.NoError(t, s.Delete(ctx, "wf-1"))

	_, err := s.Get(ctx, "wf-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "wf-1"), ErrNotFound)
}

func TestSQLiteStore_EstimationRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	w := sampleWorkflow("wf-1")
	w.Estimation = &model.Estimation{
		Estimation: conjoint.Estimation{
			Intercept: 0.2,
			Utilities: map[string]map[string]float64{"PRICE": {"Low": 0.4, "High": -0.4}},
		},
		EstimatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.Upsert(ctx, w))

	got, err := s.Get(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, got.Estimation)
	assert.InDelta(t, 0.4, got.Estimation.Utilities["PRICE"]["Low"], 1e-12)
	assert.Equal(t, model.WorkflowStatusEstimated, got.Status())
}
