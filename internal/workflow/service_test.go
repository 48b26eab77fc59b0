package workflow

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/internal/store"
)

type fakeEngine struct {
	estimation    *conjoint.Estimation
	estimateErr   error
	estimateCalls int
	lastAttrs     []conjoint.Attribute
	simulation    *conjoint.SimulationResult
	simulateErr   error
}

func (f *fakeEngine) Estimate(_ context.Context, _ string, attrs []conjoint.Attribute) (*conjoint.Estimation, error) {
	f.estimateCalls++
	f.lastAttrs = attrs
	if f.estimateErr != nil {
		return nil, f.estimateErr
	}
	return f.estimation, nil
}

func (f *fakeEngine) Simulate(_ context.Context, req conjoint.SimulationRequest) (*conjoint.SimulationResult, error) {
	if f.simulateErr != nil {
		return nil, f.simulateErr
	}
	if f.simulation != nil {
		return f.simulation, nil
	}
	return conjoint.Simulate(req)
}

func newTestService(t *testing.T, eng Engine) *Service {
	t.Helper()
	if eng == nil {
		eng = &fakeEngine{}
	}
	return NewService(store.NewMemory(), eng, t.TempDir())
}

func attributeRecords() []map[string]any {
	return []map[string]any{
		{"attributeNo": "1", "attributeText": "Price", "levelNo": "1", "levelText": "Low", "code": "1"},
		{"attributeNo": "1", "attributeText": "Price", "levelNo": "2", "levelText": "High", "code": "2"},
		{"attributeNo": "2", "attributeText": "Brand", "levelNo": "1", "levelText": "Acme", "code": "1"},
		{"attributeNo": "2", "attributeText": "Brand", "levelNo": "2", "levelText": "Generic", "code": "2"},
	}
}

// surveyExport builds a minimal .xlsx export with hidden design columns for
// the given tokens.
func surveyExport(t *testing.T, tokens ...string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Data")
	require.NoError(t, err)

	header := sheet.AddRow()
	header.AddCell().Value = "sys_RespNum"
	for _, tok := range tokens {
		header.AddCell().Value = "hATTR_" + tok + "_1c1"
	}
	header.AddCell().Value = "QC1_1"

	data := sheet.AddRow()
	data.AddCell().Value = "1"
	for range tokens {
		data.AddCell().Value = "1"
	}
	data.AddCell().Value = "1"

	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.Save(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return raw
}

func TestService_Create(t *testing.T) {
	svc := newTestService(t, nil)

	design := []conjoint.DesignRow{
		{"Version": float64(1), "Task": float64(1), "Concept": float64(1), "Att1": float64(1), "Att2": float64(2)},
		{"Version": float64(1), "Task": float64(1), "Concept": float64(2), "Att1": float64(2), "Att2": float64(1)},
	}
	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), design)
	require.NoError(t, err)

	assert.NotEmpty(t, w.ID)
	assert.Len(t, w.Attributes, 4)
	require.NotNil(t, w.DesignSummary)
	assert.Equal(t, 2, w.DesignSummary.TotalRows)

	got, err := svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Len(t, got.Design, 2)
}

func TestService_CreateRequiresName(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Create(context.Background(), "   ", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_AttachSurvey(t *testing.T) {
	svc := newTestService(t, nil)
	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), nil)
	require.NoError(t, err)

	raw := surveyExport(t, "PRICE", "BRAND")
	updated, err := svc.AttachSurvey(context.Background(), w.ID, "export.xlsx", bytes.NewReader(raw))
	require.NoError(t, err)

	require.NotNil(t, updated.SurveySummary)
	assert.Equal(t, []string{"PRICE", "BRAND"}, updated.SurveySummary.Tokens)
	assert.Equal(t, 1, updated.SurveySummary.Respondents)
	assert.Empty(t, updated.Warnings, "matching token count must not warn")
	assert.FileExists(t, updated.SurveyFile)
}

func TestService_AttachSurveyTokenMismatchWarns(t *testing.T) {
	svc := newTestService(t, nil)
	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), nil)
	require.NoError(t, err)

	raw := surveyExport(t, "PRICE")
	updated, err := svc.AttachSurvey(context.Background(), w.ID, "export.xlsx", bytes.NewReader(raw))
	require.NoError(t, err)

	require.Len(t, updated.Warnings, 1)
	assert.Contains(t, updated.Warnings[0], "1 attribute tokens")
	assert.Contains(t, updated.Warnings[0], "2 attributes")
}

func TestService_AttachSurveyRejectsNonXLSX(t *testing.T) {
	svc := newTestService(t, nil)
	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), nil)
	require.NoError(t, err)

	_, err = svc.AttachSurvey(context.Background(), w.ID, "export.csv", strings.NewReader("a,b"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_EstimateRequiresSurvey(t *testing.T) {
	svc := newTestService(t, nil)
	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), nil)
	require.NoError(t, err)

	_, err = svc.Estimate(context.Background(), w.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_EstimateEmptyCatalog(t *testing.T) {
	eng := &fakeEngine{}
	svc := newTestService(t, eng)
	w, err := svc.Create(context.Background(), "Pricing Study", nil, nil)
	require.NoError(t, err)

	_, err = svc.AttachSurvey(context.Background(), w.ID, "export.xlsx",
		bytes.NewReader(surveyExport(t, "PRICE")))
	require.NoError(t, err)

	_, err = svc.Estimate(context.Background(), w.ID)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "cannot proceed with estimation")
	assert.Zero(t, eng.estimateCalls)
}

func TestService_Estimate(t *testing.T) {
	eng := &fakeEngine{estimation: &conjoint.Estimation{
		Intercept: 0.2,
		Utilities: map[string]map[string]float64{"PRICE": {"Low": 0.4, "High": -0.4}},
	}}
	svc := newTestService(t, eng)

	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), nil)
	require.NoError(t, err)
	_, err = svc.AttachSurvey(context.Background(), w.ID, "export.xlsx",
		bytes.NewReader(surveyExport(t, "PRICE", "BRAND")))
	require.NoError(t, err)

	updated, err := svc.Estimate(context.Background(), w.ID)
	require.NoError(t, err)

	require.NotNil(t, updated.Estimation)
	assert.False(t, updated.Estimation.EstimatedAt.IsZero())
	assert.InDelta(t, 0.4, updated.Estimation.Utilities["PRICE"]["Low"], 1e-12)

	// Attribute names follow the survey export tokens.
	require.Len(t, eng.lastAttrs, 2)
	assert.Equal(t, "PRICE", eng.lastAttrs[0].Name)
	assert.Equal(t, "BRAND", eng.lastAttrs[1].Name)

	// Estimation survives a reload.
	got, err := svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Estimation)
}

func TestService_SimulateRequiresEstimation(t *testing.T) {
	svc := newTestService(t, nil)
	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), nil)
	require.NoError(t, err)

	_, err = svc.Simulate(context.Background(), w.ID,
		[]conjoint.Scenario{{"PRICE": "Low"}}, conjoint.RuleLogit)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_Simulate(t *testing.T) {
	eng := &fakeEngine{estimation: &conjoint.Estimation{
		Utilities: map[string]map[string]float64{"PRICE": {"Low": 0.4, "High": -0.4}},
	}}
	svc := newTestService(t, eng)

	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), nil)
	require.NoError(t, err)
	_, err = svc.AttachSurvey(context.Background(), w.ID, "export.xlsx",
		bytes.NewReader(surveyExport(t, "PRICE", "BRAND")))
	require.NoError(t, err)
	_, err = svc.Estimate(context.Background(), w.ID)
	require.NoError(t, err)

	res, err := svc.Simulate(context.Background(), w.ID,
		[]conjoint.Scenario{{"PRICE": "Low"}, {"PRICE": "High"}}, conjoint.RuleFirstChoice)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, res.Shares)

	_, err = svc.Simulate(context.Background(), w.ID,
		[]conjoint.Scenario{{"PRICE": "Low"}}, "bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_AnalyzeScenariosPersists(t *testing.T) {
	eng := &fakeEngine{estimation: &conjoint.Estimation{
		Utilities: map[string]map[string]float64{"PRICE": {"Low": 0.4, "High": -0.4}},
	}}
	svc := newTestService(t, eng)

	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), nil)
	require.NoError(t, err)
	_, err = svc.AttachSurvey(context.Background(), w.ID, "export.xlsx",
		bytes.NewReader(surveyExport(t, "PRICE", "BRAND")))
	require.NoError(t, err)
	_, err = svc.Estimate(context.Background(), w.ID)
	require.NoError(t, err)

	analysis, err := svc.AnalyzeScenarios(context.Background(), w.ID,
		[]conjoint.ProductShare{
			{Name: "Incumbent A", RowNumber: 1, CurrentShare: 0.6},
			{Name: "Incumbent B", RowNumber: 2, CurrentShare: 0.4},
		},
		[]conjoint.Scenario{{"PRICE": "Low"}},
		conjoint.RuleLogit,
	)
	require.NoError(t, err)
	require.Len(t, analysis.ProjectedScenarios, 1)
	require.NotNil(t, analysis.MarketImpact)

	got, err := svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Scenarios)
	assert.Equal(t, "Original Market", got.Scenarios.OriginalScenario.ScenarioName)
}

func TestService_DeleteRemovesDataDir(t *testing.T) {
	svc := newTestService(t, nil)
	w, err := svc.Create(context.Background(), "Pricing Study", attributeRecords(), nil)
	require.NoError(t, err)
	_, err = svc.AttachSurvey(context.Background(), w.ID, "export.xlsx",
		bytes.NewReader(surveyExport(t, "PRICE", "BRAND")))
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	dir := filepath.Dir(got.SurveyFile)

	require.NoError(t, svc.Delete(context.Background(), w.ID))

	_, err = svc.Get(context.Background(), w.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}
