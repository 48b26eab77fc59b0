package conjoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func designRows() []DesignRow {
	return []DesignRow{
		{"Version": "1", "Task": "1", "Concept": "1", "ATT1": "1", "ATT2": "1"},
		{"Version": "1", "Task": "1", "Concept": "2", "ATT1": "2", "ATT2": "2"},
		{"Version": "1", "Task": "2", "Concept": "1", "ATT1": "3", "ATT2": "1"},
		{"Version": "2", "Task": "1", "Concept": "1", "ATT1": "1", "ATT2": "2"},
	}
}

func TestSummarizeDesign_EmptyMatrix(t *testing.T) {
	s := SummarizeDesign(nil, flatPriceBrand())

	assert.Equal(t, 0, s.AttColumnCount)
	assert.NotNil(t, s.AttColumns)
	assert.Empty(t, s.AttColumns)
	assert.Equal(t, 0, s.TotalRows)
	assert.Empty(t, s.Versions)
	assert.Empty(t, s.AttributeCoverage)
}

func TestSummarizeDesign_DetectsAttributeColumns(t *testing.T) {
	rows := []DesignRow{{
		"ATT1":        "1",
		"attribute 2": "1",
		"a3":          "1",
		"Version":     "1",
		"Notes":       "x",
	}}
	s := SummarizeDesign(rows, nil)

	assert.Equal(t, 3, s.AttColumnCount)
	assert.ElementsMatch(t, []string{"ATT1", "attribute 2", "a3"}, s.AttColumns)
}

func TestSummarizeDesign_VersionGrouping(t *testing.T) {
	s := SummarizeDesign(designRows(), flatPriceBrand())

	require.Len(t, s.Versions, 2)
	assert.Equal(t, "1", s.Versions[0].Version)
	assert.Equal(t, 3, s.Versions[0].Rows)
	assert.Equal(t, 2, s.Versions[0].Tasks)
	assert.Equal(t, 1, s.Versions[0].MinConceptsPerTask)
	assert.Equal(t, 2, s.Versions[0].MaxConceptsPerTask)
	assert.InDelta(t, 1.5, s.Versions[0].AvgConceptsPerTask, 1e-12)

	assert.Equal(t, "2", s.Versions[1].Version)
	assert.Equal(t, 1, s.Versions[1].Rows)
	assert.Equal(t, 1, s.Versions[1].Tasks)
}

func TestSummarizeDesign_NoVersionColumn(t *testing.T) {
	rows := []DesignRow{
		{"Task": "1", "ATT1": "1"},
		{"Task": "2", "ATT1": "2"},
	}
	s := SummarizeDesign(rows, nil)

	require.Len(t, s.Versions, 1)
	assert.Equal(t, "", s.Versions[0].Version)
	assert.Equal(t, 2, s.Versions[0].Rows)
	assert.Equal(t, 2, s.Versions[0].Tasks)
}

func TestSummarizeDesign_NoTaskColumn(t *testing.T) {
	rows := []DesignRow{{"ATT1": "1"}, {"ATT1": "2"}}
	s := SummarizeDesign(rows, nil)

	require.Len(t, s.Versions, 1)
	assert.Equal(t, 0, s.Versions[0].Tasks)
	assert.Equal(t, 0, s.Versions[0].MinConceptsPerTask)
	assert.Equal(t, 0.0, s.Versions[0].AvgConceptsPerTask)
}

func TestSummarizeDesign_CoverageTotalsEqualRowCount(t *testing.T) {
	rows := designRows()
	s := SummarizeDesign(rows, flatPriceBrand())

	require.Len(t, s.AttributeCoverage, 2)
	for _, cov := range s.AttributeCoverage {
		assert.Equal(t, len(rows), cov.Total, "attribute %s", cov.AttributeNo)
	}
}

func TestSummarizeDesign_LevelCounts(t *testing.T) {
	s := SummarizeDesign(designRows(), flatPriceBrand())

	require.Len(t, s.AttributeCoverage, 2)
	price := s.AttributeCoverage[0]
	assert.Equal(t, "1", price.AttributeNo)
	assert.Equal(t, "Price", price.AttributeText)
	require.Len(t, price.Levels, 3)

	// Code "1" appears in ATT1 twice and ATT2 twice (per-cell matching
	// across every attribute column).
	counts := map[string]int{}
	for _, l := range price.Levels {
		counts[l.LevelText] = l.Count
	}
	assert.Equal(t, 4, counts["Low"])
	assert.Equal(t, 3, counts["Medium"])
	assert.Equal(t, 1, counts["High"])
}

func TestSummarizeDesign_NumericCellValues(t *testing.T) {
	rows := []DesignRow{
		{"ATT1": float64(1)},
		{"ATT1": float64(2)},
	}
	flat := []FlatAttribute{
		{AttributeNo: "1", AttributeText: "Price", LevelText: "Low", Code: "1"},
		{AttributeNo: "1", AttributeText: "Price", LevelText: "High", Code: "2"},
	}
	s := SummarizeDesign(rows, flat)

	require.Len(t, s.AttributeCoverage, 1)
	assert.Equal(t, 1, s.AttributeCoverage[0].Levels[0].Count)
	assert.Equal(t, 1, s.AttributeCoverage[0].Levels[1].Count)
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "3", coerceString(float64(3)))
	assert.Equal(t, "3.5", coerceString(3.5))
	assert.Equal(t, "x", coerceString("  x  "))
	assert.Equal(t, "", coerceString(nil))
	assert.Equal(t, "7", coerceString(7))
}
