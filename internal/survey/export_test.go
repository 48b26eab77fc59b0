package survey

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeExport(t *testing.T, headers []string, rows [][]string) string {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Data")
	require.NoError(t, err)

	hr := sheet.AddRow()
	for _, h := range headers {
		hr.AddCell().Value = h
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().Value = v
		}
	}

	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadExportSummary(t *testing.T) {
	headers := []string{
		"sys_RespNum",
		"hATTR_PRICE_1c1", "hATTR_PRICE_1c2",
		"hATTR_BRAND_1c1", "hATTR_BRAND_1c2",
		"hATTR_PRICE_2c1", "hATTR_PRICE_2c2",
		"hATTR_BRAND_2c1", "hATTR_BRAND_2c2",
		"QC1_1", "QC1_2",
	}
	path := writeExport(t, headers, [][]string{
		{"1", "1", "2", "1", "2", "2", "1", "2", "1", "1", "2"},
		{"2", "2", "1", "2", "1", "1", "2", "1", "2", "2", "1"},
		{"3", "1", "1", "2", "2", "2", "2", "1", "1", "1", "1"},
	})

	sum, err := ReadExportSummary(path)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Respondents)
	assert.Equal(t, 2, sum.TaskCount)
	assert.Equal(t, []string{"PRICE", "BRAND"}, sum.Tokens)
	assert.Equal(t, 8, sum.AttColumns)
	assert.Equal(t, headers, sum.Columns)
}

func TestReadExportSummarySkipsHeaderTokens(t *testing.T) {
	path := writeExport(t,
		[]string{"hATTR_PRICE_H_1c1", "hATTR_PRICE_1c1", "QC1_1"},
		[][]string{{"0", "1", "1"}},
	)

	sum, err := ReadExportSummary(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"PRICE"}, sum.Tokens)
	assert.Equal(t, 2, sum.AttColumns, "header marker columns still count as design columns")
}

func TestReadExportSummaryCaseInsensitive(t *testing.T) {
	path := writeExport(t,
		[]string{"hattr_speed_1c1", "qc1_3"},
		[][]string{{"1", "2"}},
	)

	sum, err := ReadExportSummary(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPEED"}, sum.Tokens)
	assert.Equal(t, 3, sum.TaskCount, "task count follows the highest choice column index")
}

func TestReadExportSummaryIgnoresBlankRows(t *testing.T) {
	path := writeExport(t,
		[]string{"sys_RespNum", "QC1_1"},
		[][]string{{"1", "1"}, {"", ""}, {"2", "2"}},
	)

	sum, err := ReadExportSummary(path)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Respondents)
	assert.Empty(t, sum.Tokens)
	assert.Zero(t, sum.AttColumns)
}

func TestReadExportSummaryMissingFile(t *testing.T) {
	_, err := ReadExportSummary(filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)
}

func TestReadExportSummaryEmptySheet(t *testing.T) {
	f := xlsx.NewFile()
	_, err := f.AddSheet("Data")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, f.Save(path))

	_, err = ReadExportSummary(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
