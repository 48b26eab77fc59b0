// Package survey reads Sawtooth-style survey export workbooks. The export
// carries one row per respondent, hidden design columns named
// hATTR_<TOKEN>_<task>c<concept>, and QC1_<task> choice columns.
package survey

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// hiddenAttrPattern matches the hidden design columns a survey platform
// emits for each attribute, task, and concept position.
var hiddenAttrPattern = regexp.MustCompile(`(?i)^hATTR_(.+?)_(\d+)c(\d+)$`)

// choicePattern matches the respondent choice column for each task.
var choicePattern = regexp.MustCompile(`(?i)^QC1_(\d+)$`)

// ExportSummary describes the shape of a survey export workbook without
// carrying the respondent-level data itself.
type ExportSummary struct {
	Respondents int      `json:"respondents"`
	TaskCount   int      `json:"taskCount"`
	Tokens      []string `json:"tokens"`
	AttColumns  int      `json:"attColumns"`
	Columns     []string `json:"columns"`
}

// ReadExportSummary opens a survey export workbook and summarizes its first
// sheet. Tokens are the distinct attribute identifiers found in hidden
// design columns, in the order they first appear; header-row markers
// (tokens suffixed _H) are skipped.
func ReadExportSummary(path string) (*ExportSummary, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "survey: open export workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("survey: export workbook has no sheets")
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("survey: export sheet is empty")
	}

	headers := make([]string, len(sheet.Rows[0].Cells))
	for i, cell := range sheet.Rows[0].Cells {
		headers[i] = strings.TrimSpace(cell.String())
	}

	summary := &ExportSummary{
		Respondents: countRespondents(sheet),
		Columns:     headers,
		Tokens:      []string{},
	}

	seen := map[string]bool{}
	maxTask := 0
	for _, h := range headers {
		if m := hiddenAttrPattern.FindStringSubmatch(h); m != nil {
			summary.AttColumns++
			token := strings.ToUpper(m[1])
			if strings.HasSuffix(token, "_H") {
				continue
			}
			if !seen[token] {
				seen[token] = true
				summary.Tokens = append(summary.Tokens, token)
			}
			continue
		}
		if m := choicePattern.FindStringSubmatch(h); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > maxTask {
				maxTask = n
			}
		}
	}
	summary.TaskCount = maxTask

	return summary, nil
}

// countRespondents counts non-empty data rows below the header.
func countRespondents(sheet *xlsx.Sheet) int {
	count := 0
	for i, row := range sheet.Rows {
		if i == 0 {
			continue
		}
		for _, cell := range row.Cells {
			if strings.TrimSpace(cell.String()) != "" {
				count++
				break
			}
		}
	}
	return count
}
