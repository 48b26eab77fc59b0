package conjoint

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DesignSummary describes a generated experimental design: which columns
// carry attribute codes, how tasks and concepts are distributed per version,
// and how often each attribute level appears across the whole matrix.
type DesignSummary struct {
	AttColumnCount    int                 `json:"attColumnCount"`
	AttColumns        []string            `json:"attColumns"`
	TotalRows         int                 `json:"totalRows"`
	Versions          []VersionSummary    `json:"versions"`
	AttributeCoverage []AttributeCoverage `json:"attributeCoverage"`
}

// VersionSummary holds per-version task/concept statistics.
type VersionSummary struct {
	Version            string  `json:"version"`
	Rows               int     `json:"rows"`
	Tasks              int     `json:"tasks"`
	MinConceptsPerTask int     `json:"minConceptsPerTask"`
	MaxConceptsPerTask int     `json:"maxConceptsPerTask"`
	AvgConceptsPerTask float64 `json:"avgConceptsPerTask"`
}

// AttributeCoverage counts how often each level of one attribute appears in
// the design. Total is always the full design row count: it is the
// denominator for coverage percentages, not a per-attribute row count.
type AttributeCoverage struct {
	AttributeNo   string       `json:"attributeNo"`
	AttributeText string       `json:"attributeText"`
	Total         int          `json:"total"`
	Levels        []LevelCount `json:"levels"`
}

// LevelCount is the appearance count of one level across the design matrix.
type LevelCount struct {
	LevelText string `json:"levelText"`
	Count     int    `json:"count"`
}

// Attribute columns in generated designs follow one of a few fixed naming
// shapes: ATT1, ATTRIBUTE 1, A1.
var attColumnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^att\d+$`),
	regexp.MustCompile(`(?i)^attribute\s*\d+$`),
	regexp.MustCompile(`(?i)^a\d+$`),
}

var trailingDigitsRe = regexp.MustCompile(`(\d+)$`)

// SummarizeDesign computes a DesignSummary for the given design matrix and
// the normalized flat attribute catalog. An empty matrix yields an all-zero
// summary with empty (non-nil) slices rather than an error.
func SummarizeDesign(design []DesignRow, flat []FlatAttribute) DesignSummary {
	summary := DesignSummary{
		AttColumns:        []string{},
		Versions:          []VersionSummary{},
		AttributeCoverage: []AttributeCoverage{},
	}
	if len(design) == 0 {
		return summary
	}

	columns := sortedColumns(design[0])
	attColumns := make([]string, 0, len(columns))
	var versionCol, taskCol, conceptCol string
	for _, col := range columns {
		if isAttColumn(col) {
			attColumns = append(attColumns, col)
		}
		lower := strings.ToLower(col)
		switch {
		case versionCol == "" && strings.Contains(lower, "version"):
			versionCol = col
		case taskCol == "" && strings.Contains(lower, "task"):
			taskCol = col
		case conceptCol == "" && (strings.Contains(lower, "concept") || strings.Contains(lower, "alt")):
			conceptCol = col
		}
	}

	summary.AttColumns = attColumns
	summary.AttColumnCount = len(attColumns)
	summary.TotalRows = len(design)
	summary.Versions = summarizeVersions(design, versionCol, taskCol, conceptCol)
	summary.AttributeCoverage = coverage(design, attColumns, flat)
	return summary
}

func isAttColumn(name string) bool {
	for _, re := range attColumnPatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// sortedColumns returns the first row's column names in a deterministic
// order: trailing-number aware, then lexicographic.
func sortedColumns(row DesignRow) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		pi, ni := splitTrailingNumber(cols[i])
		pj, nj := splitTrailingNumber(cols[j])
		if pi == pj && ni != nj {
			return ni < nj
		}
		return cols[i] < cols[j]
	})
	return cols
}

func splitTrailingNumber(s string) (string, int) {
	m := trailingDigitsRe.FindStringSubmatch(s)
	if m == nil {
		return s, 0
	}
	n, _ := strconv.Atoi(m[1])
	return strings.TrimSuffix(s, m[1]), n
}

func summarizeVersions(design []DesignRow, versionCol, taskCol, conceptCol string) []VersionSummary {
	byVersion := make(map[string][]DesignRow)
	for _, row := range design {
		v := ""
		if versionCol != "" {
			v = coerceString(row[versionCol])
		}
		byVersion[v] = append(byVersion[v], row)
	}

	versions := make([]string, 0, len(byVersion))
	for v := range byVersion {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return lessNumericAware(versions[i], versions[j]) })

	out := make([]VersionSummary, 0, len(versions))
	for _, v := range versions {
		rows := byVersion[v]
		vs := VersionSummary{Version: v, Rows: len(rows)}
		if taskCol != "" {
			vs.Tasks, vs.MinConceptsPerTask, vs.MaxConceptsPerTask, vs.AvgConceptsPerTask =
				taskStats(rows, taskCol, conceptCol)
		}
		out = append(out, vs)
	}
	return out
}

// taskStats computes the distinct task count and min/max/average concepts
// per task. Concepts per task are distinct concept-column values when a
// concept column exists, otherwise the row count of the task.
func taskStats(rows []DesignRow, taskCol, conceptCol string) (tasks, minC, maxC int, avgC float64) {
	concepts := make(map[string]map[string]bool)
	rowCounts := make(map[string]int)
	for _, row := range rows {
		task := coerceString(row[taskCol])
		rowCounts[task]++
		if conceptCol != "" {
			set, ok := concepts[task]
			if !ok {
				set = make(map[string]bool)
				concepts[task] = set
			}
			set[coerceString(row[conceptCol])] = true
		}
	}

	tasks = len(rowCounts)
	if tasks == 0 {
		return 0, 0, 0, 0
	}

	total := 0
	first := true
	for task, count := range rowCounts {
		c := count
		if conceptCol != "" {
			c = len(concepts[task])
		}
		if first || c < minC {
			minC = c
		}
		if first || c > maxC {
			maxC = c
		}
		first = false
		total += c
	}
	avgC = float64(total) / float64(tasks)
	return tasks, minC, maxC, avgC
}

// coverage counts level appearances per attribute across all attribute
// columns. Each attribute's Total is the full design length regardless of
// how many attribute columns exist.
func coverage(design []DesignRow, attColumns []string, flat []FlatAttribute) []AttributeCoverage {
	type covGroup struct {
		no     string
		text   string
		order  []string       // level texts, first-seen order
		byCode map[string]int // code -> index into order
		counts []int
	}

	groups := make(map[string]*covGroup)
	var groupOrder []string
	for _, rec := range flat {
		no := strings.TrimSpace(rec.AttributeNo)
		if no == "" {
			continue
		}
		g, ok := groups[no]
		if !ok {
			g = &covGroup{no: no, byCode: make(map[string]int)}
			groups[no] = g
			groupOrder = append(groupOrder, no)
		}
		if g.text == "" && strings.TrimSpace(rec.AttributeText) != "" {
			g.text = strings.TrimSpace(rec.AttributeText)
		}
		code := strings.TrimSpace(rec.Code)
		text := strings.TrimSpace(rec.LevelText)
		if code == "" || text == "" {
			continue
		}
		if _, seen := g.byCode[code]; seen {
			continue
		}
		g.byCode[code] = len(g.order)
		g.order = append(g.order, text)
		g.counts = append(g.counts, 0)
	}

	sort.Slice(groupOrder, func(i, j int) bool { return lessNumericAware(groupOrder[i], groupOrder[j]) })

	for _, row := range design {
		for _, col := range attColumns {
			code := coerceString(row[col])
			if code == "" {
				continue
			}
			for _, g := range groups {
				if idx, ok := g.byCode[code]; ok {
					g.counts[idx]++
				}
			}
		}
	}

	out := make([]AttributeCoverage, 0, len(groupOrder))
	for _, no := range groupOrder {
		g := groups[no]
		levels := make([]LevelCount, len(g.order))
		for i, text := range g.order {
			levels[i] = LevelCount{LevelText: text, Count: g.counts[i]}
		}
		out = append(out, AttributeCoverage{
			AttributeNo:   g.no,
			AttributeText: g.text,
			Total:         len(design),
			Levels:        levels,
		})
	}
	return out
}
