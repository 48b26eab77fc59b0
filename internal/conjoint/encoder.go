package conjoint

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonAlnumRe   = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// SanitizeIdentifier normalizes a label into an uppercase snake-case token
// suitable for estimator column names. Returns "" when nothing survives.
func SanitizeIdentifier(s string) string {
	s = strings.TrimSpace(s)
	s = whitespaceRe.ReplaceAllString(s, "_")
	s = nonAlnumRe.ReplaceAllString(s, "_")
	s = underscoreRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	return strings.ToUpper(s)
}

type attrGroup struct {
	no     string
	text   string
	levels []groupLevel
}

type groupLevel struct {
	code    string
	text    string
	levelNo float64 // +Inf when absent or unparsable
}

// EncodeAttributes groups flat attribute/level records into the ordered,
// uniquely-named encoding the estimation service expects.
//
// surveyTokens are the short attribute tokens discovered from survey-export
// column headers, in encounter order; the token at a group's sort rank names
// the group. Groups with no usable token fall back to their sanitized
// attribute text, then to a synthetic ATT<NN> name. Names are de-duplicated
// with _2, _3, ... suffixes.
//
// Levels missing either a code or a level text are silently dropped. The
// reference of each attribute is the text of its last sorted level. An empty
// input yields an empty (non-nil) result; callers decide whether that blocks
// estimation.
func EncodeAttributes(flat []FlatAttribute, surveyTokens []string) []Attribute {
	groups := make(map[string]*attrGroup)
	for _, rec := range flat {
		no := strings.TrimSpace(rec.AttributeNo)
		if no == "" {
			continue
		}
		g, ok := groups[no]
		if !ok {
			g = &attrGroup{no: no}
			groups[no] = g
		}
		if g.text == "" && strings.TrimSpace(rec.AttributeText) != "" {
			g.text = strings.TrimSpace(rec.AttributeText)
		}

		code := strings.TrimSpace(rec.Code)
		text := strings.TrimSpace(rec.LevelText)
		if code == "" || text == "" {
			continue
		}
		g.levels = append(g.levels, groupLevel{
			code:    code,
			text:    text,
			levelNo: parseLevelNo(rec.LevelNo),
		})
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessNumericAware(keys[i], keys[j]) })

	out := make([]Attribute, 0, len(keys))
	used := make(map[string]bool, len(keys))
	for idx, key := range keys {
		g := groups[key]

		var candidate string
		if idx < len(surveyTokens) {
			candidate = surveyTokens[idx]
		}
		name := SanitizeIdentifier(candidate)
		if name == "" {
			name = SanitizeIdentifier(g.text)
		}
		if name == "" {
			name = fmt.Sprintf("ATT%02d", idx+1)
		}
		base := name
		for attempt := 2; used[name]; attempt++ {
			name = fmt.Sprintf("%s_%d", base, attempt)
		}
		used[name] = true

		sortGroupLevels(g.levels)
		levels := make([]Level, 0, len(g.levels))
		for _, l := range g.levels {
			levels = append(levels, Level{Code: l.code, Level: l.text})
		}

		var reference string
		if len(levels) > 0 {
			reference = levels[len(levels)-1].Level
		}

		label := g.text
		if label == "" {
			label = name
		}

		out = append(out, Attribute{
			Name:        name,
			Label:       label,
			AttributeNo: g.no,
			Levels:      levels,
			Reference:   reference,
		})
	}

	return out
}

// sortGroupLevels orders levels by levelNo when available, then by numeric
// code value, then lexicographically by code.
func sortGroupLevels(levels []groupLevel) {
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].levelNo != levels[j].levelNo {
			return levels[i].levelNo < levels[j].levelNo
		}
		ci, erri := strconv.ParseFloat(levels[i].code, 64)
		cj, errj := strconv.ParseFloat(levels[j].code, 64)
		if erri == nil && errj == nil && ci != cj {
			return ci < cj
		}
		return levels[i].code < levels[j].code
	})
}

func parseLevelNo(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.Inf(1)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.Inf(1)
	}
	return n
}

// lessNumericAware compares attribute numbers numerically when both parse,
// falling back to a lexicographic comparison.
func lessNumericAware(a, b string) bool {
	na, erra := strconv.ParseFloat(a, 64)
	nb, errb := strconv.ParseFloat(b, 64)
	if erra == nil && errb == nil && na != nb {
		return na < nb
	}
	return a < b
}
