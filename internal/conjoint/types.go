// Package conjoint implements the conjoint-analysis core: attribute
// encoding, design-matrix summaries, and discrete-choice market share
// simulation.
package conjoint

import (
	"strconv"
	"strings"
)

// FlatAttribute is a single attribute/level record in the normalized form
// the core operates on. Upstream exports use several historical key aliases
// for the same fields (attributeNo/attributeNumber, levelText/levelName,
// ...); NormalizeFlatAttributes resolves them once at the boundary.
type FlatAttribute struct {
	AttributeNo   string `json:"attributeNo"`
	AttributeText string `json:"attributeText"`
	LevelNo       string `json:"levelNo"`
	LevelText     string `json:"levelText"`
	Code          string `json:"code"`
}

// Level is one estimator-ready level of an encoded attribute. Code is the
// value stored in the design matrix; Level is the human-readable text.
type Level struct {
	Code  string `json:"code"`
	Level string `json:"level"`
}

// Attribute is a grouped, uniquely-named attribute encoding as consumed by
// the estimation service. Reference holds the level text of the last sorted
// level (dummy-coding convention: the reference level carries no explicit
// utility).
type Attribute struct {
	Name        string  `json:"name"`
	Label       string  `json:"label"`
	AttributeNo string  `json:"attributeNo"`
	Levels      []Level `json:"levels"`
	Reference   string  `json:"reference,omitempty"`
}

// Schema is the attribute schema returned alongside estimated utilities.
type Schema struct {
	Attributes []Attribute `json:"attributes"`
}

// Estimation holds partworth utilities produced by estimation and consumed
// by simulation. Utilities maps attribute name to level text to partworth;
// per attribute the level keys exactly match the non-reference levels shown
// to respondents.
type Estimation struct {
	Intercept   float64                       `json:"intercept"`
	Utilities   map[string]map[string]float64 `json:"utilities"`
	Columns     []string                      `json:"columns,omitempty"`
	Schema      *Schema                       `json:"schema,omitempty"`
	Diagnostics map[string]any                `json:"diagnostics,omitempty"`
	Warnings    []string                      `json:"warnings,omitempty"`
}

// DesignRow is one row of a generated experimental design: an open map of
// column name to value.
type DesignRow map[string]any

// NormalizeFlatAttributes converts loosely-typed attribute records into
// strict FlatAttribute values, resolving historical key aliases and
// coercing numeric values to strings. Records that resolve to a blank
// attribute number are kept here and skipped later by the encoder.
func NormalizeFlatAttributes(records []map[string]any) []FlatAttribute {
	out := make([]FlatAttribute, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		out = append(out, FlatAttribute{
			AttributeNo:   firstAlias(rec, "attributeNo", "attributeNumber", "attribute_no"),
			AttributeText: firstAlias(rec, "attributeText", "attributeName", "attribute_text"),
			LevelNo:       firstAlias(rec, "levelNo", "levelNumber", "level_no"),
			LevelText:     firstAlias(rec, "levelText", "levelName", "level_text"),
			Code:          firstAlias(rec, "code", "levelCode"),
		})
	}
	return out
}

func firstAlias(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := rec[k]; ok {
			if s := coerceString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// coerceString renders a design/scenario cell value as a trimmed string.
// JSON numbers arrive as float64; integral values drop the decimal point so
// a code stored as 3 matches a code typed as "3".
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return coerceString(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
