// Package extract turns free-form study descriptions into structured
// attribute catalogs using an LLM.
package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/pkg/anthropic"
)

const defaultModel = "claude-sonnet-4-5-20250929"

const systemPrompt = `You convert product study briefs into conjoint attribute catalogs.
Given a description of a product category, respond with ONLY a JSON array.
Each element is one attribute level:
{"attributeNo": "1", "attributeText": "Price", "levelNo": "1", "levelText": "$10/month", "code": "1"}
Number attributes and levels starting at 1. Codes restart at 1 within each attribute.
Use 3 to 6 attributes with 2 to 5 levels each. No prose, no code fences.`

// Extractor derives attribute catalogs from plain-language study briefs.
type Extractor struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
}

// NewExtractor creates an Extractor. requestsPerMinute throttles API calls;
// zero or negative means no throttle.
func NewExtractor(client anthropic.Client, model string, requestsPerMinute int) *Extractor {
	if model == "" {
		model = defaultModel
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	return &Extractor{client: client, model: model, limiter: limiter}
}

// Attributes extracts a flat attribute catalog from a study brief.
func (e *Extractor) Attributes(ctx context.Context, brief string) ([]conjoint.FlatAttribute, error) {
	if strings.TrimSpace(brief) == "" {
		return nil, eris.New("extract: study brief is empty")
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: rate limit wait")
	}

	start := time.Now()
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: brief}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: attribute extraction")
	}
	resp.Usage.LogCost(e.model, "attribute_extraction")

	records, err := parseAttributeJSON(resp.Text())
	if err != nil {
		return nil, err
	}

	attrs := usableLevels(conjoint.NormalizeFlatAttributes(records))
	if len(attrs) == 0 {
		return nil, eris.New("extract: model returned no usable attribute levels")
	}

	zap.L().Info("attributes extracted",
		zap.Int("levels", len(attrs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return attrs, nil
}

// usableLevels drops records the encoder would discard anyway: levels with
// no attribute number, no code, or no text.
func usableLevels(attrs []conjoint.FlatAttribute) []conjoint.FlatAttribute {
	out := attrs[:0]
	for _, a := range attrs {
		if a.AttributeNo != "" && a.Code != "" && a.LevelText != "" {
			out = append(out, a)
		}
	}
	return out
}

// parseAttributeJSON decodes the model output, tolerating stray code fences
// and leading prose around the JSON array.
func parseAttributeJSON(text string) ([]map[string]any, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, eris.New("extract: no JSON array in model response")
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &records); err != nil {
		return nil, eris.Wrap(err, "extract: parse model response")
	}
	return records, nil
}
