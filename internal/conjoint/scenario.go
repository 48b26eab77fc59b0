package conjoint

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// ProductShare is one existing product and its current market share as
// reported by the researcher.
type ProductShare struct {
	Name         string  `json:"name"`
	RowNumber    int     `json:"rowNumber"`
	CurrentShare float64 `json:"currentShare"`
}

// ScenarioProduct is a product inside a projected market scenario.
type ScenarioProduct struct {
	Name         string  `json:"name"`
	RowNumber    int     `json:"rowNumber"`
	CurrentShare float64 `json:"currentShare"`
	MarketShare  float64 `json:"marketShare"`
	Change       float64 `json:"change"`
}

// MarketScenario is one market state: the original market or a projection
// after a new concept enters.
type MarketScenario struct {
	ScenarioName string            `json:"scenarioName"`
	Products     []ScenarioProduct `json:"products"`
	TotalShare   float64           `json:"totalShare"`
}

// MarketImpact summarizes how the market moves between the original state
// and the first projected scenario, including Herfindahl-Hirschman
// concentration before and after.
type MarketImpact struct {
	TotalMarketChange   float64   `json:"totalMarketChange"`
	MaxIncrease         float64   `json:"maxIncrease"`
	MaxDecrease         float64   `json:"maxDecrease"`
	OriginalHHI         float64   `json:"originalHHI"`
	ProjectedHHI        float64   `json:"projectedHHI"`
	ConcentrationChange float64   `json:"concentrationChange"`
	IndividualChanges   []float64 `json:"individualChanges"`
	NewProductShare     float64   `json:"newProductShare"`
	MarketExpansion     bool      `json:"marketExpansion"`
}

// ScenarioAnalysisRequest asks for projected market shares when new product
// concepts enter an existing market.
type ScenarioAnalysisRequest struct {
	Intercept            float64                       `json:"intercept"`
	Utilities            map[string]map[string]float64 `json:"utilities"`
	OriginalMarketShares []ProductShare                `json:"originalMarketShares"`
	NewScenarios         []Scenario                    `json:"newScenarios"`
	Rule                 string                        `json:"rule"`
}

// ScenarioAnalysis is the full comparison between the original market and
// the projected scenarios.
type ScenarioAnalysis struct {
	OriginalScenario   MarketScenario   `json:"originalScenario"`
	ProjectedScenarios []MarketScenario `json:"projectedScenarios"`
	MarketImpact       *MarketImpact    `json:"marketImpact,omitempty"`
}

// Utility floor assigned to products reporting a zero market share, so the
// log transform stays finite.
const zeroShareUtility = -10

// AnalyzeScenarios projects market shares when new concepts enter a market.
// Existing products are positioned by the log of their normalized current
// share; each new concept's utility comes from the estimated partworths.
// Shares are recomputed under the requested choice rule with the same
// semantics as Simulate.
func AnalyzeScenarios(req ScenarioAnalysisRequest) (*ScenarioAnalysis, error) {
	if len(req.NewScenarios) == 0 {
		return nil, eris.New("scenarios: newScenarios must be a non-empty list")
	}
	if req.Utilities == nil {
		return nil, eris.New("scenarios: utilities must be an object keyed by attribute")
	}
	if req.Rule != RuleLogit && req.Rule != RuleFirstChoice {
		return nil, eris.Errorf("scenarios: unsupported choice rule %q (use %q or %q)",
			req.Rule, RuleLogit, RuleFirstChoice)
	}

	normalized := normalizeShares(req.OriginalMarketShares)

	original := MarketScenario{ScenarioName: "Original Market"}
	for i, p := range req.OriginalMarketShares {
		original.Products = append(original.Products, ScenarioProduct{
			Name:         p.Name,
			RowNumber:    p.RowNumber,
			CurrentShare: p.CurrentShare,
			MarketShare:  normalized[i],
		})
		original.TotalShare += normalized[i]
	}

	// Existing products compete at log(share) utility.
	existing := make([]float64, len(normalized))
	for i, share := range normalized {
		if share > 0 {
			existing[i] = math.Log(share)
		} else {
			existing[i] = zeroShareUtility
		}
	}

	analysis := &ScenarioAnalysis{OriginalScenario: original}

	for idx, scenario := range req.NewScenarios {
		newUtility := scenarioTotals([]Scenario{scenario}, req.Utilities, req.Intercept)[0]
		totals := append(append([]float64{}, existing...), newUtility)

		var projected []float64
		if req.Rule == RuleLogit {
			projected = logitShares(totals)
		} else {
			projected = firstChoiceShares(totals)
		}

		ms := MarketScenario{ScenarioName: fmt.Sprintf("Scenario %d", idx+1)}
		for i, p := range original.Products {
			ms.Products = append(ms.Products, ScenarioProduct{
				Name:         p.Name,
				RowNumber:    p.RowNumber,
				CurrentShare: p.CurrentShare,
				MarketShare:  projected[i],
				Change:       projected[i] - normalized[i],
			})
		}
		ms.Products = append(ms.Products, ScenarioProduct{
			Name:        fmt.Sprintf("New Product %d", idx+1),
			RowNumber:   len(original.Products) + idx + 1,
			MarketShare: projected[len(projected)-1],
			Change:      projected[len(projected)-1],
		})
		for _, s := range projected {
			ms.TotalShare += s
		}
		analysis.ProjectedScenarios = append(analysis.ProjectedScenarios, ms)
	}

	if len(analysis.ProjectedScenarios) > 0 {
		analysis.MarketImpact = marketImpact(normalized, analysis.ProjectedScenarios[0])
	}

	return analysis, nil
}

func normalizeShares(products []ProductShare) []float64 {
	shares := make([]float64, len(products))
	total := 0.0
	for i, p := range products {
		shares[i] = p.CurrentShare
		total += p.CurrentShare
	}
	if total == 0 {
		return shares
	}
	for i := range shares {
		shares[i] /= total
	}
	return shares
}

// marketImpact compares the original normalized shares against the first
// projected scenario (new product excluded from the pairwise changes).
func marketImpact(original []float64, projected MarketScenario) *MarketImpact {
	impact := &MarketImpact{}

	n := len(original)
	impact.IndividualChanges = make([]float64, n)
	for i := 0; i < n; i++ {
		change := projected.Products[i].MarketShare - original[i]
		impact.IndividualChanges[i] = change
		impact.TotalMarketChange += change
		// Max/min over the changes themselves, so when every incumbent
		// moves the same direction these report the extremes, not zero.
		if i == 0 || change > impact.MaxIncrease {
			impact.MaxIncrease = change
		}
		if i == 0 || change < impact.MaxDecrease {
			impact.MaxDecrease = change
		}
	}

	for _, s := range original {
		impact.OriginalHHI += s * s
	}
	for i := 0; i < n; i++ {
		s := projected.Products[i].MarketShare
		impact.ProjectedHHI += s * s
	}
	impact.ConcentrationChange = impact.ProjectedHHI - impact.OriginalHHI

	newProduct := projected.Products[len(projected.Products)-1]
	impact.NewProductShare = newProduct.MarketShare
	impact.MarketExpansion = newProduct.MarketShare > 0

	return impact
}
