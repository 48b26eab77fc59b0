package conjoint

import (
	"math"

	"github.com/rotisserie/eris"
)

// Choice rules supported by the simulation engine.
const (
	RuleLogit       = "logit"
	RuleFirstChoice = "first_choice"
)

// Ties in first-choice simulation are utilities within this tolerance of
// the maximum; tied winners split the share evenly.
const tieTolerance = 1e-9

// Scenario is one hypothetical concept: a map of attribute name to the
// chosen level (a level code or level text, matched verbatim against the
// utility keys after string coercion).
type Scenario map[string]any

// SimulationRequest bundles the inputs for a market share simulation.
type SimulationRequest struct {
	Intercept float64                       `json:"intercept"`
	Utilities map[string]map[string]float64 `json:"utilities"`
	Scenarios []Scenario                    `json:"scenarios"`
	Rule      string                        `json:"rule"`
}

// SimulationResult holds one total utility and one share per scenario,
// order-preserving.
type SimulationResult struct {
	Utilities []float64 `json:"utilities"`
	Shares    []float64 `json:"shares"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// Simulate computes total utilities and market shares for a scenario set.
//
// Preconditions are hard errors, never silently defaulted: the scenario set
// must be non-empty, utilities must be non-nil, and the rule must be exactly
// "logit" or "first_choice".
//
// A scenario level absent from its attribute's utility map is the reference
// level; under zero-centered dummy coding its utility is the negative sum of
// the attribute's listed utilities.
func Simulate(req SimulationRequest) (*SimulationResult, error) {
	if len(req.Scenarios) == 0 {
		return nil, eris.New("simulate: scenarios must be a non-empty list")
	}
	if req.Utilities == nil {
		return nil, eris.New("simulate: utilities must be an object keyed by attribute")
	}
	if req.Rule != RuleLogit && req.Rule != RuleFirstChoice {
		return nil, eris.Errorf("simulate: unsupported choice rule %q (use %q or %q)",
			req.Rule, RuleLogit, RuleFirstChoice)
	}

	totals := scenarioTotals(req.Scenarios, req.Utilities, req.Intercept)

	var shares []float64
	switch req.Rule {
	case RuleFirstChoice:
		shares = firstChoiceShares(totals)
	case RuleLogit:
		shares = logitShares(totals)
	}

	return &SimulationResult{Utilities: totals, Shares: shares}, nil
}

// scenarioTotals computes the total utility of each scenario: intercept plus
// the partworth of every attribute level the scenario selects.
func scenarioTotals(scenarios []Scenario, utilities map[string]map[string]float64, intercept float64) []float64 {
	totals := make([]float64, len(scenarios))
	for i, scenario := range scenarios {
		total := intercept
		for attr, raw := range scenario {
			levelUtils := utilities[attr]
			if len(levelUtils) == 0 {
				continue
			}
			level := coerceString(raw)
			if u, ok := levelUtils[level]; ok {
				total += u
				continue
			}
			// Reference level: utility = -sum of the listed levels.
			for _, u := range levelUtils {
				total -= u
			}
		}
		totals[i] = total
	}
	return totals
}

// firstChoiceShares assigns all share to the scenario(s) with maximum
// utility. Scenarios within tieTolerance of the maximum are tied winners and
// split the share evenly; ties are never broken by position.
func firstChoiceShares(totals []float64) []float64 {
	max := totals[0]
	for _, u := range totals[1:] {
		if u > max {
			max = u
		}
	}

	winners := 0
	for _, u := range totals {
		if max-u <= tieTolerance {
			winners++
		}
	}

	shares := make([]float64, len(totals))
	for i, u := range totals {
		if max-u <= tieTolerance {
			shares[i] = 1.0 / float64(winners)
		}
	}
	return shares
}

// logitShares converts utilities to multinomial logit probabilities using
// the max-subtraction trick for numerical stability. A zero exponential sum
// yields all-zero shares instead of a division by zero.
func logitShares(totals []float64) []float64 {
	max := totals[0]
	for _, u := range totals[1:] {
		if u > max {
			max = u
		}
	}

	exps := make([]float64, len(totals))
	sum := 0.0
	for i, u := range totals {
		exps[i] = math.Exp(u - max)
		sum += exps[i]
	}

	shares := make([]float64, len(totals))
	if sum == 0 {
		return shares
	}
	for i, e := range exps {
		shares[i] = e / sum
	}
	return shares
}
