package engine

import (
	"sort"

	"github.com/roach88/triage/internal/core"
)

// Prioritize orders rules by predicted failure probability, highest first.
// Ties break by severity rank (CRITICAL first), then registration order.
// The sort is stable and the tie-breakers total, so two rule sets with the
// same members always order identically regardless of input permutation.
//
// Rules absent from scores take the neutral prior, which in practice only
// happens when a registry changed between prediction and ordering.
func Prioritize(rules []core.Rule, scores map[string]float64, neutralPrior float64) []core.Rule {
	ordered := append([]core.Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := score(scores, ordered[i].ID, neutralPrior), score(scores, ordered[j].ID, neutralPrior)
		if si != sj {
			return si > sj
		}
		if ordered[i].Severity != ordered[j].Severity {
			return ordered[i].Severity.Rank() > ordered[j].Severity.Rank()
		}
		return ordered[i].Order < ordered[j].Order
	})
	return ordered
}

// FixedOrder returns rules in registration order.
func FixedOrder(rules []core.Rule) []core.Rule {
	ordered := append([]core.Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})
	return ordered
}

func score(scores map[string]float64, ruleID string, neutralPrior float64) float64 {
	if s, ok := scores[ruleID]; ok {
		return s
	}
	return neutralPrior
}
