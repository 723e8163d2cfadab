package engine

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/triage/internal/core"
)

func ruleSet() []core.Rule {
	return []core.Rule{
		{ID: "lint", Severity: core.SeverityMedium, Order: 0},
		{ID: "schema", Severity: core.SeverityCritical, Order: 1},
		{ID: "links", Severity: core.SeverityMedium, Order: 2},
		{ID: "secrets", Severity: core.SeverityHigh, Order: 3},
	}
}

func ids(rules []core.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func TestPrioritizeByScore(t *testing.T) {
	scores := map[string]float64{"lint": 0.1, "schema": 0.7, "links": 0.9, "secrets": 0.3}
	ordered := Prioritize(ruleSet(), scores, 0.5)
	assert.Equal(t, []string{"links", "schema", "secrets", "lint"}, ids(ordered))
}

func TestPrioritizeTieBreaksBySeverityThenOrder(t *testing.T) {
	// All scores equal: severity rank decides, then registration order.
	scores := map[string]float64{"lint": 0.5, "schema": 0.5, "links": 0.5, "secrets": 0.5}
	ordered := Prioritize(ruleSet(), scores, 0.5)
	assert.Equal(t, []string{"schema", "secrets", "lint", "links"}, ids(ordered))
}

func TestPrioritizeMissingScoreTakesNeutralPrior(t *testing.T) {
	scores := map[string]float64{"lint": 0.9}
	ordered := Prioritize(ruleSet(), scores, 0.5)
	assert.Equal(t, "lint", ordered[0].ID)
	assert.Equal(t, "schema", ordered[1].ID)
}

func TestPrioritizeDoesNotMutateInput(t *testing.T) {
	rules := ruleSet()
	Prioritize(rules, map[string]float64{"links": 1.0}, 0.5)
	assert.Equal(t, []string{"lint", "schema", "links", "secrets"}, ids(rules))
}

func TestFixedOrder(t *testing.T) {
	rules := []core.Rule{
		{ID: "b", Order: 1},
		{ID: "c", Order: 2},
		{ID: "a", Order: 0},
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(FixedOrder(rules)))
}

func TestPrioritizePermutationInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("any input permutation yields the same order", prop.ForAll(
		func(seed int64) bool {
			rules := ruleSet()
			scores := map[string]float64{"lint": 0.4, "schema": 0.4, "links": 0.8, "secrets": 0.2}

			baseline := ids(Prioritize(rules, scores, 0.5))

			shuffled := append([]core.Rule(nil), rules...)
			r := seed
			for i := len(shuffled) - 1; i > 0; i-- {
				r = r*6364136223846793005 + 1442695040888963407
				j := int(uint64(r) % uint64(i+1))
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			}

			return assert.ObjectsAreEqual(baseline, ids(Prioritize(shuffled, scores, 0.5)))
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
