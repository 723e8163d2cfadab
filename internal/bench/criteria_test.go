package bench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateAllBoundsMet(t *testing.T) {
	s := cannedSummary(t)
	v := s.Evaluate(Criteria{
		TTFFBound:     200 * time.Millisecond,
		SpeedupTarget: 2.0,
		OverheadBound: 10 * time.Millisecond,
	})
	assert.True(t, v.Met)
	assert.Empty(t, v.Failures)
}

func TestEvaluateBoundsExceeded(t *testing.T) {
	s := cannedSummary(t)
	v := s.Evaluate(Criteria{
		TTFFBound:     50 * time.Millisecond,
		SpeedupTarget: 10.0,
		OverheadBound: time.Millisecond,
	})
	assert.False(t, v.Met)
	assert.Len(t, v.Failures, 3)
}

func TestEvaluateZeroCriteriaAlwaysMet(t *testing.T) {
	s := cannedSummary(t)
	assert.True(t, s.Evaluate(Criteria{}).Met)
}

func TestEvaluateTTFFBoundWithoutFailures(t *testing.T) {
	s := &Summary{Iterations: 2}
	v := s.Evaluate(Criteria{TTFFBound: time.Second})
	assert.False(t, v.Met)
}
