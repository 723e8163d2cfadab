package bench

import (
	"fmt"
	"time"
)

// Criteria is the set of pass/fail bounds a benchmark is judged against.
// Zero-valued bounds are not checked.
type Criteria struct {
	// TTFFBound is the maximum acceptable prioritized mean time-to-first-failure.
	TTFFBound time.Duration `json:"ttff_bound,omitempty"`

	// SpeedupTarget is the minimum acceptable speedup factor.
	SpeedupTarget float64 `json:"speedup_target,omitempty"`

	// OverheadBound is the maximum acceptable mean prediction overhead.
	OverheadBound time.Duration `json:"overhead_bound,omitempty"`
}

// Verdict is the outcome of judging a summary against criteria.
type Verdict struct {
	Met      bool     `json:"met"`
	Failures []string `json:"failures,omitempty"`
}

// Evaluate judges the summary. A summary with no observed failures cannot
// satisfy a speedup target or TTFF bound, since there is nothing to speed up.
func (s *Summary) Evaluate(c Criteria) Verdict {
	v := Verdict{Met: true}

	if c.TTFFBound > 0 {
		if s.Prioritized.Failures == 0 {
			v.fail("ttff bound set but no failures observed")
		} else if s.Prioritized.MeanTTFF > c.TTFFBound {
			v.fail(fmt.Sprintf("prioritized mean ttff %s exceeds bound %s", s.Prioritized.MeanTTFF, c.TTFFBound))
		}
	}
	if c.SpeedupTarget > 0 && s.Speedup < c.SpeedupTarget {
		v.fail(fmt.Sprintf("speedup %.2fx below target %.2fx", s.Speedup, c.SpeedupTarget))
	}
	if c.OverheadBound > 0 && s.MeanOverhead > c.OverheadBound {
		v.fail(fmt.Sprintf("mean prediction overhead %s exceeds bound %s", s.MeanOverhead, c.OverheadBound))
	}
	return v
}

func (v *Verdict) fail(reason string) {
	v.Met = false
	v.Failures = append(v.Failures, reason)
}
