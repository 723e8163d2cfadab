package bench

import (
	"fmt"
	"strings"
	"time"
)

// Render formats the summary as a plain-text report.
func (s *Summary) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "benchmark: %d iterations per mode\n", s.Iterations)
	if s.ModelVersion != "" {
		fmt.Fprintf(&b, "model: %s\n", s.ModelVersion)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%-12s %5s %9s %12s %14s %14s %12s %13s\n",
		"mode", "runs", "failures", "mean total", "median total", "stddev total", "mean ttff", "median ttff")
	writeRow(&b, "fixed", s.Fixed)
	writeRow(&b, "prioritized", s.Prioritized)
	b.WriteString("\n")

	if s.Speedup > 0 {
		fmt.Fprintf(&b, "ttff improvement: %.1f%%\n", s.TTFFImprovement)
		fmt.Fprintf(&b, "speedup: %.2fx\n", s.Speedup)
	} else {
		b.WriteString("ttff improvement: n/a (no failures observed)\n")
	}
	fmt.Fprintf(&b, "prediction overhead: mean %s, max %s\n", s.MeanOverhead, s.MaxOverhead)

	return b.String()
}

func writeRow(b *strings.Builder, name string, m ModeStats) {
	fmt.Fprintf(b, "%-12s %5d %9d %12s %14s %14s %12s %13s\n",
		name, m.Runs, m.Failures,
		dur(m.MeanTotal), dur(m.MedianTotal), dur(m.StddevTotal),
		dur(m.MeanTTFF), dur(m.MedianTTFF))
}

func dur(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Microsecond).String()
}
