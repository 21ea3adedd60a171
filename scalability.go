package fibload

import "fmt"

// ScalabilityThresholds are the limits CheckScalability compares a fit against.
type ScalabilityThresholds struct {
	MaxContention float64 // α above this is reported
	MaxCoherency  float64 // β above this is reported
	MinRSquared   float64 // fits worse than this are reported
	MinEfficiency float64 // predicted/ideal throughput below this is reported
}

// DefaultScalabilityThresholds returns thresholds suited to a loopback
// fibload run, where every root request is a tree of dependent exchanges.
func DefaultScalabilityThresholds() ScalabilityThresholds {
	return ScalabilityThresholds{
		MaxContention: 0.05,
		MaxCoherency:  0.001,
		MinRSquared:   0.90,
		MinEfficiency: 0.50,
	}
}

// CheckScalability returns one message per threshold the measured levels
// violate. An empty result means the run scaled within limits.
func CheckScalability(results []Result, c USLCoefficients, th ScalabilityThresholds) []string {
	var findings []string

	if c.RSquared < th.MinRSquared {
		findings = append(findings, fmt.Sprintf("poor model fit: R²=%.4f (min %.2f)", c.RSquared, th.MinRSquared))
	}
	if c.Alpha > th.MaxContention {
		findings = append(findings, fmt.Sprintf("contention too high: α=%.4f (max %.4f)", c.Alpha, th.MaxContention))
	}
	if c.Beta > th.MaxCoherency {
		findings = append(findings, fmt.Sprintf("coherency cost too high: β=%.6f (max %.6f)", c.Beta, th.MaxCoherency))
	}

	for i, r := range results {
		if eff := c.Efficiency(r.N); eff < th.MinEfficiency {
			findings = append(findings, fmt.Sprintf("N=%d: efficiency %.0f%% (min %.0f%%)", r.N, eff*100, th.MinEfficiency*100))
		}
		if i > 0 && r.Throughput < results[i-1].Throughput {
			findings = append(findings, fmt.Sprintf("retrograde at N=%d→%d: %.2f → %.2f ops/sec",
				results[i-1].N, r.N, results[i-1].Throughput, r.Throughput))
		}
	}
	return findings
}
