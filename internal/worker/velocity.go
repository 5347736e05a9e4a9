package worker

import (
	"fmt"
	"time"

	"github.com/glasswally/glasswally/internal/store"
)

// referenceRequestsPerHour stands in for the "global rolling median"
// spec.md §4.3 references as the z-score baseline; the orchestrator has
// no cross-account aggregate plumbed into the snapshot, so a fixed
// baseline request rate is used instead. Accounts are compared against
// typical API usage, not against other accounts' live rate.
const referenceRequestsPerHour = 20.0

// referenceRequestsPerHourStdDev is the assumed spread of that baseline.
const referenceRequestsPerHourStdDev = 15.0

type velocityWorker struct{}

func (velocityWorker) Kind() Kind { return KindVelocity }

func (velocityWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.OneHour
	if win.Count < 5 {
		return insufficient(KindVelocity)
	}

	zRPH := (float64(win.Count) - referenceRequestsPerHour) / referenceRequestsPerHourStdDev
	zRPH = clamp01(zRPH / 3) // saturate at 3 standard deviations

	tokenCV := clamp01(win.PromptLen.CV())

	tau := kendallTauVsIndex(interArrivalFromTimestamps(win.Timestamps))

	score := clamp01(0.5*zRPH + 0.3*(1-tokenCV) + 0.2*abs(tau))

	return DetectionSignal{
		Worker:   KindVelocity,
		Score:    score,
		Evidence: []string{fmt.Sprintf("z_rph=%.2f token_cv=%.2f kendall_tau=%.2f", zRPH, tokenCV, tau)},
		ContributingFeatures: map[string]float64{
			"z_rph":    zRPH,
			"token_cv": tokenCV,
			"tau":      tau,
		},
	}
}

func interArrivalFromTimestamps(ts []time.Time) []float64 {
	if len(ts) < 2 {
		return nil
	}
	out := make([]float64, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		out = append(out, ts[i].Sub(ts[i-1]).Seconds())
	}
	return out
}

// kendallTauVsIndex measures how monotonically the inter-arrival
// sequence drifts against arrival order, the departure from a "uniform
// schedule" (constant spacing, tau = 0) that a scripted, accelerating or
// decelerating cadence produces.
func kendallTauVsIndex(deltas []float64) float64 {
	n := len(deltas)
	if n < 2 {
		return 0
	}
	var concordant, discordant int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			switch {
			case deltas[j] > deltas[i]:
				concordant++
			case deltas[j] < deltas[i]:
				discordant++
			}
		}
	}
	pairs := n * (n - 1) / 2
	if pairs == 0 {
		return 0
	}
	return float64(concordant-discordant) / float64(pairs)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
