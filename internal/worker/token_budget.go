package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/store"
)

// geometricRatioTolerance is how close consecutive max_tokens_requested
// ratios must be to a constant to count as a geometric progression
// (spec.md §4.3: "within 10%").
const geometricRatioTolerance = 0.10

// modelMaxFraction and modelMaxHitRate implement the second token_budget
// trigger: most requests near the model's token ceiling.
const modelMaxFraction = 0.90
const modelMaxHitRate = 0.70

type tokenBudgetWorker struct{}

func (tokenBudgetWorker) Kind() Kind { return KindTokenBudget }

func (tokenBudgetWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.OneHour
	if win.Count < 5 {
		return insufficient(KindTokenBudget)
	}

	geometric := isGeometricProgression(win)
	nearMax := nearModelMaxFraction(win)

	score := 0.0
	if geometric {
		score = 1.0
	} else if nearMax >= modelMaxHitRate {
		score = 1.0
	}

	return DetectionSignal{
		Worker:   KindTokenBudget,
		Score:    score,
		Evidence: []string{fmt.Sprintf("geometric_progression=%v near_max_fraction=%.2f", geometric, nearMax)},
		ContributingFeatures: map[string]float64{
			"near_max_fraction": nearMax,
		},
	}
}

// isGeometricProgression inspects the window's reservoir-sampled
// max_tokens_requested values in arrival order and checks whether
// consecutive ratios stay within tolerance of their mean ratio — the
// reservoir retains a uniform sample of the window so a long window
// still gets an O(k) check instead of O(n).
func isGeometricProgression(win store.WindowView) bool {
	samples := win.TokenBudgetReservoir.Samples()
	if len(samples) < 4 {
		return false
	}
	ratios := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		if samples[i-1] == 0 {
			continue
		}
		ratios = append(ratios, samples[i]/samples[i-1])
	}
	if len(ratios) < 3 {
		return false
	}
	w := store.NewWelford()
	for _, r := range ratios {
		w.Add(r)
	}
	mean := w.Mean()
	if mean <= 0 {
		return false
	}
	for _, r := range ratios {
		if abs(r-mean)/mean > geometricRatioTolerance {
			return false
		}
	}
	return true
}

func nearModelMaxFraction(win store.WindowView) float64 {
	if win.MaxTokensSeen == 0 {
		return 0
	}
	threshold := float64(win.MaxTokensSeen) * modelMaxFraction
	hits := 0
	for _, v := range win.TokenBudgetReservoir.Samples() {
		if v >= threshold {
			hits++
		}
	}
	n := len(win.TokenBudgetReservoir.Samples())
	if n == 0 {
		return 0
	}
	return float64(hits) / float64(n)
}
