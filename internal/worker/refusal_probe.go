package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/store"
)

// refusalCategoryCount is the denominator spec.md §4.3 divides distinct
// categories by ("distinct categories / 4").
const refusalCategoryCount = 4.0

type refusalProbeWorker struct{}

func (refusalProbeWorker) Kind() Kind { return KindRefusalProbe }

func (refusalProbeWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.OneHour
	if win.Count < 5 {
		return insufficient(KindRefusalProbe)
	}

	refused := 0
	for _, c := range win.RefusalCounts {
		refused += c
	}
	fraction := float64(refused) / float64(win.Count)
	distinctFactor := clamp01(float64(len(win.RefusalCounts)) / refusalCategoryCount)

	score := clamp01(fraction * distinctFactor)

	return DetectionSignal{
		Worker:   KindRefusalProbe,
		Score:    score,
		Evidence: []string{fmt.Sprintf("refusal_fraction=%.2f distinct_categories=%d", fraction, len(win.RefusalCounts))},
		ContributingFeatures: map[string]float64{
			"refusal_fraction":  fraction,
			"distinct_categories": float64(len(win.RefusalCounts)),
		},
	}
}
