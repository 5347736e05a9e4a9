package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/store"
)

// pivotDecayWindowMinutes is the 10-minute correlated-action window of
// spec.md §4.3.
const pivotDecayWindowMinutes = 10.0

type pivotWorker struct{}

func (pivotWorker) Kind() Kind { return KindPivot }

func (pivotWorker) Analyze(snap store.Snapshot, cluster ClusterContext) DetectionSignal {
	if snap.OneHour.Count < 5 {
		return insufficient(KindPivot)
	}
	if !cluster.ModelChangedAfterCorrelatedAction || cluster.MinutesSinceCorrelatedAction < 0 {
		return DetectionSignal{Worker: KindPivot}
	}
	if cluster.MinutesSinceCorrelatedAction > pivotDecayWindowMinutes {
		return DetectionSignal{Worker: KindPivot}
	}

	decay := 1 - cluster.MinutesSinceCorrelatedAction/pivotDecayWindowMinutes
	score := clamp01(decay)

	return DetectionSignal{
		Worker:               KindPivot,
		Score:                score,
		Evidence:             []string{fmt.Sprintf("model changed %.1f min after correlated enforcement action", cluster.MinutesSinceCorrelatedAction)},
		ContributingFeatures: map[string]float64{"minutes_since_action": cluster.MinutesSinceCorrelatedAction},
	}
}
