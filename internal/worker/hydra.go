package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/store"
)

// componentBonusSize is the connected-component size at which hydra
// adds its flat 0.20 bonus (spec.md §4.3).
const componentBonusSize = 5
const componentBonus = 0.20

type hydraWorker struct {
	saturation float64
}

func (hydraWorker) Kind() Kind { return KindHydra }

func (w hydraWorker) Analyze(snap store.Snapshot, cluster ClusterContext) DetectionSignal {
	if snap.OneHour.Count < 5 {
		return insufficient(KindHydra)
	}
	saturation := w.saturation
	if saturation <= 0 {
		saturation = 20
	}
	degreeScore := float64(cluster.Degree) / saturation
	bonus := 0.0
	if cluster.ComponentSize >= componentBonusSize {
		bonus = componentBonus
	}
	score := clamp01(degreeScore + bonus)

	return DetectionSignal{
		Worker: KindHydra,
		Score:  score,
		Evidence: []string{fmt.Sprintf("degree=%d saturation=%.0f component_size=%d",
			cluster.Degree, saturation, cluster.ComponentSize)},
		ContributingFeatures: map[string]float64{
			"degree":         float64(cluster.Degree),
			"component_size": float64(cluster.ComponentSize),
		},
	}
}
