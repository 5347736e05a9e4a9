package worker

import (
	"fmt"
	"time"

	"github.com/glasswally/glasswally/internal/store"
)

// timingClusterWorker detects synchronized sub-second bursts across
// accounts sharing a pivot attribute (spec.md §4.3). The bucket-level
// burst detection itself requires visibility across accounts, so it is
// computed once by the clusterer per event and handed down as
// ClusterContext.PivotBurstFraction; this worker applies the cadence
// penalty on top of that using the account's own arrival regularity.
type timingClusterWorker struct{}

func (timingClusterWorker) Kind() Kind { return KindTimingCluster }

func (w timingClusterWorker) Analyze(snap store.Snapshot, cluster ClusterContext) DetectionSignal {
	win := snap.FiveMinute
	if win.Count < 5 {
		return insufficient(KindTimingCluster)
	}

	cv := cadenceCV(win.Timestamps)
	score := clamp01(cluster.PivotBurstFraction * (1 - clamp01(cv)))

	return DetectionSignal{
		Worker:   KindTimingCluster,
		Score:    score,
		Evidence: []string{fmt.Sprintf("burst_fraction=%.2f cadence_cv=%.2f", cluster.PivotBurstFraction, cv)},
		ContributingFeatures: map[string]float64{
			"burst_fraction": cluster.PivotBurstFraction,
			"cadence_cv":     cv,
		},
	}
}

// cadenceCV is the coefficient of variation of inter-arrival gaps,
// reusing Welford so the same algorithm backs every CV computed across
// the workers.
func cadenceCV(ts []time.Time) float64 {
	if len(ts) < 3 {
		return 1 // too little history to call it regular; treat as maximally noisy
	}
	w := store.NewWelford()
	for i := 1; i < len(ts); i++ {
		w.Add(ts[i].Sub(ts[i-1]).Seconds())
	}
	return w.CV()
}
