package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/event"
	"github.com/glasswally/glasswally/internal/store"
)

// asnMajorityDatacenterFraction is the component-datacenter-share
// threshold at which a clustered account scores the maximum (spec.md
// §4.3).
const asnMajorityDatacenterFraction = 0.60

type asnClassifierWorker struct{}

func (asnClassifierWorker) Kind() Kind { return KindASNClassifier }

func (asnClassifierWorker) Analyze(snap store.Snapshot, cluster ClusterContext) DetectionSignal {
	win := snap.OneHour
	if win.Count < 5 {
		return insufficient(KindASNClassifier)
	}

	class := dominantASNClass(win)

	var score float64
	switch class {
	case event.ASNDatacenter:
		if cluster.ComponentSize > 0 && cluster.ComponentDatacenterFrac >= asnMajorityDatacenterFraction {
			score = 1.0
		} else {
			score = 0.6
		}
	case event.ASNTor, event.ASNUnknown:
		score = 0.3
	default: // residential, mobile
		score = 0.0
	}

	return DetectionSignal{
		Worker:   KindASNClassifier,
		Score:    score,
		Evidence: []string{fmt.Sprintf("asn_class=%s component_datacenter_frac=%.2f", class, cluster.ComponentDatacenterFrac)},
		ContributingFeatures: map[string]float64{
			"component_datacenter_frac": cluster.ComponentDatacenterFrac,
		},
	}
}

// dominantASNClass returns the most frequent ASN class observed in the
// window.
func dominantASNClass(win store.WindowView) event.ASNClass {
	best := event.ASNUnknown
	bestCount := -1
	for class, count := range win.ASNClassCounts {
		if count > bestCount {
			bestCount = count
			best = class
		}
	}
	return best
}
