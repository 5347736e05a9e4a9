package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/store"
)

// structuralHashWindow is the trailing prompt count the biometric
// worker's entropy calc looks over, and the fixed divisor spec.md §4.3
// normalizes by (log2(50)) regardless of how many of those 50 slots are
// actually filled.
const structuralHashWindow = 50

type biometricWorker struct{}

func (biometricWorker) Kind() Kind { return KindBiometric }

func (biometricWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.OneHour
	if win.Count < 10 {
		return insufficient(KindBiometric)
	}
	if len(win.StructuralHashes) > structuralHashWindow {
		win.StructuralHashes = win.StructuralHashes[len(win.StructuralHashes)-structuralHashWindow:]
	}

	entropy := win.StructuralEntropyFixedNorm(structuralHashWindow)
	score := clamp01(1 - entropy)

	return DetectionSignal{
		Worker:               KindBiometric,
		Score:                score,
		Evidence:             []string{fmt.Sprintf("structural_entropy=%.2f", entropy)},
		ContributingFeatures: map[string]float64{"structural_entropy": entropy},
	}
}
