package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/store"
)

// h2GRPCTermWeight is the per-condition additive weight (spec.md §4.3:
// "Three additive terms each ≤ 0.4, clamped").
const h2GRPCTermWeight = 0.4

// initialWindowSizeThresholdBytes is the HTTP/2 SETTINGS
// INITIAL_WINDOW_SIZE value above which a claimed-browser client is
// almost certainly a scripted HTTP/2 stack (spec.md §4.3: "> 200 MB").
const initialWindowSizeThresholdBytes = 200 * 1024 * 1024

type h2GRPCWorker struct {
	scriptedJA3S map[string]bool
}

func (h2GRPCWorker) Kind() Kind { return KindH2GRPC }

func (w h2GRPCWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.OneHour
	if win.Count < 5 {
		return insufficient(KindH2GRPC)
	}

	var settingsMismatch, largeWindow, grpcHeader float64

	if top := win.H2SettingsHash.Most(); top.Value != "" && w.scriptedJA3S[top.Value] {
		settingsMismatch = h2GRPCTermWeight
	}
	if win.MaxH2WindowSize > initialWindowSizeThresholdBytes {
		largeWindow = h2GRPCTermWeight
	}
	if win.GRPCCount > 0 {
		grpcHeader = h2GRPCTermWeight
	}

	score := clamp01(settingsMismatch + largeWindow + grpcHeader)

	return DetectionSignal{
		Worker: KindH2GRPC,
		Score:  score,
		Evidence: []string{fmt.Sprintf("settings_mismatch=%.1f large_window=%.1f grpc_header=%.1f",
			settingsMismatch, largeWindow, grpcHeader)},
		ContributingFeatures: map[string]float64{
			"settings_mismatch": settingsMismatch,
			"large_window":      largeWindow,
			"grpc_header":       grpcHeader,
		},
	}
}
