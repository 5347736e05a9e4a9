package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/store"
)

// zwCharWindow is the trailing prompt count watermark checks for
// repeated zero-width-character stuffing (spec.md §4.3).
const zwCharWindow = 5
const zwCharMinHits = 2
const zwCharScore = 0.7
const canaryScore = 1.0

type watermarkWorker struct{}

func (watermarkWorker) Kind() Kind { return KindWatermark }

func (watermarkWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.OneHour
	if win.Count < 5 {
		return insufficient(KindWatermark)
	}

	if win.CanaryMatches > 0 {
		return DetectionSignal{
			Worker:               KindWatermark,
			Score:                canaryScore,
			Evidence:             []string{fmt.Sprintf("canary_token_match count=%d", win.CanaryMatches)},
			ContributingFeatures: map[string]float64{"canary_matches": float64(win.CanaryMatches)},
		}
	}

	flags := win.ZWFlags
	if len(flags) > zwCharWindow {
		flags = flags[len(flags)-zwCharWindow:]
	}
	hits := 0
	for _, f := range flags {
		if f {
			hits++
		}
	}
	if hits >= zwCharMinHits {
		return DetectionSignal{
			Worker:               KindWatermark,
			Score:                zwCharScore,
			Evidence:             []string{fmt.Sprintf("zero_width_hits=%d/%d", hits, len(flags))},
			ContributingFeatures: map[string]float64{"zw_hits": float64(hits)},
		}
	}

	return DetectionSignal{Worker: KindWatermark}
}
