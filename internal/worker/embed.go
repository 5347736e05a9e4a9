package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/signature"
	"github.com/glasswally/glasswally/internal/store"
)

// embedArchetypeThreshold is the cosine similarity floor below which the
// embed worker reports no match (spec.md §4.3).
const embedArchetypeThreshold = 0.60

type embedWorker struct {
	archetypes [][]float32
}

func (embedWorker) Kind() Kind { return KindEmbed }

func (w embedWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.TwentyFourHour
	if win.Count < 10 {
		return insufficient(KindEmbed)
	}
	if len(win.MeanEmbedding) == 0 || len(w.archetypes) == 0 {
		return DetectionSignal{Worker: KindEmbed}
	}

	_, sim := signature.NearestCentroid(win.MeanEmbedding, w.archetypes)
	score := 0.0
	if sim > embedArchetypeThreshold {
		score = clamp01(sim)
	}

	return DetectionSignal{
		Worker:               KindEmbed,
		Score:                score,
		Evidence:             []string{fmt.Sprintf("max_archetype_cosine=%.2f", sim)},
		ContributingFeatures: map[string]float64{"max_cosine": sim},
	}
}
