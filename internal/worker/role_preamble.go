package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/store"
)

// compoundPreambleBonus is the additive bonus applied when the system
// prompt matches a known extraction/jailbreak-style compound phrase
// pair (spec.md §4.3).
const compoundPreambleBonus = 0.30

// rolePreambleWorker reuses the compound-preamble match the store
// computed at ingest time from the lexicon shipped in the data file.
type rolePreambleWorker struct{}

func (rolePreambleWorker) Kind() Kind { return KindRolePreamble }

func (w rolePreambleWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.TwentyFourHour
	if win.Count < 5 {
		return insufficient(KindRolePreamble)
	}

	collisionRate := 0.0
	if top := win.SystemPromptHash.Most(); top.Value != "" {
		peers := snap.SystemPromptPeers
		if len(peers) > 1 {
			collisionRate = clamp01(float64(len(peers)-1) / float64(len(peers)))
		}
	}

	bonus := 0.0
	if win.CompoundPreambleHit {
		bonus = compoundPreambleBonus
	}

	score := clamp01(collisionRate + bonus)

	return DetectionSignal{
		Worker:   KindRolePreamble,
		Score:    score,
		Evidence: []string{fmt.Sprintf("collision_rate=%.2f compound_match=%v", collisionRate, win.CompoundPreambleHit)},
		ContributingFeatures: map[string]float64{
			"collision_rate": collisionRate,
			"compound_bonus": bonus,
		},
	}
}
