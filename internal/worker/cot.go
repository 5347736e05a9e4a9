package worker

import (
	"fmt"

	"github.com/glasswally/glasswally/internal/store"
)

// cotWorker fires on chain-of-thought elicitation phrases, deduped by
// prompt_structural_hash so a single reused prompt template doesn't
// rack up matches on every repeat (spec.md §4.3). Match counts
// themselves are computed once at ingest time by the store, using the
// same Aho-Corasick lexicon, and carried per-record in the window view.
type cotWorker struct{}

func (cotWorker) Kind() Kind { return KindCoT }

func (w cotWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.OneHour
	if win.Count < 5 {
		return insufficient(KindCoT)
	}

	hashes := win.StructuralHashes
	counts := win.CoTMatches
	if len(hashes) > 50 {
		hashes = hashes[len(hashes)-50:]
		counts = counts[len(counts)-50:]
	}

	seen := make(map[string]bool, len(hashes))
	matches := 0
	for i, h := range hashes {
		if h != "" {
			if seen[h] {
				continue
			}
			seen[h] = true
		}
		if i < len(counts) {
			matches += counts[i]
		}
	}

	score := clamp01(float64(matches) / 10)

	return DetectionSignal{
		Worker:               KindCoT,
		Score:                score,
		Evidence:             []string{fmt.Sprintf("cot_matches=%d (deduped)", matches)},
		ContributingFeatures: map[string]float64{"matches": float64(matches)},
	}
}
