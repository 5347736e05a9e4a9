package worker

import (
	"fmt"
	"math"

	"github.com/glasswally/glasswally/internal/store"
)

// fingerprintWorker implements spec.md §4.3's fingerprint detector:
// JA3/JA3S/header-order distribution anomalies over the 1h window.
type fingerprintWorker struct {
	browserJA3   map[string]bool
	scriptedJA3S map[string]bool
}

func (fingerprintWorker) Kind() Kind { return KindFingerprint }

func (w fingerprintWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.OneHour
	if win.Count < 5 {
		return insufficient(KindFingerprint)
	}

	entropyDrop := ja3EntropyDrop(win.JA3)

	mismatch := 0.0
	topJA3 := win.JA3.Most()
	topJA3S := win.JA3S.Most()
	if w.browserJA3[topJA3.Value] && w.scriptedJA3S[topJA3S.Value] {
		mismatch = 1.0
	}

	// collision is the fraction of other accounts sharing this account's
	// top header_order_hash (spec.md §4.3), read off the cross-account
	// header-order index rather than approximated from subnet crowding.
	collision := 0.0
	if top := win.HeaderOrder.Most(); top.Value != "" {
		peers := snap.HeaderOrderPeers
		if len(peers) > 1 {
			collision = float64(len(peers)-1) / float64(len(peers))
		}
	}

	score := 0.40*entropyDrop + 0.30*mismatch + 0.30*collision
	score = clamp01(score)

	evidence := []string{fmt.Sprintf("ja3_entropy_drop=%.2f ja3s_mismatch=%.0f header_collision=%.2f",
		entropyDrop, mismatch, collision)}

	return DetectionSignal{
		Worker:   KindFingerprint,
		Score:    score,
		Evidence: evidence,
		ContributingFeatures: map[string]float64{
			"ja3_entropy_drop":        entropyDrop,
			"ja3s_mismatch_flag":      mismatch,
			"header_order_collision":  collision,
		},
	}
}

// ja3EntropyDrop measures how concentrated an account's JA3 values are
// relative to the maximum-entropy (fully diverse) case: 0 when every
// request has a distinct JA3, approaching 1 as the account collapses
// onto a single fingerprint. A legitimate browser's JA3 is stable across
// requests, so a high drop alone is not damning; it is one of three
// additive fingerprint terms.
func ja3EntropyDrop(m *store.Multiset) float64 {
	total := m.Total()
	distinct := m.Distinct()
	if total < 2 || distinct == 0 {
		return 0
	}
	maxEntropy := math.Log2(float64(distinct))
	if maxEntropy == 0 {
		return 1
	}
	var entropy float64
	for _, hc := range m.Top(distinct) {
		p := float64(hc.Count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return clamp01(1 - entropy/maxEntropy)
}
