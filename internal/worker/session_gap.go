package worker

import (
	"fmt"
	"time"

	"github.com/glasswally/glasswally/internal/store"
)

// sessionBoundaryGap is the inter-arrival threshold beyond which a run
// of events splits into a new session (spec.md §4.3).
const sessionBoundaryGap = 5 * time.Minute
const minSessionsForScore = 20

type sessionGapWorker struct{}

func (sessionGapWorker) Kind() Kind { return KindSessionGap }

func (sessionGapWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	sessions := splitSessions(snap.TwentyFourHour.Timestamps)
	if len(sessions) < minSessionsForScore {
		return insufficient(KindSessionGap)
	}

	sizes := make([]float64, len(sessions))
	for i, s := range sessions {
		sizes[i] = float64(s.size)
	}
	sizeCV := cvOf(sizes)

	gaps := make([]float64, 0, len(sessions)-1)
	for i := 1; i < len(sessions); i++ {
		gaps = append(gaps, sessions[i].start.Sub(sessions[i-1].end).Seconds())
	}
	gapCV := cvOf(gaps)

	score := (1 - clamp01(gapCV)) * (1 - clamp01(sizeCV))
	if score < 0 {
		score = 0
	}

	return DetectionSignal{
		Worker:   KindSessionGap,
		Score:    score,
		Evidence: []string{fmt.Sprintf("sessions=%d gap_cv=%.2f size_cv=%.2f", len(sessions), gapCV, sizeCV)},
		ContributingFeatures: map[string]float64{
			"sessions": float64(len(sessions)),
			"gap_cv":   gapCV,
			"size_cv":  sizeCV,
		},
	}
}

type session struct {
	start, end time.Time
	size       int
}

func splitSessions(ts []time.Time) []session {
	if len(ts) == 0 {
		return nil
	}
	var out []session
	cur := session{start: ts[0], end: ts[0], size: 1}
	for i := 1; i < len(ts); i++ {
		if ts[i].Sub(ts[i-1]) > sessionBoundaryGap {
			out = append(out, cur)
			cur = session{start: ts[i], end: ts[i], size: 1}
			continue
		}
		cur.end = ts[i]
		cur.size++
	}
	out = append(out, cur)
	return out
}

func cvOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	w := store.NewWelford()
	for _, x := range xs {
		w.Add(x)
	}
	return w.CV()
}
