package worker

import (
	"fmt"
	"testing"
	"time"

	"github.com/glasswally/glasswally/internal/event"
	"github.com/glasswally/glasswally/internal/signature"
	"github.com/glasswally/glasswally/internal/store"
)

func newTestStore() *store.Store {
	return store.New(4, 1000, signature.Builtin())
}

func baseTestEvent(accountID string, ts time.Time) event.Event {
	return event.Event{
		Timestamp:          ts,
		AccountID:          accountID,
		IPAddress:          "203.0.113.5",
		Subnet24:           "203.0.113.0/24",
		ASNClass:           event.ASNResidential,
		JA3:                "ja3-a",
		JA3S:                "ja3s-a",
		PromptLenTokens:    100,
		MaxTokensRequested: 256,
	}
}

func snapshotFor(t *testing.T, s *store.Store, accountID string, at time.Time) store.Snapshot {
	t.Helper()
	return s.Snapshot(accountID, at)
}

func TestFingerprintInsufficientHistoryBelowFive(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	for i := 0; i < 3; i++ {
		s.Ingest(baseTestEvent("acct-a", now.Add(time.Duration(i)*time.Second)))
	}
	snap := snapshotFor(t, s, "acct-a", now.Add(10*time.Second))

	w := fingerprintWorker{browserJA3: map[string]bool{}, scriptedJA3S: map[string]bool{}}
	sig := w.Analyze(snap, ClusterContext{})
	if sig.Score != 0 || len(sig.Evidence) == 0 || sig.Evidence[0] != insufficientHistoryEvidence {
		t.Fatalf("expected insufficient-history signal below 5 events, got %+v", sig)
	}
}

func TestFingerprintJA3SMismatchScoresPartialWeight(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	for i := 0; i < 6; i++ {
		ev := baseTestEvent("acct-b", now.Add(time.Duration(i)*time.Minute))
		ev.JA3 = "browser-chrome"
		ev.JA3S = "scripted-lib"
		s.Ingest(ev)
	}
	snap := snapshotFor(t, s, "acct-b", now.Add(time.Hour))

	w := fingerprintWorker{
		browserJA3:   map[string]bool{"browser-chrome": true},
		scriptedJA3S: map[string]bool{"scripted-lib": true},
	}
	sig := w.Analyze(snap, ClusterContext{})
	// mismatch term alone contributes 0.30 to the additive score.
	if sig.Score < 0.30 {
		t.Fatalf("Score = %v, want >= 0.30 from the JA3S mismatch term alone", sig.Score)
	}
}

func TestVelocityInsufficientHistoryBelowFive(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Ingest(baseTestEvent("acct-c", now))
	snap := snapshotFor(t, s, "acct-c", now)

	sig := velocityWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != 0 || sig.Evidence[0] != insufficientHistoryEvidence {
		t.Fatalf("expected insufficient-history signal, got %+v", sig)
	}
}

func TestVelocityHighRequestRateScoresAboveZero(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	for i := 0; i < 60; i++ {
		s.Ingest(baseTestEvent("acct-d", now.Add(time.Duration(i)*time.Second)))
	}
	snap := snapshotFor(t, s, "acct-d", now.Add(60*time.Second))

	sig := velocityWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score <= 0 {
		t.Fatalf("Score = %v, want > 0 for 60 requests/minute (well above the 20 req/hour baseline)", sig.Score)
	}
}

// fillHistory ingests n-1 quiet events, one second apart and ending one
// second before ts, leaving ts for the caller's own distinguishing
// event, so the account clears every worker's 5-event minimum history
// gate without drowning out the signal under test.
func fillHistory(s *store.Store, accountID string, n int, ts time.Time) {
	for i := 1; i < n; i++ {
		s.Ingest(baseTestEvent(accountID, ts.Add(-time.Duration(n-i)*time.Second)))
	}
}

func TestWatermarkInsufficientHistoryBelowFive(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	ev := baseTestEvent("acct-e0", now)
	ev.CanaryTokenMatch = true
	s.Ingest(ev)
	snap := snapshotFor(t, s, "acct-e0", now)

	sig := watermarkWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != 0 || sig.Evidence[0] != insufficientHistoryEvidence {
		t.Fatalf("expected insufficient-history signal below 5 events, got %+v", sig)
	}
}

func TestWatermarkCanaryMatchScoresOne(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	fillHistory(s, "acct-e", 5, now)
	ev := baseTestEvent("acct-e", now)
	ev.CanaryTokenMatch = true
	s.Ingest(ev)
	snap := snapshotFor(t, s, "acct-e", now)

	sig := watermarkWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != canaryScore {
		t.Fatalf("Score = %v, want %v on a canary token match", sig.Score, canaryScore)
	}
}

func TestWatermarkZeroWidthCharsScorePointSeven(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	for i := 0; i < 5; i++ {
		ev := baseTestEvent("acct-f", now.Add(time.Duration(i)*time.Second))
		ev.ZWCharFlag = true
		s.Ingest(ev)
	}
	snap := snapshotFor(t, s, "acct-f", now.Add(10*time.Second))

	sig := watermarkWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != zwCharScore {
		t.Fatalf("Score = %v, want %v for >= 2 zero-width hits in the trailing window", sig.Score, zwCharScore)
	}
}

func TestWatermarkBelowMinHitsScoresZero(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	fillHistory(s, "acct-g", 5, now)
	ev := baseTestEvent("acct-g", now)
	ev.ZWCharFlag = true
	s.Ingest(ev)
	snap := snapshotFor(t, s, "acct-g", now)

	sig := watermarkWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != 0 {
		t.Fatalf("Score = %v, want 0 below the 2-hit minimum", sig.Score)
	}
}

func TestASNClassifierInsufficientHistoryBelowFive(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.Ingest(baseTestEvent("acct-h0", now))
	snap := snapshotFor(t, s, "acct-h0", now)

	sig := asnClassifierWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != 0 || sig.Evidence[0] != insufficientHistoryEvidence {
		t.Fatalf("expected insufficient-history signal below 5 events, got %+v", sig)
	}
}

func TestASNClassifierResidentialScoresZero(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.Ingest(baseTestEvent("acct-h", now.Add(time.Duration(i)*time.Second)))
	}
	snap := snapshotFor(t, s, "acct-h", now.Add(10*time.Second))

	sig := asnClassifierWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != 0 {
		t.Fatalf("Score = %v, want 0 for residential ASN", sig.Score)
	}
}

func TestASNClassifierSoloDatacenterScoresPointSix(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	for i := 0; i < 5; i++ {
		ev := baseTestEvent("acct-i", now.Add(time.Duration(i)*time.Second))
		ev.ASNClass = event.ASNDatacenter
		s.Ingest(ev)
	}
	snap := snapshotFor(t, s, "acct-i", now.Add(10*time.Second))

	sig := asnClassifierWorker{}.Analyze(snap, ClusterContext{ComponentSize: 0})
	if sig.Score != 0.6 {
		t.Fatalf("Score = %v, want 0.6 for a solo datacenter account", sig.Score)
	}
}

func TestASNClassifierClusteredDatacenterMajorityScoresOne(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	for i := 0; i < 5; i++ {
		ev := baseTestEvent("acct-j", now.Add(time.Duration(i)*time.Second))
		ev.ASNClass = event.ASNDatacenter
		s.Ingest(ev)
	}
	snap := snapshotFor(t, s, "acct-j", now.Add(10*time.Second))

	sig := asnClassifierWorker{}.Analyze(snap, ClusterContext{ComponentSize: 4, ComponentDatacenterFrac: 0.75})
	if sig.Score != 1.0 {
		t.Fatalf("Score = %v, want 1.0 when >= 60%% of the component is datacenter", sig.Score)
	}
}

func TestCoTInsufficientHistoryBelowFive(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	ev := baseTestEvent("acct-k0", now)
	ev.PromptText = "think step by step"
	s.Ingest(ev)
	snap := snapshotFor(t, s, "acct-k0", now)

	sig := cotWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != 0 || sig.Evidence[0] != insufficientHistoryEvidence {
		t.Fatalf("expected insufficient-history signal below 5 events, got %+v", sig)
	}
}

func TestCoTBurstScoresHigh(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	for i := 0; i < 10; i++ {
		ev := baseTestEvent("acct-k", now.Add(time.Duration(i)*time.Second))
		ev.PromptText = fmt.Sprintf("please think step by step about problem %d", i)
		ev.PromptStructuralHash = fmt.Sprintf("shape-%d", i) // distinct so dedup doesn't collapse them
		s.Ingest(ev)
	}
	snap := snapshotFor(t, s, "acct-k", now.Add(time.Minute))

	sig := cotWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != 1.0 {
		t.Fatalf("Score = %v, want 1.0 (10 distinct-shape CoT matches / 10, capped)", sig.Score)
	}
}

func TestCoTNoMatchesScoresZero(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	for i := 0; i < 5; i++ {
		ev := baseTestEvent("acct-l", now.Add(time.Duration(i)*time.Second))
		ev.PromptText = "what is the capital of France"
		s.Ingest(ev)
	}
	snap := snapshotFor(t, s, "acct-l", now.Add(10*time.Second))

	sig := cotWorker{}.Analyze(snap, ClusterContext{})
	if sig.Score != 0 {
		t.Fatalf("Score = %v, want 0 with no CoT phrases present", sig.Score)
	}
}
