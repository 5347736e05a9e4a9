package fusion

import (
	"testing"

	"github.com/glasswally/glasswally/internal/config"
	"github.com/glasswally/glasswally/internal/worker"
)

func allZeroSignals() []worker.DetectionSignal {
	signals := make([]worker.DetectionSignal, 0, len(worker.AllKinds))
	for _, k := range worker.AllKinds {
		signals = append(signals, worker.DetectionSignal{Worker: k, Score: 0})
	}
	return signals
}

func TestFuseNoSignalIsTierNone(t *testing.T) {
	res := Fuse("acct-1", allZeroSignals(), config.DefaultWeights(), false, 1.15, 0, 0, config.DefaultTierThresholds())
	if res.Tier != TierNone {
		t.Fatalf("Tier = %s, want None", res.Tier)
	}
	if res.Action != ActionNone {
		t.Fatalf("Action = %s, want no-op", res.Action)
	}
}

func TestFuseSingleMaxWorkerReachesItsWeight(t *testing.T) {
	signals := allZeroSignals()
	signals[0].Score = 1.0 // fingerprint, weight 0.14
	res := Fuse("acct-2", signals, config.DefaultWeights(), false, 1.15, 0, 0, config.DefaultTierThresholds())
	if res.CompositeScore < 0.13 || res.CompositeScore > 0.15 {
		t.Fatalf("CompositeScore = %v, want ~0.14", res.CompositeScore)
	}
}

func TestFuseClusterFloorRaisesButNeverLowers(t *testing.T) {
	signals := allZeroSignals()
	res := Fuse("acct-3", signals, config.DefaultWeights(), false, 1.15, 5, 999, config.DefaultTierThresholds())
	// floor(5) = min(0.35 + 0.05*2, 0.85) = 0.45
	if res.CompositeScore != 0.45 {
		t.Fatalf("CompositeScore = %v, want 0.45 (cluster floor for n=5)", res.CompositeScore)
	}

	signals[0].Score = 1.0 // pushes base above the floor
	res2 := Fuse("acct-3", signals, config.DefaultWeights(), false, 1.15, 5, 999, config.DefaultTierThresholds())
	if res2.CompositeScore <= res.CompositeScore {
		t.Fatalf("expected a genuinely high score to exceed the floor, got %v", res2.CompositeScore)
	}
}

func TestFuseCriticalClusterTakedownVsSuspend(t *testing.T) {
	signals := allZeroSignals()
	for i := range signals {
		signals[i].Score = 1.0
	}
	thresholds := config.DefaultTierThresholds()

	clustered := Fuse("acct-4", signals, config.DefaultWeights(), false, 1.15, 4, 111, thresholds)
	if clustered.Tier != TierCritical || clustered.Action != ActionClusterTakedown {
		t.Fatalf("clustered critical = %+v, want ClusterTakedown", clustered)
	}

	solo := Fuse("acct-5", signals, config.DefaultWeights(), false, 1.15, 1, 0, thresholds)
	if solo.Tier != TierCritical || solo.Action != ActionSuspendAccount {
		t.Fatalf("solo critical = %+v, want SuspendAccount", solo)
	}
}

func TestFuseGeoUpliftNeverExceedsOne(t *testing.T) {
	signals := allZeroSignals()
	for i := range signals {
		signals[i].Score = 1.0
	}
	res := Fuse("acct-6", signals, config.DefaultWeights(), true, 1.15, 0, 0, config.DefaultTierThresholds())
	if res.CompositeScore > 1.0 {
		t.Fatalf("CompositeScore = %v, must clamp to <= 1.0", res.CompositeScore)
	}
}
