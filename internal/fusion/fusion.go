// Package fusion combines per-worker detection signals into the single
// auditable composite score and enforcement tier of spec.md §4.6.
package fusion

import (
	"fmt"
	"sort"

	"github.com/glasswally/glasswally/internal/config"
	"github.com/glasswally/glasswally/internal/worker"
)

// Tier is the enforcement tier a composite score maps to.
type Tier string

const (
	TierNone     Tier = "None"
	TierLow      Tier = "Low"
	TierMedium   Tier = "Medium"
	TierHigh     Tier = "High"
	TierCritical Tier = "Critical"
)

// Action is the enforcement action paired with a tier.
type Action string

const (
	ActionNone            Action = "no-op"
	ActionFlagForReview   Action = "FlagForReview"
	ActionRateLimit       Action = "RateLimit"
	ActionInjectCanary    Action = "InjectCanary"
	ActionClusterTakedown Action = "ClusterTakedown"
	ActionSuspendAccount  Action = "SuspendAccount"
)

// minClusterTakedownSize is the cluster size at which a Critical tier
// takes down the whole cluster instead of suspending the one account
// (spec.md §4.6).
const minClusterTakedownSize = 2

// Result is one account's fusion output for one event.
type Result struct {
	AccountID        string
	CompositeScore   float64
	Tier             Tier
	Action           Action
	ClusterID        uint64
	ClusterSize      int
	GeoUpliftApplied bool
	PerWorkerScores  map[worker.Kind]float64
	Evidence         []string
}

// Fuse computes the composite score, tier, action and evidence for one
// account's signals.
func Fuse(accountID string, signals []worker.DetectionSignal, weights config.WorkerWeights,
	countryRestricted bool, geoUpliftFactor float64, clusterSize int, clusterID uint64,
	thresholds config.TierThresholds) Result {

	type contribution struct {
		kind  worker.Kind
		score float64
		abs   float64
	}

	perWorker := make(map[worker.Kind]float64, len(signals))
	contributions := make([]contribution, 0, len(signals))

	var base float64
	for _, sig := range signals {
		w := weightFor(weights, sig.Worker)
		c := w * sig.Score
		base += c
		perWorker[sig.Worker] = sig.Score
		contributions = append(contributions, contribution{kind: sig.Worker, score: c, abs: absf(c)})
	}

	composite := base
	upliftApplied := false
	if countryRestricted {
		composite = clamp01(composite * geoUpliftFactor)
		upliftApplied = composite != base
	}

	sort.Slice(contributions, func(i, j int) bool { return contributions[i].abs > contributions[j].abs })
	evidence := make([]string, 0, 4)
	for i := 0; i < len(contributions) && i < 3; i++ {
		c := contributions[i]
		evidence = append(evidence, fmt.Sprintf("%s contributed %.3f", c.kind, c.score))
	}
	if upliftApplied {
		evidence = append(evidence, fmt.Sprintf("geo uplift x%.2f applied", geoUpliftFactor))
	}

	if clusterSize >= 3 {
		floor := clusterFloor(clusterSize)
		if floor > composite {
			composite = floor
			evidence = append(evidence, fmt.Sprintf("cluster floor n=%d", clusterSize))
		}
	}

	tier, action := tierFor(composite, thresholds, clusterSize)

	return Result{
		AccountID:        accountID,
		CompositeScore:   composite,
		Tier:             tier,
		Action:           action,
		ClusterID:        clusterID,
		ClusterSize:      clusterSize,
		GeoUpliftApplied: upliftApplied,
		PerWorkerScores:  perWorker,
		Evidence:         evidence,
	}
}

// clusterFloor implements spec.md §4.6: floor(n) = min(0.35 +
// 0.05*(n-3), 0.85) for n >= 3, computed in whole hundredths so the
// result is the float64 nearest the decimal value (0.45 for n=5).
func clusterFloor(n int) float64 {
	f := float64(35+5*(n-3)) / 100
	if f > 0.85 {
		return 0.85
	}
	return f
}

func tierFor(score float64, t config.TierThresholds, clusterSize int) (Tier, Action) {
	switch {
	case score >= t.Critical:
		if clusterSize >= minClusterTakedownSize {
			return TierCritical, ActionClusterTakedown
		}
		return TierCritical, ActionSuspendAccount
	case score >= t.High:
		return TierHigh, ActionInjectCanary
	case score >= t.Medium:
		return TierMedium, ActionRateLimit
	case score >= t.Low:
		return TierLow, ActionFlagForReview
	default:
		return TierNone, ActionNone
	}
}

func weightFor(w config.WorkerWeights, kind worker.Kind) float64 {
	switch kind {
	case worker.KindFingerprint:
		return w.Fingerprint
	case worker.KindVelocity:
		return w.Velocity
	case worker.KindCoT:
		return w.CoT
	case worker.KindEmbed:
		return w.Embed
	case worker.KindHydra:
		return w.Hydra
	case worker.KindTimingCluster:
		return w.TimingCluster
	case worker.KindASNClassifier:
		return w.ASNClassifier
	case worker.KindH2GRPC:
		return w.H2GRPC
	case worker.KindRolePreamble:
		return w.RolePreamble
	case worker.KindPivot:
		return w.Pivot
	case worker.KindBiometric:
		return w.Biometric
	case worker.KindWatermark:
		return w.Watermark
	case worker.KindSessionGap:
		return w.SessionGap
	case worker.KindTokenBudget:
		return w.TokenBudget
	case worker.KindRefusalProbe:
		return w.RefusalProbe
	case worker.KindSequenceModel:
		return w.SequenceModel
	default:
		return 0
	}
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
