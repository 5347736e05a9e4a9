// Package worker implements the sixteen concurrent detector workers of
// spec.md §4.2–4.3. Each worker is a pure function of an account's
// snapshot (and, for the few that need it, a cluster view): no worker
// ever mutates state store or clusterer data directly.
package worker

import (
	"github.com/glasswally/glasswally/internal/config"
	"github.com/glasswally/glasswally/internal/signature"
	"github.com/glasswally/glasswally/internal/store"
)

// Kind names one of the sixteen workers. Dispatch is by tag (the fixed
// Registry below), never by dynamic type lookup, so adding a worker
// means touching the weight table and the registry in the same change.
type Kind string

const (
	KindFingerprint   Kind = "fingerprint"
	KindVelocity      Kind = "velocity"
	KindCoT           Kind = "cot"
	KindEmbed         Kind = "embed"
	KindHydra         Kind = "hydra"
	KindTimingCluster Kind = "timing_cluster"
	KindASNClassifier Kind = "asn_classifier"
	KindH2GRPC        Kind = "h2_grpc"
	KindRolePreamble  Kind = "role_preamble"
	KindPivot         Kind = "pivot"
	KindBiometric     Kind = "biometric"
	KindWatermark     Kind = "watermark"
	KindSessionGap    Kind = "session_gap"
	KindTokenBudget   Kind = "token_budget"
	KindRefusalProbe  Kind = "refusal_probe"
	KindSequenceModel Kind = "sequence_model"
)

// AllKinds lists every worker in fixed order, matching the weight table
// of spec.md §4.2.
var AllKinds = []Kind{
	KindFingerprint, KindVelocity, KindCoT, KindEmbed, KindHydra,
	KindTimingCluster, KindASNClassifier, KindH2GRPC, KindRolePreamble,
	KindPivot, KindBiometric, KindWatermark, KindSessionGap,
	KindTokenBudget, KindRefusalProbe, KindSequenceModel,
}

// DetectionSignal is one worker's output for one account.
type DetectionSignal struct {
	Worker               Kind
	Score                float64
	Evidence             []string
	ContributingFeatures map[string]float64
}

const insufficientHistoryEvidence = "insufficient history"
const workerErrorEvidence = "worker error"

func insufficient(kind Kind) DetectionSignal {
	return DetectionSignal{Worker: kind, Evidence: []string{insufficientHistoryEvidence}}
}

// ErrorSignal is what the orchestrator substitutes for a worker that
// panicked or timed out (spec.md §7, WorkerInternal/WorkerTimeout).
func ErrorSignal(kind Kind) DetectionSignal {
	return DetectionSignal{Worker: kind, Evidence: []string{workerErrorEvidence}}
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

// ClusterContext carries the subset of Hydra clusterer state a handful
// of workers need (hydra, timing_cluster, asn_classifier, pivot). It is
// computed once per event by the clusterer and passed to every worker
// so that no worker reaches into clusterer internals on its own.
type ClusterContext struct {
	Degree                  int     // this account's vertex degree in the Hydra graph
	ComponentSize           int     // size of the connected component this account belongs to, 0 if none
	ComponentDatacenterFrac float64 // fraction of component members classified datacenter
	PivotBurstFraction      float64 // fraction of this account's last (up to 300) events whose 1s bucket held a synchronized multi-account burst on its pivot group
	ModelChangedAfterCorrelatedAction bool    // this account's model field changed after a cluster-mate's enforcement action
	MinutesSinceCorrelatedAction     float64 // time elapsed since that action, for the pivot worker's decay; -1 if none within 10 minutes
}

// Worker is the single operation every detector implements.
type Worker interface {
	Kind() Kind
	Analyze(snapshot store.Snapshot, cluster ClusterContext) DetectionSignal
}

// Registry is the closed, fixed set of all sixteen workers in weight-
// table order. df supplies the CoT lexicon, JA3/JA3S family tables and
// extraction-archetype centroids; cfg supplies the hydra saturation
// constant. Both are loaded once at startup.
func Registry(df *signature.DataFile, cfg *config.Config) []Worker {
	browserJA3 := make(map[string]bool, len(df.BrowserJA3Families))
	for _, f := range df.BrowserJA3Families {
		browserJA3[f] = true
	}
	scriptedJA3S := make(map[string]bool, len(df.ScriptedJA3SFamilies))
	for _, f := range df.ScriptedJA3SFamilies {
		scriptedJA3S[f] = true
	}
	return []Worker{
		fingerprintWorker{browserJA3: browserJA3, scriptedJA3S: scriptedJA3S},
		velocityWorker{},
		cotWorker{},
		embedWorker{archetypes: df.ArchetypeCentroids},
		hydraWorker{saturation: cfg.HydraSaturation},
		timingClusterWorker{},
		asnClassifierWorker{},
		h2GRPCWorker{scriptedJA3S: scriptedJA3S},
		rolePreambleWorker{},
		pivotWorker{},
		biometricWorker{},
		watermarkWorker{},
		sessionGapWorker{},
		tokenBudgetWorker{},
		refusalProbeWorker{},
		sequenceModelWorker{},
	}
}
