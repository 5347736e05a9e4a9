package store

import (
	"math"
	"time"

	"github.com/glasswally/glasswally/internal/event"
)

// windowRingCap bounds each horizon's raw ring buffer independent of the
// account's request rate. Sized generously above what a horizon could
// plausibly need at a sane request rate; genuinely abusive accounts that
// exceed it simply lose the tail of their history to the oldest entries,
// which is an acceptable approximation for a detection system (the
// detectors care about recent structure, not exact historical counts
// beyond a few thousand events).
const windowRingCap = 4096

// promptRecord is the raw per-event fact set a Window retains; it is the
// unit replayed to reconstruct Welford/reservoir/multiset aggregates over
// whatever trailing horizon a caller asks for.
type promptRecord struct {
	ts                   time.Time
	promptLenTokens      int
	maxTokensRequested   int
	ja3, ja3s            string
	headerOrderHash      string
	h2SettingsHash       string
	systemPromptHash     string
	compoundPreambleHit  bool
	subnet24             string
	paymentHash          string
	topic                event.Topic
	structuralHash       string
	embedding            []float32
	zwCharFlag           bool
	canaryTokenMatch     bool
	refusalCategory      event.RefusalCategory
	cotMatches           int
	grpc                 bool
	h2InitialWindowSize  int
	asnClass             event.ASNClass
	countryCode          string
	modelName            string
}

// Window is a per-account, per-horizon sliding view. It retains raw
// records in a bounded ring and recomputes aggregates on demand, which
// keeps eviction exact (anything outside the horizon is simply not
// counted) at the cost of an O(ring size) rescan per snapshot.
type Window struct {
	horizon time.Duration
	ring    *ringBuffer
}

func newWindow(horizon time.Duration) *Window {
	return &Window{horizon: horizon, ring: newRingBuffer(windowRingCap)}
}

func (w *Window) append(rec promptRecord) {
	w.ring.Push(rec)
}

// WindowView is the read-only aggregate a worker consumes.
type WindowView struct {
	Horizon time.Duration
	Count   int
	First   time.Time
	Last    time.Time

	PromptLen   Welford
	TokenBudget Welford

	PromptLenReservoir   *Reservoir
	TokenBudgetReservoir *Reservoir

	JA3             *Multiset
	JA3S            *Multiset
	HeaderOrder     *Multiset
	H2SettingsHash  *Multiset
	SystemPromptHash *Multiset
	SubnetCounts     *Multiset
	PaymentHashCounts *Multiset

	DistinctSubnets      *BoundedSet
	DistinctPaymentHashes *BoundedSet

	TopicTransitions [int(event.NumTopics)][int(event.NumTopics)]int
	RefusalCounts    map[event.RefusalCategory]int

	Timestamps       []time.Time // chronological, for session_gap/velocity
	StructuralHashes []string // chronological, for entropy/CoT-dedup/biometric
	CoTMatches       []int    // chronological, parallel to StructuralHashes
	ZWFlags          []bool
	CanaryMatches    int
	CoTMatchTotal    int
	GRPCCount        int
	DatacenterCount  int
	ASNClassCounts   map[event.ASNClass]int
	CountryCodes     map[string]int
	MaxTokensSeen    int // observed model ceiling proxy for token_budget worker
	MaxH2WindowSize  int
	CompoundPreambleHit bool
	MeanEmbedding    []float32
}

// snapshot recomputes every aggregate from the records at or after
// now-horizon; records later than now are not excluded.
func (w *Window) snapshot(now time.Time) WindowView {
	v := WindowView{
		Horizon:               w.horizon,
		PromptLenReservoir:    NewReservoir(nil),
		TokenBudgetReservoir:  NewReservoir(nil),
		JA3:                   NewMultiset(64),
		JA3S:                  NewMultiset(64),
		HeaderOrder:           NewMultiset(64),
		H2SettingsHash:        NewMultiset(64),
		SystemPromptHash:      NewMultiset(64),
		SubnetCounts:          NewMultiset(512),
		PaymentHashCounts:     NewMultiset(512),
		DistinctSubnets:       NewBoundedSet(512),
		DistinctPaymentHashes: NewBoundedSet(512),
		RefusalCounts:         make(map[event.RefusalCategory]int),
		ASNClassCounts:        make(map[event.ASNClass]int),
		CountryCodes:          make(map[string]int),
	}

	cutoff := now.Add(-w.horizon)
	var embedSum []float32
	var embedN int
	lastTopic := event.TopicUnknown
	haveLastTopic := false

	w.ring.Each(func(r promptRecord) {
		if r.ts.Before(cutoff) {
			return
		}
		v.Count++
		if v.First.IsZero() || r.ts.Before(v.First) {
			v.First = r.ts
		}
		if r.ts.After(v.Last) {
			v.Last = r.ts
		}

		v.PromptLen.Add(float64(r.promptLenTokens))
		v.TokenBudget.Add(float64(r.maxTokensRequested))
		v.PromptLenReservoir.Add(float64(r.promptLenTokens))
		v.TokenBudgetReservoir.Add(float64(r.maxTokensRequested))
		if r.maxTokensRequested > v.MaxTokensSeen {
			v.MaxTokensSeen = r.maxTokensRequested
		}
		if r.h2InitialWindowSize > v.MaxH2WindowSize {
			v.MaxH2WindowSize = r.h2InitialWindowSize
		}

		v.JA3.Add(r.ja3)
		v.JA3S.Add(r.ja3s)
		v.HeaderOrder.Add(r.headerOrderHash)
		v.H2SettingsHash.Add(r.h2SettingsHash)
		v.SystemPromptHash.Add(r.systemPromptHash)
		if r.compoundPreambleHit {
			v.CompoundPreambleHit = true
		}

		v.DistinctSubnets.Add(r.subnet24)
		v.DistinctPaymentHashes.Add(r.paymentHash)
		v.SubnetCounts.Add(r.subnet24)
		v.PaymentHashCounts.Add(r.paymentHash)

		if haveLastTopic && r.topic < event.NumTopics && lastTopic < event.NumTopics {
			v.TopicTransitions[lastTopic][r.topic]++
		}
		lastTopic = r.topic
		haveLastTopic = true

		if r.refusalCategory != event.RefusalNone {
			v.RefusalCounts[r.refusalCategory]++
		}

		v.Timestamps = append(v.Timestamps, r.ts)
		v.StructuralHashes = append(v.StructuralHashes, r.structuralHash)
		v.CoTMatches = append(v.CoTMatches, r.cotMatches)
		v.ZWFlags = append(v.ZWFlags, r.zwCharFlag)
		if r.canaryTokenMatch {
			v.CanaryMatches++
		}
		v.CoTMatchTotal += r.cotMatches
		if r.grpc {
			v.GRPCCount++
		}
		if r.asnClass == event.ASNDatacenter {
			v.DatacenterCount++
		}
		v.ASNClassCounts[r.asnClass]++
		if r.countryCode != "" {
			v.CountryCodes[r.countryCode]++
		}

		if len(r.embedding) > 0 {
			if embedSum == nil {
				embedSum = make([]float32, len(r.embedding))
			}
			for i, x := range r.embedding {
				if i < len(embedSum) {
					embedSum[i] += x
				}
			}
			embedN++
		}
	})

	if embedN > 0 {
		v.MeanEmbedding = make([]float32, len(embedSum))
		for i, s := range embedSum {
			v.MeanEmbedding[i] = s / float32(embedN)
		}
	}

	return v
}

// StructuralEntropyFixedNorm returns the Shannon entropy (base 2) of the
// StructuralHashes, normalized by log2(fixedN) rather than log2(n), as
// spec.md §4.3's biometric worker requires: the divisor stays fixed at
// log2(50) regardless of how many prompts are actually in the window,
// so an account with fewer than 50 observed prompts isn't penalized
// with an inflated normalized entropy (and thus a deflated 1-entropy
// score) relative to an account with a full 50-prompt history.
func (v *WindowView) StructuralEntropyFixedNorm(fixedN int) float64 {
	n := len(v.StructuralHashes)
	if n < 2 {
		return 0
	}
	counts := make(map[string]int, n)
	for _, h := range v.StructuralHashes {
		counts[h]++
	}
	var entropy float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		entropy -= p * math.Log2(p)
	}
	norm := math.Log2(float64(fixedN))
	if norm == 0 {
		return 0
	}
	return entropy / norm
}
