// Package store implements the concurrent per-account sliding-window
// state store and cross-account indexes of spec.md §4.1: sharded by
// account ID for single-writer-per-account ingest, snapshot reads that
// never block writers for bounded durations, and time+size-bounded
// eviction.
package store

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/glasswally/glasswally/internal/event"
	"github.com/glasswally/glasswally/internal/signature"
)

// DefaultShardCount matches spec.md §5's "default 64 shards".
const DefaultShardCount = 64

// Store is the top-level state store.
type Store struct {
	shards  []*shard
	numShards int

	cross *CrossIndex

	cotMatcher     *signature.Matcher
	topicCentroids [][]float32
	preambleLexicon [][2]string

	dirtyMu sync.Mutex
	dirty   map[string]struct{} // accounts whose pivots changed since the clusterer last recomputed

	lruMu      sync.Mutex
	accountLRU *lru.Cache[string, struct{}]

	accountCap int
}

// New builds a Store with the given shard count and account cap. df
// supplies the CoT lexicon and topic centroids (spec.md §9 Open
// Question a); pass signature.Builtin() when no external data file is
// configured.
func New(numShards int, accountCap int, df *signature.DataFile) *Store {
	if numShards <= 0 {
		numShards = DefaultShardCount
	}
	s := &Store{
		shards:         make([]*shard, numShards),
		numShards:      numShards,
		cross:          NewCrossIndex(24 * time.Hour),
		cotMatcher:     signature.NewMatcher(df.CoTPhrases),
		topicCentroids: df.TopicCentroids,
		preambleLexicon: df.CompoundPreambleLexicon,
		dirty:          make(map[string]struct{}),
		accountCap:     accountCap,
	}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	onEvict := func(accountID string, _ struct{}) {
		s.evictAccount(accountID)
	}
	c, _ := lru.NewWithEvict[string, struct{}](maxInt(accountCap, 1), onEvict)
	s.accountLRU = c
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (s *Store) shardFor(accountID string) *shard {
	return s.shards[shardIndex(accountID, s.numShards)]
}

// IngestResult reports what Ingest did, for the orchestrator's metrics
// and error-kind bookkeeping (spec.md §7).
type IngestResult struct {
	Dropped      bool
	DropReason   string // "out_of_order" when Dropped
	PivotsTouched bool
}

// Ingest appends ev to the account's windows and the cross-account
// indexes. It never errors (spec.md §4.1): out-of-order events are
// dropped and reported via IngestResult instead.
func (s *Store) Ingest(ev event.Event) IngestResult {
	sh := s.shardFor(ev.AccountID)

	sh.mu.Lock()
	a := sh.getOrCreate(ev.AccountID, ev.Timestamp)
	if !a.lastTimestamp.IsZero() && ev.Timestamp.Before(a.lastTimestamp) {
		sh.mu.Unlock()
		return IngestResult{Dropped: true, DropReason: "out_of_order"}
	}

	derived := deriveFromPrompt(ev, s.cotMatcher, s.topicCentroids, s.preambleLexicon)
	rec := promptRecord{
		ts:                 ev.Timestamp,
		promptLenTokens:    ev.PromptLenTokens,
		maxTokensRequested: ev.MaxTokensRequested,
		ja3:                ev.JA3,
		ja3s:               ev.JA3S,
		headerOrderHash:    ev.HeaderOrderHash,
		h2SettingsHash:     ev.H2SettingsHash,
		systemPromptHash:   ev.SystemPromptHash,
		compoundPreambleHit: derived.compoundPreambleHit,
		subnet24:           ev.Subnet24,
		paymentHash:        ev.PaymentHash,
		topic:              derived.topic,
		structuralHash:     derived.structuralHash,
		embedding:          derived.embedding,
		zwCharFlag:         ev.ZWCharFlag,
		canaryTokenMatch:   ev.CanaryTokenMatch,
		refusalCategory:    ev.RefusalCategory,
		cotMatches:         derived.cotMatches,
		grpc:               ev.GRPC,
		h2InitialWindowSize: ev.H2InitialWindowSizeBytes,
		asnClass:           ev.ASNClass,
		countryCode:        ev.CountryCode,
		modelName:          ev.Model,
	}
	a.ingest(ev.Timestamp, rec)
	sh.mu.Unlock()

	s.touchLRU(ev.AccountID)

	touched := s.recordPivots(ev)

	return IngestResult{PivotsTouched: touched}
}

func (s *Store) recordPivots(ev event.Event) bool {
	touched := false
	record := func(attr Attribute, value string) {
		if value == "" {
			return
		}
		s.cross.Record(attr, value, ev.AccountID, ev.Timestamp)
		touched = true
	}
	record(AttrSubnet24, ev.Subnet24)
	record(AttrPaymentHash, ev.PaymentHash)
	record(AttrJA3, ev.JA3)
	record(AttrJA3S, ev.JA3S)
	record(AttrH2SettingsHash, ev.H2SettingsHash)
	record(AttrSystemPromptHash, ev.SystemPromptHash)
	record(AttrHeaderOrder, ev.HeaderOrderHash)
	if touched {
		s.markDirty(ev.AccountID)
	}
	return touched
}

func (s *Store) touchLRU(accountID string) {
	if s.accountLRU == nil {
		return
	}
	s.lruMu.Lock()
	s.accountLRU.Add(accountID, struct{}{})
	s.lruMu.Unlock()
}

func (s *Store) evictAccount(accountID string) {
	sh := s.shardFor(accountID)
	sh.mu.Lock()
	delete(sh.accounts, accountID)
	sh.mu.Unlock()
}

// markDirty records that accountID's pivot edges may have changed, for
// the clusterer's lazy component-cache invalidation (spec.md §3).
func (s *Store) markDirty(accountID string) {
	s.dirtyMu.Lock()
	s.dirty[accountID] = struct{}{}
	s.dirtyMu.Unlock()
}

// DrainDirty returns and clears the set of accounts touched since the
// last call.
func (s *Store) DrainDirty() []string {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	out := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		out = append(out, id)
	}
	s.dirty = make(map[string]struct{})
	return out
}

// Snapshot returns a read-only view of accountID consistent with the
// latest completed Ingest. Readers never block writers for bounded
// durations: this takes the shard's RLock only long enough to read the
// account's window ring buffers.
func (s *Store) Snapshot(accountID string, now time.Time) Snapshot {
	sh := s.shardFor(accountID)
	sh.mu.RLock()
	a, ok := sh.accounts[accountID]
	if !ok {
		sh.mu.RUnlock()
		return Snapshot{AccountID: accountID, Now: now}
	}
	fiveMin := a.window(5 * time.Minute).snapshot(now)
	oneHour := a.window(time.Hour).snapshot(now)
	day := a.window(24 * time.Hour).snapshot(now)
	thirtyDay := a.thirtyDayCount
	interArrival := a.interArrival.Values()
	sh.mu.RUnlock()

	snap := Snapshot{
		AccountID:      accountID,
		Now:            now,
		FiveMinute:     windowViewOrEmpty(fiveMin),
		OneHour:        windowViewOrEmpty(oneHour),
		TwentyFourHour: windowViewOrEmpty(day),
		ThirtyDayCount: thirtyDay,
		InterArrivalMS: interArrival,
	}

	snap.TopSubnet = day.mostCommonSubnet()
	snap.TopPaymentHash = day.mostCommonPaymentHash()
	snap.TopJA3 = day.JA3.Most().Value
	snap.TopJA3S = day.JA3S.Most().Value
	snap.TopH2SettingsHash = day.H2SettingsHash.Most().Value
	snap.TopSystemPromptHash = day.SystemPromptHash.Most().Value
	snap.TopHeaderOrderHash = day.HeaderOrder.Most().Value

	snap.SubnetPeers = s.cross.AccountsFor(AttrSubnet24, snap.TopSubnet, now)
	snap.PaymentPeers = s.cross.AccountsFor(AttrPaymentHash, snap.TopPaymentHash, now)
	snap.JA3Peers = s.cross.AccountsFor(AttrJA3, snap.TopJA3, now)
	snap.JA3SPeers = s.cross.AccountsFor(AttrJA3S, snap.TopJA3S, now)
	snap.H2Peers = s.cross.AccountsFor(AttrH2SettingsHash, snap.TopH2SettingsHash, now)
	snap.SystemPromptPeers = s.cross.AccountsFor(AttrSystemPromptHash, snap.TopSystemPromptHash, now)
	snap.HeaderOrderPeers = s.cross.AccountsFor(AttrHeaderOrder, snap.TopHeaderOrderHash, now)
	return snap
}

// PeerTimestamps exposes the cross-account index's last-seen times for
// value on attr, for the orchestrator to feed the clusterer's burst
// detector.
func (s *Store) PeerTimestamps(attr Attribute, value string, now time.Time) map[string]time.Time {
	return s.cross.LastSeenFor(attr, value, now)
}

// mostCommonSubnet/mostCommonPaymentHash rank by SubnetCounts/
// PaymentHashCounts, the same Multiset+Most() pattern the other four
// pivot attributes use (JA3, JA3S, H2SettingsHash, SystemPromptHash
// above), so the value that becomes TopSubnet/TopPaymentHash is this
// account's dominant subnet/payment hash rather than an arbitrary
// distinct one. DistinctSubnets/DistinctPaymentHashes remain separate,
// bounded sets: the IOC bundle (orchestrator.buildIOCBundle) wants every
// distinct value seen, not just the most frequent.
func (v WindowView) mostCommonSubnet() string {
	return v.SubnetCounts.Most().Value
}

func (v WindowView) mostCommonPaymentHash() string {
	return v.PaymentHashCounts.Most().Value
}

// AccountCount returns the number of accounts currently tracked, for the
// state_accounts gauge.
func (s *Store) AccountCount() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.accounts)
		sh.mu.RUnlock()
	}
	return total
}

// GC drops expired account state and compacts cross-account indexes, per
// spec.md §4.1.
func (s *Store) GC(now time.Time) {
	for _, sh := range s.shards {
		sh.gc(now)
	}
	s.cross.GC(now)
}
