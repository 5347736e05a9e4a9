// Cross-account indexes map a shared attribute value to the set of
// accounts observed on it within the 24h horizon (spec.md §3). They are
// shared by all shards and one RWMutex guards every attribute kind,
// since the index as a whole is much smaller than the per-account window
// state. Record only adds; GC removes accounts past the horizon.
package store

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Attribute names the pivot dimension, matching spec.md §4.5's set, plus
// AttrHeaderOrder: not one of the six Hydra pivots (orchestrator.buildPivots
// doesn't cluster on it), but tracked here anyway so the fingerprint worker
// can compute a real cross-account header_order_hash collision rate instead
// of approximating it off subnet crowding.
type Attribute int

const (
	AttrSubnet24 Attribute = iota
	AttrPaymentHash
	AttrJA3
	AttrJA3S
	AttrH2SettingsHash
	AttrSystemPromptHash
	AttrHeaderOrder
	numAttributes
)

// indexEntry is one attribute value's observed account set.
type indexEntry struct {
	value    string
	accounts map[string]int       // accountID -> occurrence count
	lastSeen map[string]time.Time // accountID -> last time seen on this value
}

// CrossIndex holds the six Hydra pivot indexes plus the header-order
// index the fingerprint worker uses on its own.
type CrossIndex struct {
	mu      sync.RWMutex
	byAttr  [numAttributes]map[uint64]*indexEntry
	horizon time.Duration
}

// NewCrossIndex builds an empty set of indexes retained for horizon
// (spec.md §3: 24h).
func NewCrossIndex(horizon time.Duration) *CrossIndex {
	ci := &CrossIndex{horizon: horizon}
	for i := range ci.byAttr {
		ci.byAttr[i] = make(map[uint64]*indexEntry)
	}
	return ci
}

func keyOf(value string) uint64 { return xxhash.Sum64String(value) }

// Record notes that accountID was observed using value for attribute attr
// at time ts.
func (ci *CrossIndex) Record(attr Attribute, value, accountID string, ts time.Time) {
	if value == "" || accountID == "" {
		return
	}
	k := keyOf(value)
	ci.mu.Lock()
	defer ci.mu.Unlock()
	m := ci.byAttr[attr]
	e, ok := m[k]
	if !ok {
		e = &indexEntry{value: value, accounts: make(map[string]int), lastSeen: make(map[string]time.Time)}
		m[k] = e
	}
	e.accounts[accountID]++
	e.lastSeen[accountID] = ts
}

// AccountsFor returns the accounts sharing value on attr within the
// horizon as of now, with their occurrence counts. The calling account
// itself is included if present.
func (ci *CrossIndex) AccountsFor(attr Attribute, value string, now time.Time) map[string]int {
	if value == "" {
		return nil
	}
	k := keyOf(value)
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	e, ok := ci.byAttr[attr][k]
	if !ok {
		return nil
	}
	out := make(map[string]int, len(e.accounts))
	cutoff := now.Add(-ci.horizon)
	for acct, last := range e.lastSeen {
		if last.Before(cutoff) {
			continue
		}
		out[acct] = e.accounts[acct]
	}
	return out
}

// LastSeenFor returns the per-account last-seen timestamps for value on
// attr within the horizon, for callers (the clusterer) that need arrival
// times rather than occurrence counts.
func (ci *CrossIndex) LastSeenFor(attr Attribute, value string, now time.Time) map[string]time.Time {
	if value == "" {
		return nil
	}
	k := keyOf(value)
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	e, ok := ci.byAttr[attr][k]
	if !ok {
		return nil
	}
	out := make(map[string]time.Time, len(e.lastSeen))
	cutoff := now.Add(-ci.horizon)
	for acct, last := range e.lastSeen {
		if last.Before(cutoff) {
			continue
		}
		out[acct] = last
	}
	return out
}

// GC drops accounts not seen within the horizon from every index entry,
// and drops entries left with no accounts.
func (ci *CrossIndex) GC(now time.Time) {
	cutoff := now.Add(-ci.horizon)
	ci.mu.Lock()
	defer ci.mu.Unlock()
	for _, m := range ci.byAttr {
		for k, e := range m {
			for acct, last := range e.lastSeen {
				if last.Before(cutoff) {
					delete(e.lastSeen, acct)
					delete(e.accounts, acct)
				}
			}
			if len(e.accounts) == 0 {
				delete(m, k)
			}
		}
	}
}
