package store

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// shard owns a disjoint partition of accounts. A single mutex serializes
// ingest for every account in the shard; readers (workers, via Snapshot)
// take a brief RLock, matching spec.md §4.1's "single-writer per account
// achieved by partitioning accounts across shards" model.
type shard struct {
	mu       sync.RWMutex
	accounts map[string]*accountState
}

func newShard() *shard {
	return &shard{accounts: make(map[string]*accountState)}
}

func shardIndex(accountID string, numShards int) int {
	return int(xxhash.Sum64String(accountID) % uint64(numShards))
}

// getOrCreate returns the account's state, creating it if new. Caller
// must hold s.mu for writing.
func (s *shard) getOrCreate(accountID string, now time.Time) *accountState {
	a, ok := s.accounts[accountID]
	if !ok {
		a = newAccountState(accountID, now)
		s.accounts[accountID] = a
	}
	return a
}

// gc drops accounts idle for more than 24h, per spec.md §4.1.
func (s *shard) gc(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-24 * time.Hour)
	for id, a := range s.accounts {
		if a.lastActivity.Before(cutoff) {
			delete(s.accounts, id)
		}
	}
}
