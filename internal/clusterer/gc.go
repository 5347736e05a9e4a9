package clusterer

import "time"

// staleAfter matches the cross-account index horizon (spec.md §3: 24h):
// an account not seen for that long is dropped from the graph entirely.
const staleAfter = 24 * time.Hour

// GC drops accounts (and their edges) idle past staleAfter.
func (g *Graph) GC(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-staleAfter)
	for acct, last := range g.lastSeen {
		if last.After(cutoff) {
			continue
		}
		for peer := range g.adjacency[acct] {
			delete(g.adjacency[peer], acct)
		}
		delete(g.adjacency, acct)
		delete(g.lastSeen, acct)
		delete(g.lastClass, acct)
		delete(g.burst, acct)
		delete(g.actions, acct)
		delete(g.lastModel, acct)
		delete(g.modelChanged, acct)
	}
	g.dirty = true
}

// ComponentCount returns the number of multi-account components
// currently cached, for the cluster_components gauge.
func (g *Graph) ComponentCount() int {
	g.mu.Lock()
	if g.dirty {
		g.recomputeComponents()
	}
	defer g.mu.Unlock()

	seen := make(map[uint64]bool)
	for _, id := range g.clusterIDs {
		seen[id] = true
	}
	return len(seen)
}
