package clusterer

import (
	"sort"

	"github.com/glasswally/glasswally/internal/event"
)

// unionFind is a standard disjoint-set with path compression and union
// by rank, rebuilt from scratch on every recompute since the graph is
// small enough (bounded by live account count) that an incremental
// structure isn't worth the bookkeeping.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string), rank: make(map[string]int)}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		return x
	}
	if u.parent[x] != x {
		u.parent[x] = u.find(u.parent[x])
	}
	return u.parent[x]
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// recomputeComponents rebuilds connected components using only edges at
// or above the component threshold (spec.md §4.5: 0.50), distinct from
// the lower edge-drop threshold used for degree/hydra scoring. Caller
// must hold g.mu for writing.
func (g *Graph) recomputeComponents() {
	uf := newUnionFind()
	for a, peers := range g.adjacency {
		uf.find(a)
		for b, e := range peers {
			if e.total >= g.componentThreshold {
				uf.union(a, b)
			}
		}
	}

	groups := make(map[string][]string)
	for a := range g.adjacency {
		root := uf.find(a)
		groups[root] = append(groups[root], a)
	}

	components := make(map[string][]string)
	clusterIDs := make(map[string]uint64)
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		id := clusterIDFor(members)
		for _, m := range members {
			components[m] = members
			clusterIDs[m] = id
		}
	}

	g.components = components
	g.clusterIDs = clusterIDs
	g.dirty = false
}

// ComponentSize returns the size of accountID's connected component (0
// if it belongs to none).
func (g *Graph) ComponentSize(accountID string) int {
	g.mu.Lock()
	if g.dirty {
		g.recomputeComponents()
	}
	defer g.mu.Unlock()
	return len(g.components[accountID])
}

// ComponentMembers returns the member list of accountID's component, nil
// if none.
func (g *Graph) ComponentMembers(accountID string) []string {
	g.mu.Lock()
	if g.dirty {
		g.recomputeComponents()
	}
	defer g.mu.Unlock()
	return append([]string(nil), g.components[accountID]...)
}

// ClusterID returns the component's cluster_id (smallest member's
// account_id hashed to 64 bits), 0 if accountID belongs to no component.
func (g *Graph) ClusterID(accountID string) uint64 {
	g.mu.Lock()
	if g.dirty {
		g.recomputeComponents()
	}
	defer g.mu.Unlock()
	return g.clusterIDs[accountID]
}

// ComponentDatacenterFraction returns the fraction of accountID's
// component classified ASN datacenter, using each member's last-known
// class.
func (g *Graph) ComponentDatacenterFraction(accountID string) float64 {
	g.mu.Lock()
	if g.dirty {
		g.recomputeComponents()
	}
	members := g.components[accountID]
	if len(members) == 0 {
		g.mu.Unlock()
		return 0
	}
	datacenter := 0
	for _, m := range members {
		if g.lastClass[m] == event.ASNDatacenter {
			datacenter++
		}
	}
	g.mu.Unlock()
	return float64(datacenter) / float64(len(members))
}
