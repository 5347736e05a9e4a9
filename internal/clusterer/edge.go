// Package clusterer implements the Hydra graph of spec.md §4.5: an
// undirected weighted graph over accounts, edges driven by shared pivot
// attributes, connected components exposed as cluster_id.
package clusterer

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/glasswally/glasswally/internal/event"
)

// Attribute mirrors store.Attribute; duplicated here to avoid a clusterer
// -> store import (the clusterer only needs the attribute's identity and
// weight, never the store's indexing machinery).
type Attribute int

const (
	AttrSubnet24 Attribute = iota
	AttrPaymentHash
	AttrJA3
	AttrJA3S
	AttrH2SettingsHash
	AttrSystemPromptHash
	numAttributes
)

// edge holds one pair's per-attribute contributions; total is their sum,
// recomputed whenever a contribution changes (spec.md §4.5: "weight =
// Σ_A w_A·s_A").
type edge struct {
	components [numAttributes]float64
	total      float64
}

func (e *edge) recompute() {
	var total float64
	for _, c := range e.components {
		total += c
	}
	e.total = total
}

// Graph is the Hydra graph. It is mutated by Update, RecordEnforcement
// and GC. Degree and PivotBurstFraction take a read lock; the component
// accessors take the write lock because they may recompute the cached
// components.
type Graph struct {
	mu        sync.RWMutex
	adjacency map[string]map[string]*edge
	lastClass map[string]event.ASNClass
	lastSeen  map[string]time.Time

	edgeDropThreshold  float64
	componentThreshold float64

	dirty      bool
	components map[string][]string // accountID -> sorted member list, cached
	clusterIDs map[string]uint64   // accountID -> cluster_id, cached

	burst map[string]*burstTracker

	actions      map[string]enforcementAction
	lastModel    map[string]string
	modelChanged map[string]bool
}

// NewGraph builds an empty graph with the given drop/component
// thresholds (spec.md §4.5: 0.20 and 0.50).
func NewGraph(edgeDropThreshold, componentThreshold float64) *Graph {
	return &Graph{
		adjacency:          make(map[string]map[string]*edge),
		lastClass:          make(map[string]event.ASNClass),
		lastSeen:           make(map[string]time.Time),
		edgeDropThreshold:  edgeDropThreshold,
		componentThreshold: componentThreshold,
		dirty:              true,
	}
}

func (g *Graph) getOrCreateEdge(a, b string) *edge {
	if g.adjacency[a] == nil {
		g.adjacency[a] = make(map[string]*edge)
	}
	if g.adjacency[b] == nil {
		g.adjacency[b] = make(map[string]*edge)
	}
	e, ok := g.adjacency[a][b]
	if !ok {
		e = &edge{}
		g.adjacency[a][b] = e
		g.adjacency[b][a] = e
	}
	return e
}

// recordEdge sets accountID--peer's contribution for attr and drops the
// edge entirely if its recomputed total falls below the drop threshold.
func (g *Graph) recordEdge(accountID, peer string, attr Attribute, weight float64) {
	if accountID == peer || peer == "" {
		return
	}
	e := g.getOrCreateEdge(accountID, peer)
	e.components[attr] = weight
	e.recompute()
	if e.total < g.edgeDropThreshold {
		delete(g.adjacency[accountID], peer)
		delete(g.adjacency[peer], accountID)
	}
	g.dirty = true
}

// Degree returns the number of surviving (>= edge-drop threshold) edges
// for accountID.
func (g *Graph) Degree(accountID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adjacency[accountID])
}

func clusterIDFor(members []string) uint64 {
	smallest := members[0]
	for _, m := range members[1:] {
		if m < smallest {
			smallest = m
		}
	}
	return xxhash.Sum64String(smallest)
}
