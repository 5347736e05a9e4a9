package clusterer

import (
	"time"

	"github.com/glasswally/glasswally/internal/config"
	"github.com/glasswally/glasswally/internal/event"
)

// PivotAttribute is the attribute/value pair an update touches, and the
// match strength (1.0 for exact; near-match decay such as subnet /16 is
// not computed since the state store only tracks exact subnet_24 and
// exact hash values — any future near-match tier is a store-side
// addition, not a clusterer one).
type PivotAttribute struct {
	Attr     Attribute
	Value    string
	Strength float64
	Peers    map[string]time.Time // peer accountID -> last time seen sharing Value
}

// Update folds one event's pivot attributes into the graph: for every
// attribute the event carries, every peer account sharing its value
// gets an edge (or an edge update) weighted by w_A * strength.
func (g *Graph) Update(ev event.Event, pivots []PivotAttribute, weights config.PivotWeights) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastClass[ev.AccountID] = ev.ASNClass
	g.lastSeen[ev.AccountID] = ev.Timestamp

	if g.lastModel == nil {
		g.lastModel = make(map[string]string)
		g.modelChanged = make(map[string]bool)
	}
	prevModel, known := g.lastModel[ev.AccountID]
	g.modelChanged[ev.AccountID] = known && ev.Model != "" && prevModel != ev.Model
	if ev.Model != "" {
		g.lastModel[ev.AccountID] = ev.Model
	}

	peerTimestamps := make(map[string]time.Time)
	for _, p := range pivots {
		w := weightFor(weights, p.Attr)
		contribution := w * p.Strength
		for peer, ts := range p.Peers {
			if peer == ev.AccountID {
				continue
			}
			g.recordEdge(ev.AccountID, peer, p.Attr, contribution)
			peerTimestamps[peer] = ts
		}
	}

	g.recordBurst(ev.AccountID, ev.Timestamp, peerTimestamps)
}

func weightFor(w config.PivotWeights, attr Attribute) float64 {
	switch attr {
	case AttrSubnet24:
		return w.Subnet24
	case AttrPaymentHash:
		return w.PaymentHash
	case AttrJA3:
		return w.JA3
	case AttrJA3S:
		return w.JA3S
	case AttrH2SettingsHash:
		return w.H2SettingsHash
	case AttrSystemPromptHash:
		return w.SystemPromptHash
	default:
		return 0
	}
}

// enforcementAction records when and which cluster an enforcement tier
// was applied to an account, for the pivot worker's "model change after
// a correlated account's enforcement action" signal.
type enforcementAction struct {
	at        time.Time
	clusterID uint64
}

// RecordEnforcement is called by the dispatcher whenever it emits a
// Critical-tier action, so the pivot worker can detect accounts reacting
// to a cluster-mate's enforcement.
func (g *Graph) RecordEnforcement(accountID string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.actions == nil {
		g.actions = make(map[string]enforcementAction)
	}
	g.actions[accountID] = enforcementAction{at: at, clusterID: g.clusterIDs[accountID]}
}

// PivotSignal reports whether accountID changed model within window of a
// correlated (same-cluster) account's enforcement action, and how long
// ago that was.
func (g *Graph) PivotSignal(accountID string, now time.Time, window time.Duration) (changedAfterAction bool, minutesSince float64) {
	g.mu.Lock()
	if g.dirty {
		g.recomputeComponents()
	}
	myCluster := g.clusterIDs[accountID]
	modelChanged := g.modelChanged[accountID]
	defer g.mu.Unlock()

	if myCluster == 0 || !modelChanged {
		return false, -1
	}
	var mostRecent time.Time
	found := false
	for acct, a := range g.actions {
		if acct == accountID {
			continue
		}
		if g.clusterIDs[acct] != myCluster {
			continue
		}
		if now.Sub(a.at) > window {
			continue
		}
		if a.at.After(mostRecent) {
			mostRecent = a.at
			found = true
		}
	}
	if !found {
		return false, -1
	}
	return true, now.Sub(mostRecent).Minutes()
}
