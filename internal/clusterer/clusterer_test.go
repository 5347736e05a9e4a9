package clusterer

import (
	"testing"
	"time"

	"github.com/glasswally/glasswally/internal/config"
	"github.com/glasswally/glasswally/internal/event"
)

func pivots(now time.Time, peers ...string) []PivotAttribute {
	peerMap := make(map[string]time.Time, len(peers))
	for _, p := range peers {
		peerMap[p] = now
	}
	return []PivotAttribute{
		{Attr: AttrPaymentHash, Value: "pay-shared", Strength: 1.0, Peers: peerMap},
	}
}

func TestUpdateBuildsEdgeBelowComponentThreshold(t *testing.T) {
	g := NewGraph(0.20, 0.50)
	now := time.Now()
	weights := config.DefaultPivotWeights() // payment_hash weight 0.30, below 0.50 alone

	g.Update(event.Event{AccountID: "a1", Timestamp: now}, pivots(now, "a2"), weights)
	g.Update(event.Event{AccountID: "a2", Timestamp: now}, pivots(now, "a1"), weights)

	if d := g.Degree("a1"); d != 1 {
		t.Fatalf("Degree(a1) = %d, want 1 (single shared payment_hash edge)", d)
	}
	// 0.30 alone is below the 0.50 component threshold: no component yet.
	if size := g.ComponentSize("a1"); size != 0 {
		t.Fatalf("ComponentSize(a1) = %d, want 0 below the component threshold", size)
	}
}

func TestUpdateFormsComponentAboveThreshold(t *testing.T) {
	g := NewGraph(0.20, 0.50)
	now := time.Now()
	weights := config.PivotWeights{PaymentHash: 0.30, Subnet24: 0.25}

	shared := func(acct string, peer string) []PivotAttribute {
		peerMap := map[string]time.Time{peer: now}
		return []PivotAttribute{
			{Attr: AttrPaymentHash, Value: "pay-shared", Strength: 1.0, Peers: peerMap},
			{Attr: AttrSubnet24, Value: "subnet-shared", Strength: 1.0, Peers: peerMap},
		}
	}

	g.Update(event.Event{AccountID: "b1", Timestamp: now}, shared("b1", "b2"), weights)
	g.Update(event.Event{AccountID: "b2", Timestamp: now}, shared("b2", "b1"), weights)

	if size := g.ComponentSize("b1"); size != 2 {
		t.Fatalf("ComponentSize(b1) = %d, want 2 (0.30+0.25=0.55 >= 0.50 threshold)", size)
	}
	if g.ClusterID("b1") != g.ClusterID("b2") {
		t.Fatal("expected b1 and b2 to share a cluster_id")
	}
}

func TestEdgeDroppedBelowDropThreshold(t *testing.T) {
	g := NewGraph(0.20, 0.50)
	now := time.Now()
	weights := config.PivotWeights{SystemPromptHash: 0.10} // below the 0.20 drop threshold alone

	peerMap := map[string]time.Time{"c2": now}
	p := []PivotAttribute{{Attr: AttrSystemPromptHash, Value: "sp-shared", Strength: 1.0, Peers: peerMap}}
	g.Update(event.Event{AccountID: "c1", Timestamp: now}, p, weights)

	if d := g.Degree("c1"); d != 0 {
		t.Fatalf("Degree(c1) = %d, want 0 (edge weight below drop threshold)", d)
	}
}

func TestPivotSignalDetectsModelChangeAfterClusterEnforcement(t *testing.T) {
	g := NewGraph(0.20, 0.50)
	now := time.Now()
	weights := config.PivotWeights{PaymentHash: 0.30, Subnet24: 0.25}
	peerMap := func(peer string) map[string]time.Time { return map[string]time.Time{peer: now} }
	shared := func(peer string) []PivotAttribute {
		return []PivotAttribute{
			{Attr: AttrPaymentHash, Value: "pay", Strength: 1.0, Peers: peerMap(peer)},
			{Attr: AttrSubnet24, Value: "sub", Strength: 1.0, Peers: peerMap(peer)},
		}
	}

	g.Update(event.Event{AccountID: "d1", Timestamp: now, Model: "gpt-a"}, shared("d2"), weights)
	g.Update(event.Event{AccountID: "d2", Timestamp: now, Model: "gpt-a"}, shared("d1"), weights)

	g.RecordEnforcement("d2", now)

	// d1 changes model shortly after d2's (cluster-mate's) enforcement.
	g.Update(event.Event{AccountID: "d1", Timestamp: now.Add(time.Minute), Model: "gpt-b"}, shared("d2"), weights)

	changed, minutes := g.PivotSignal("d1", now.Add(2*time.Minute), 10*time.Minute)
	if !changed {
		t.Fatal("expected PivotSignal to report a correlated model change")
	}
	if minutes <= 0 {
		t.Fatalf("minutes = %v, want > 0", minutes)
	}
}

func TestPivotBurstFractionRequiresSynchronizedPeers(t *testing.T) {
	g := NewGraph(0.20, 0.50)
	now := time.Now()
	weights := config.DefaultPivotWeights()

	g.Update(event.Event{AccountID: "e1", Timestamp: now}, pivots(now, "e2", "e3"), weights)
	if f := g.PivotBurstFraction("e1"); f != 1.0 {
		t.Fatalf("PivotBurstFraction = %v, want 1.0 for a single synchronized bucket", f)
	}
}

func TestGCRemovesStaleAccounts(t *testing.T) {
	g := NewGraph(0.20, 0.50)
	old := time.Now().Add(-48 * time.Hour)
	weights := config.DefaultPivotWeights()
	g.Update(event.Event{AccountID: "f1", Timestamp: old}, pivots(old, "f2"), weights)

	g.GC(time.Now())

	if d := g.Degree("f1"); d != 0 {
		t.Fatalf("Degree(f1) after GC = %d, want 0", d)
	}
}
