package clusterer

import "time"

// pivotActionWindow is the correlated-enforcement decay window the pivot
// worker uses (spec.md §4.3: "within 10 minutes").
const pivotActionWindow = 10 * time.Minute

// View is the snapshot of Hydra state one account's workers need for one
// event; it mirrors worker.ClusterContext field-for-field so the
// orchestrator can construct that type by a plain field copy without
// this package importing worker (which in turn would import clusterer
// through the registry).
type View struct {
	Degree                            int
	ComponentSize                     int
	ComponentDatacenterFrac           float64
	PivotBurstFraction                float64
	ModelChangedAfterCorrelatedAction bool
	MinutesSinceCorrelatedAction      float64
}

// ViewFor computes the cluster view for accountID as of now.
func (g *Graph) ViewFor(accountID string, now time.Time) View {
	changedAfterAction, minutes := g.PivotSignal(accountID, now, pivotActionWindow)
	return View{
		Degree:                            g.Degree(accountID),
		ComponentSize:                     g.ComponentSize(accountID),
		ComponentDatacenterFrac:           g.ComponentDatacenterFraction(accountID),
		PivotBurstFraction:                g.PivotBurstFraction(accountID),
		ModelChangedAfterCorrelatedAction: changedAfterAction,
		MinutesSinceCorrelatedAction:      minutes,
	}
}
