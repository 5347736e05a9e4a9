// Package orchestrator runs the real-time detection loop of spec.md
// §5: ingest, snapshot, fan out the sixteen detector workers
// concurrently under a per-event budget, fold the event into the
// Hydra graph, fuse the signals, and dispatch the tiered result.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/glasswally/glasswally/internal/clusterer"
	"github.com/glasswally/glasswally/internal/config"
	"github.com/glasswally/glasswally/internal/dispatcher"
	"github.com/glasswally/glasswally/internal/event"
	"github.com/glasswally/glasswally/internal/fusion"
	"github.com/glasswally/glasswally/internal/signature"
	"github.com/glasswally/glasswally/internal/store"
	"github.com/glasswally/glasswally/internal/telemetry"
	"github.com/glasswally/glasswally/internal/worker"
)

// Orchestrator wires the state store, detector registry, Hydra graph,
// fusion engine, and dispatcher into one sequential event loop. A
// single loop goroutine (plus a bounded worker fan-out per event)
// is what gives spec.md §5's per-account ordering invariant for free:
// events are never reordered between ingest and dispatch.
type Orchestrator struct {
	cfg     *config.Config
	store   *store.Store
	graph   *clusterer.Graph
	workers []worker.Worker
	dispatch *dispatcher.Dispatcher
	metrics *telemetry.Metrics
	log     zerolog.Logger

	resultsMu sync.RWMutex
	results   map[string]fusion.Result
}

// New builds an Orchestrator from already-constructed dependencies.
// graph is built by the caller (cmd/glasswally) and also handed to the
// dispatcher as its EnforcementRecorder, so both sides observe the
// same cluster state.
func New(cfg *config.Config, df *signature.DataFile, graph *clusterer.Graph, disp *dispatcher.Dispatcher, metrics *telemetry.Metrics, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store.New(store.DefaultShardCount, cfg.AccountCap, df),
		graph:    graph,
		workers:  worker.Registry(df, cfg),
		dispatch: disp,
		metrics:  metrics,
		log:      log,
		results:  make(map[string]fusion.Result),
	}
}

// AccountStatus returns the most recent fusion result computed for
// accountID, for the account-query adapter of spec.md §6. The zero
// value and ok=false mean no event has been observed for this account.
func (o *Orchestrator) AccountStatus(accountID string) (fusion.Result, bool) {
	o.resultsMu.RLock()
	defer o.resultsMu.RUnlock()
	res, ok := o.results[accountID]
	return res, ok
}

// Run consumes events until the channel closes or ctx is cancelled,
// and runs a periodic GC sweep alongside it.
func (o *Orchestrator) Run(ctx context.Context, events <-chan event.Event) error {
	o.log.Info().Int("workers", len(o.workers)).Msg("orchestrator: starting event loop")
	gcTicker := time.NewTicker(5 * time.Minute)
	defer gcTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-gcTicker.C:
			o.store.GC(now)
			o.graph.GC(now)
			if o.metrics != nil {
				o.metrics.StateAccounts.Set(float64(o.store.AccountCount()))
				o.metrics.ClusterComponents.Set(float64(o.graph.ComponentCount()))
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.processEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) processEvent(ctx context.Context, ev event.Event) {
	result := o.store.Ingest(ev)
	if result.Dropped {
		if o.metrics != nil {
			o.metrics.IncEventDropped(result.DropReason)
		}
		return
	}
	if o.metrics != nil {
		o.metrics.EventsTotal.Inc()
	}

	snap := o.store.Snapshot(ev.AccountID, ev.Timestamp)

	preView := o.graph.ViewFor(ev.AccountID, ev.Timestamp)
	signals := o.runWorkers(ctx, snap, worker.ClusterContext(preView))

	pivots := o.buildPivots(ev, snap)
	o.graph.Update(ev, pivots, o.cfg.PivotWeights)

	clusterSize := o.graph.ComponentSize(ev.AccountID)
	clusterID := o.graph.ClusterID(ev.AccountID)

	res := fusion.Fuse(ev.AccountID, signals, o.cfg.WorkerWeights, o.cfg.IsRestricted(ev.CountryCode),
		o.cfg.GeoUpliftFactor, clusterSize, clusterID, o.cfg.TierThresholds)

	if o.metrics != nil {
		o.metrics.IncAlert(string(res.Tier))
		o.metrics.CompositeScoreBucket.Observe(res.CompositeScore)
	}

	o.resultsMu.Lock()
	o.results[ev.AccountID] = res
	o.resultsMu.Unlock()

	var bundle *dispatcher.IOCBundleInput
	if res.Action == fusion.ActionClusterTakedown {
		bundle = o.buildIOCBundle(ev.AccountID, clusterID, ev.Timestamp)
	}
	if o.dispatch != nil {
		o.dispatch.Dispatch(res, ev.Timestamp, bundle)
	}
}

// runWorkers fans out every registered worker concurrently and waits
// for the full set, cancelling (and scoring 0) any that exceed the
// per-event budget (spec.md §5).
func (o *Orchestrator) runWorkers(ctx context.Context, snap store.Snapshot, cc worker.ClusterContext) []worker.DetectionSignal {
	budget := time.Duration(o.cfg.WorkerBudgetMS) * time.Millisecond
	wctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	signals := make([]worker.DetectionSignal, len(o.workers))
	g, _ := errgroup.WithContext(ctx)
	for i, w := range o.workers {
		i, w := i, w
		g.Go(func() error {
			done := make(chan worker.DetectionSignal, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- worker.ErrorSignal(w.Kind())
					}
				}()
				done <- w.Analyze(snap, cc)
			}()
			select {
			case sig := <-done:
				signals[i] = sig
				if o.metrics != nil {
					o.metrics.IncWorkerSignal(string(w.Kind()))
				}
			case <-wctx.Done():
				signals[i] = worker.ErrorSignal(w.Kind())
				if o.metrics != nil {
					o.metrics.IncWorkerTimeout(string(w.Kind()))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return signals
}

// buildPivots reads this account's current top value per pivot
// attribute from the snapshot and looks up each value's peer arrival
// times, for the Hydra graph's Update.
func (o *Orchestrator) buildPivots(ev event.Event, snap store.Snapshot) []clusterer.PivotAttribute {
	pivots := make([]clusterer.PivotAttribute, 0, 6)
	add := func(attr clusterer.Attribute, storeAttr store.Attribute, value string) {
		if value == "" {
			return
		}
		peers := o.store.PeerTimestamps(storeAttr, value, ev.Timestamp)
		pivots = append(pivots, clusterer.PivotAttribute{Attr: attr, Value: value, Strength: 1.0, Peers: peers})
	}
	add(clusterer.AttrSubnet24, store.AttrSubnet24, snap.TopSubnet)
	add(clusterer.AttrPaymentHash, store.AttrPaymentHash, snap.TopPaymentHash)
	add(clusterer.AttrJA3, store.AttrJA3, snap.TopJA3)
	add(clusterer.AttrJA3S, store.AttrJA3S, snap.TopJA3S)
	add(clusterer.AttrH2SettingsHash, store.AttrH2SettingsHash, snap.TopH2SettingsHash)
	add(clusterer.AttrSystemPromptHash, store.AttrSystemPromptHash, snap.TopSystemPromptHash)
	return pivots
}

// buildIOCBundle assembles the cluster-wide payload for a Critical
// cluster takedown from every member's own snapshot (spec.md §4.7).
func (o *Orchestrator) buildIOCBundle(accountID string, clusterID uint64, now time.Time) *dispatcher.IOCBundleInput {
	members := o.graph.ComponentMembers(accountID)
	if len(members) == 0 {
		return nil
	}
	bundle := &dispatcher.IOCBundleInput{ClusterID: clusterID, Provider: "default"}
	for _, m := range members {
		snap := o.store.Snapshot(m, now)
		day := snap.TwentyFourHour
		member := dispatcher.MemberIOC{
			AccountIDHash:    hashAccountID(m),
			IPs:              nil, // IPs aren't retained past subnet derivation (spec.md §3 privacy note)
			Subnets:          day.DistinctSubnets.Values(),
			JA3:              []string{snap.TopJA3},
			JA3S:             []string{snap.TopJA3S},
			H2SettingsHashes: []string{snap.TopH2SettingsHash},
			PaymentHashes:    day.DistinctPaymentHashes.Values(),
			FirstSeen:        day.First,
			LastSeen:         day.Last,
		}
		if day.CanaryMatches > 0 {
			member.WatermarkTokens = []string{"canary_token"}
		}
		bundle.Members = append(bundle.Members, member)
	}
	return bundle
}

func hashAccountID(accountID string) string {
	return fmt.Sprintf("acct_%x", xxhash.Sum64String(accountID))
}
