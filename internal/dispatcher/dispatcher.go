// Package dispatcher routes fusion results to the five append-only
// sinks of spec.md §4.7, enforcing per-account idempotence and signing
// IOC bundles for Critical cluster takedowns.
package dispatcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glasswally/glasswally/internal/fusion"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink names one of the five output streams.
type Sink string

const (
	SinkAuditLog            Sink = "audit_log"
	SinkAnalystQueue        Sink = "analyst_queue"
	SinkRateLimitCommands   Sink = "rate_limit_commands"
	SinkEnforcementActions  Sink = "enforcement_actions"
	SinkIOCBundles          Sink = "ioc_bundles"
)

// idempotenceWindow is the "1 hour has elapsed" clause of spec.md §4.7.
const idempotenceWindow = time.Hour

// retryBackoffs are the SinkIO retry delays of spec.md §7(e). After the
// last attempt fails the dispatcher degrades: it logs and drops the
// record rather than blocking the pipeline.
var retryBackoffs = []time.Duration{50 * time.Millisecond, 250 * time.Millisecond, time.Second}

// lastEmission is what the idempotence check remembers per account.
type lastEmission struct {
	tier      fusion.Tier
	clusterID uint64
	at        time.Time
}

// EnforcementRecorder receives notice of enforcement actions, so the
// Hydra clusterer's pivot worker can later detect "model changed shortly
// after a cluster-mate's enforcement action" (spec.md §4.3).
type EnforcementRecorder interface {
	RecordEnforcement(accountID string, at time.Time)
}

// Dispatcher owns the five output sinks and the idempotence ledger.
type Dispatcher struct {
	log zerolog.Logger

	sinkMu sync.Mutex
	files  map[Sink]*os.File

	ledgerMu sync.Mutex
	ledger   map[string]lastEmission

	hmacKeys map[string]string

	enforcement EnforcementRecorder

	metrics MetricsSink
}

// MetricsSink is the subset of telemetry.Metrics the dispatcher updates.
// Defined locally to avoid an import cycle with telemetry's callers.
type MetricsSink interface {
	IncEmission(sink string)
}

// New opens (creating if absent) the five JSONL sink files under dir.
func New(dir string, hmacKeys map[string]string, enforcement EnforcementRecorder, metrics MetricsSink, log zerolog.Logger) (*Dispatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dispatcher: mkdir %s: %w", dir, err)
	}
	d := &Dispatcher{
		log:         log,
		files:       make(map[Sink]*os.File),
		ledger:      make(map[string]lastEmission),
		hmacKeys:    hmacKeys,
		enforcement: enforcement,
		metrics:     metrics,
	}
	names := map[Sink]string{
		SinkAuditLog:           "audit_log.jsonl",
		SinkAnalystQueue:       "analyst_queue.jsonl",
		SinkRateLimitCommands:  "rate_limit_commands.jsonl",
		SinkEnforcementActions: "enforcement_actions.jsonl",
		SinkIOCBundles:         "ioc_bundles.jsonl",
	}
	for sink, name := range names {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("dispatcher: open %s: %w", name, err)
		}
		d.files[sink] = f
	}
	return d, nil
}

// Close flushes and closes every sink file.
func (d *Dispatcher) Close() error {
	d.sinkMu.Lock()
	defer d.sinkMu.Unlock()
	var firstErr error
	for _, f := range d.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// auditRecord is the envelope of the audit_log, analyst_queue,
// rate_limit_commands and enforcement_actions lines; ioc_bundles lines
// use iocBundleRecord instead. RecordID lets an
// analyst or a downstream consumer correlate the same dispatch across
// audit_log and whichever tier-specific sink it was also written to.
type auditRecord struct {
	RecordID       string    `json:"record_id"`
	Timestamp      time.Time `json:"timestamp"`
	AccountID      string    `json:"account_id"`
	CompositeScore float64   `json:"composite_score"`
	Tier           string    `json:"tier"`
	Action         string    `json:"action"`
	Evidence       []string  `json:"evidence"`
	ClusterID      uint64    `json:"cluster_id,omitempty"`
	ClusterSize    int       `json:"cluster_size,omitempty"`
}

// Dispatch routes one fusion result to its sinks (always audit_log,
// plus the tier-specific sink) and, for a Critical cluster takedown,
// emits the signed IOC bundle.
func (d *Dispatcher) Dispatch(res fusion.Result, at time.Time, bundle *IOCBundleInput) {
	rec := auditRecord{
		RecordID:       uuid.NewString(),
		Timestamp:      at,
		AccountID:      res.AccountID,
		CompositeScore: res.CompositeScore,
		Tier:           string(res.Tier),
		Action:         string(res.Action),
		Evidence:       res.Evidence,
		ClusterID:      res.ClusterID,
		ClusterSize:    res.ClusterSize,
	}

	d.writeLine(SinkAuditLog, rec)

	if !d.shouldEmit(res, at) {
		return
	}

	switch res.Tier {
	case fusion.TierLow:
		d.writeLine(SinkAnalystQueue, rec)
	case fusion.TierMedium:
		d.writeLine(SinkRateLimitCommands, rec)
	case fusion.TierHigh:
		d.writeLine(SinkEnforcementActions, rec)
	case fusion.TierCritical:
		d.writeLine(SinkEnforcementActions, rec)
		if d.enforcement != nil {
			d.enforcement.RecordEnforcement(res.AccountID, at)
		}
		if res.Action == fusion.ActionClusterTakedown && bundle != nil {
			d.emitIOCBundle(*bundle, at)
		}
	}

	d.recordEmission(res, at)
}

// shouldEmit implements spec.md §4.7's idempotence clause: suppress a
// duplicate emission unless the tier changed, cluster membership
// changed, or the window elapsed.
func (d *Dispatcher) shouldEmit(res fusion.Result, at time.Time) bool {
	d.ledgerMu.Lock()
	defer d.ledgerMu.Unlock()
	prev, ok := d.ledger[res.AccountID]
	if !ok {
		return true
	}
	if prev.tier != res.Tier {
		return true
	}
	if prev.clusterID != res.ClusterID {
		return true
	}
	if at.Sub(prev.at) >= idempotenceWindow {
		return true
	}
	return false
}

func (d *Dispatcher) recordEmission(res fusion.Result, at time.Time) {
	d.ledgerMu.Lock()
	d.ledger[res.AccountID] = lastEmission{tier: res.Tier, clusterID: res.ClusterID, at: at}
	d.ledgerMu.Unlock()
}

// writeLine marshals v and appends it to sink, retrying with backoff on
// SinkIO error before degrading (log-and-drop) per spec.md §7(e).
func (d *Dispatcher) writeLine(sink Sink, v any) {
	line, err := json.Marshal(v)
	if err != nil {
		d.log.Error().Err(err).Str("sink", string(sink)).Msg("dispatcher: marshal failed")
		return
	}
	line = append(line, '\n')

	d.sinkMu.Lock()
	f := d.files[sink]
	d.sinkMu.Unlock()
	if f == nil {
		return
	}

	var writeErr error
	for attempt := 0; attempt <= len(retryBackoffs); attempt++ {
		d.sinkMu.Lock()
		_, writeErr = f.Write(line)
		if writeErr == nil {
			writeErr = f.Sync()
		}
		d.sinkMu.Unlock()
		if writeErr == nil {
			break
		}
		if attempt < len(retryBackoffs) {
			time.Sleep(retryBackoffs[attempt])
		}
	}
	if writeErr != nil {
		d.log.Error().Err(writeErr).Str("sink", string(sink)).Msg("dispatcher: degraded, dropping record")
		return
	}
	if d.metrics != nil {
		d.metrics.IncEmission(string(sink))
	}
}
