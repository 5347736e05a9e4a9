package dispatcher

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/glasswally/glasswally/internal/fusion"
)

type stubRecorder struct{ calls int }

func (s *stubRecorder) RecordEnforcement(accountID string, at time.Time) { s.calls++ }

type stubMetrics struct{ counts map[string]int }

func (m *stubMetrics) IncEmission(sink string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[sink]++
}

func newTestDispatcher(t *testing.T, rec EnforcementRecorder, m MetricsSink) (*Dispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	d, err := New(dir, map[string]string{"default": "test-key"}, rec, m, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, dir
}

func TestDispatchLowGoesToAnalystQueue(t *testing.T) {
	d, dir := newTestDispatcher(t, nil, nil)
	res := fusion.Result{AccountID: "a1", CompositeScore: 0.4, Tier: fusion.TierLow, Action: fusion.ActionFlagForReview}
	d.Dispatch(res, time.Now(), nil)

	data, err := os.ReadFile(filepath.Join(dir, "analyst_queue.jsonl"))
	if err != nil || len(data) == 0 {
		t.Fatalf("expected a line in analyst_queue.jsonl, err=%v data=%q", err, data)
	}
}

func TestDispatchIdempotenceSuppressesDuplicateTier(t *testing.T) {
	d, dir := newTestDispatcher(t, nil, nil)
	res := fusion.Result{AccountID: "a2", CompositeScore: 0.6, Tier: fusion.TierMedium, Action: fusion.ActionRateLimit}
	now := time.Now()
	d.Dispatch(res, now, nil)
	d.Dispatch(res, now.Add(time.Minute), nil) // same tier, same cluster, within the hour: suppressed

	data, err := os.ReadFile(filepath.Join(dir, "rate_limit_commands.jsonl"))
	if err != nil {
		t.Fatalf("read rate_limit_commands: %v", err)
	}
	if n := countLines(data); n != 1 {
		t.Fatalf("rate_limit_commands lines = %d, want 1 (second emission suppressed)", n)
	}
}

func TestDispatchIdempotenceReemitsAfterTierChange(t *testing.T) {
	d, dir := newTestDispatcher(t, nil, nil)
	now := time.Now()
	d.Dispatch(fusion.Result{AccountID: "a3", CompositeScore: 0.6, Tier: fusion.TierMedium, Action: fusion.ActionRateLimit}, now, nil)
	d.Dispatch(fusion.Result{AccountID: "a3", CompositeScore: 0.9, Tier: fusion.TierCritical, Action: fusion.ActionSuspendAccount}, now.Add(time.Minute), nil)

	data, err := os.ReadFile(filepath.Join(dir, "enforcement_actions.jsonl"))
	if err != nil || len(data) == 0 {
		t.Fatalf("expected enforcement_actions line after tier change, err=%v", err)
	}
}

func TestDispatchCriticalClusterTakedownRecordsEnforcementAndSignsBundle(t *testing.T) {
	rec := &stubRecorder{}
	m := &stubMetrics{}
	d, dir := newTestDispatcher(t, rec, m)

	res := fusion.Result{AccountID: "a4", CompositeScore: 0.95, Tier: fusion.TierCritical, Action: fusion.ActionClusterTakedown, ClusterID: 42}
	bundle := &IOCBundleInput{ClusterID: 42, Provider: "default", Members: []MemberIOC{
		{AccountIDHash: "h1", Subnets: []string{"203.0.113.0/24"}},
		{AccountIDHash: "h2", Subnets: []string{"203.0.113.0/24"}},
	}}
	d.Dispatch(res, time.Now(), bundle)

	if rec.calls != 1 {
		t.Fatalf("RecordEnforcement calls = %d, want 1", rec.calls)
	}

	data, err := os.ReadFile(filepath.Join(dir, "ioc_bundles.jsonl"))
	if err != nil || len(data) == 0 {
		t.Fatalf("expected an ioc_bundles line, err=%v", err)
	}
	var rec2 iocBundleRecord
	if err := json.Unmarshal(trimNewline(data), &rec2); err != nil {
		t.Fatalf("unmarshal ioc bundle record: %v", err)
	}
	if rec2.Signature == "" {
		t.Fatal("expected a non-empty HMAC signature")
	}
	if len(rec2.Members) != 2 {
		t.Fatalf("Members = %d, want 2", len(rec2.Members))
	}
	if m.counts["ioc_bundles"] != 1 {
		t.Fatalf("ioc_bundles emission metric = %d, want 1", m.counts["ioc_bundles"])
	}
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}

func trimNewline(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\n' {
		return data[:len(data)-1]
	}
	return data
}
