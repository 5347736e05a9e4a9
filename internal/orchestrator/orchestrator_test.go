package orchestrator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/glasswally/glasswally/internal/clusterer"
	"github.com/glasswally/glasswally/internal/config"
	"github.com/glasswally/glasswally/internal/dispatcher"
	"github.com/glasswally/glasswally/internal/event"
	"github.com/glasswally/glasswally/internal/signature"
	"github.com/glasswally/glasswally/internal/telemetry"
)

func testOrchestrator(t *testing.T) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	metrics := telemetry.NewMetrics(nil)
	log := zerolog.New(io.Discard)
	graph := clusterer.NewGraph(cfg.EdgeDropThreshold, cfg.ComponentThreshold)
	disp, err := dispatcher.New(filepath.Join(dir, "out"), cfg.DispatcherHMACKeys, graph, metrics, log)
	if err != nil {
		t.Fatalf("dispatcher.New: %v", err)
	}
	t.Cleanup(func() { disp.Close() })
	o := New(cfg, signature.Builtin(), graph, disp, metrics, log)
	return o, filepath.Join(dir, "out")
}

func baseEvent(accountID string, ts time.Time) event.Event {
	return event.Event{
		EventID:     1,
		Timestamp:   ts,
		AccountID:   accountID,
		IPAddress:   "203.0.113.5",
		Subnet24:    "203.0.113.0/24",
		CountryCode: "US",
		ASNClass:    event.ASNResidential,
		JA3:         "ja3-benign",
		JA3S:        "ja3s-benign",
		PromptLenTokens:    120,
		MaxTokensRequested: 512,
	}
}

// TestProcessEventWritesAuditRecord verifies that a single ordinary
// event produces a non-empty audit_log and no analyst_queue emission.
func TestProcessEventWritesAuditRecord(t *testing.T) {
	o, outDir := testOrchestrator(t)
	ev := baseEvent("acct-1", time.Now())

	o.processEvent(context.Background(), ev)

	data, err := os.ReadFile(filepath.Join(outDir, "audit_log.jsonl"))
	if err != nil {
		t.Fatalf("read audit_log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected a non-empty audit_log after one event")
	}

	if data, err := os.ReadFile(filepath.Join(outDir, "analyst_queue.jsonl")); err == nil && len(data) != 0 {
		t.Fatalf("expected no analyst_queue emission for a benign event, got %q", data)
	}
}

// TestProcessEventOutOfOrderDropped verifies a stale event is dropped
// and never reaches the dispatcher.
func TestProcessEventOutOfOrderDropped(t *testing.T) {
	o, outDir := testOrchestrator(t)
	now := time.Now()
	o.processEvent(context.Background(), baseEvent("acct-2", now))
	o.processEvent(context.Background(), baseEvent("acct-2", now.Add(-time.Hour)))

	data, err := os.ReadFile(filepath.Join(outDir, "audit_log.jsonl"))
	if err != nil {
		t.Fatalf("read audit_log: %v", err)
	}
	lines := countLines(data)
	if lines != 1 {
		t.Fatalf("expected 1 audit_log line (the out-of-order event dropped), got %d", lines)
	}
}

// TestRunDrainsChannelOnClose verifies Run returns once the input
// channel is closed, without needing context cancellation.
func TestRunDrainsChannelOnClose(t *testing.T) {
	o, _ := testOrchestrator(t)
	events := make(chan event.Event, 4)
	events <- baseEvent("acct-3", time.Now())
	close(events)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), events) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after channel close")
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
