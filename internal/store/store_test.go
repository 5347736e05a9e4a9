package store

import (
	"testing"
	"time"

	"github.com/glasswally/glasswally/internal/event"
	"github.com/glasswally/glasswally/internal/signature"
)

func testEvent(accountID string, ts time.Time) event.Event {
	return event.Event{
		Timestamp:   ts,
		AccountID:   accountID,
		Subnet24:    "203.0.113.0/24",
		PaymentHash: "pay-abc",
		JA3:         "ja3-x",
		JA3S:        "ja3s-x",
		PromptLenTokens:    100,
		MaxTokensRequested: 256,
	}
}

func TestIngestThenSnapshotSeesEvent(t *testing.T) {
	s := New(4, 1000, signature.Builtin())
	now := time.Now()
	res := s.Ingest(testEvent("acct-a", now))
	if res.Dropped {
		t.Fatalf("unexpected drop: %s", res.DropReason)
	}

	snap := s.Snapshot("acct-a", now)
	if snap.OneHour.Count != 1 {
		t.Fatalf("OneHour.Count = %d, want 1", snap.OneHour.Count)
	}
	if snap.TopSubnet != "203.0.113.0/24" {
		t.Fatalf("TopSubnet = %q, want the ingested subnet", snap.TopSubnet)
	}
}

func TestIngestOutOfOrderDropped(t *testing.T) {
	s := New(4, 1000, signature.Builtin())
	now := time.Now()
	if res := s.Ingest(testEvent("acct-b", now)); res.Dropped {
		t.Fatalf("first event unexpectedly dropped: %s", res.DropReason)
	}
	res := s.Ingest(testEvent("acct-b", now.Add(-time.Minute)))
	if !res.Dropped || res.DropReason != "out_of_order" {
		t.Fatalf("expected out_of_order drop, got %+v", res)
	}

	snap := s.Snapshot("acct-b", now)
	if snap.OneHour.Count != 1 {
		t.Fatalf("OneHour.Count = %d, want 1 (dropped event must not be counted)", snap.OneHour.Count)
	}
}

func TestCrossIndexSharesSubnetAcrossAccounts(t *testing.T) {
	s := New(4, 1000, signature.Builtin())
	now := time.Now()
	s.Ingest(testEvent("acct-c1", now))
	s.Ingest(testEvent("acct-c2", now))

	snap := s.Snapshot("acct-c1", now)
	peers := snap.SubnetPeers
	if _, ok := peers["acct-c2"]; !ok {
		t.Fatalf("expected acct-c2 among subnet peers, got %+v", peers)
	}
}

func TestGCDropsIdleAccounts(t *testing.T) {
	s := New(4, 1000, signature.Builtin())
	old := time.Now().Add(-48 * time.Hour)
	s.Ingest(testEvent("acct-d", old))
	if s.AccountCount() != 1 {
		t.Fatalf("AccountCount = %d, want 1 before GC", s.AccountCount())
	}

	s.GC(time.Now())
	if s.AccountCount() != 0 {
		t.Fatalf("AccountCount = %d, want 0 after GC of a stale account", s.AccountCount())
	}
}

func TestAccountCapEvictsLRU(t *testing.T) {
	s := New(4, 2, signature.Builtin())
	now := time.Now()
	s.Ingest(testEvent("acct-e1", now))
	s.Ingest(testEvent("acct-e2", now))
	s.Ingest(testEvent("acct-e3", now)) // should evict acct-e1 (least recently touched)

	if s.AccountCount() > 2 {
		t.Fatalf("AccountCount = %d, want <= 2 under a cap of 2", s.AccountCount())
	}
}
