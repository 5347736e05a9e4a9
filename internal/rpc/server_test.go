package rpc

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/glasswally/glasswally/internal/fusion"
)

type stubProvider struct {
	results map[string]fusion.Result
}

func (s stubProvider) AccountStatus(accountID string) (fusion.Result, bool) {
	res, ok := s.results[accountID]
	return res, ok
}

func TestHandleAccountUnknownReturnsOK(t *testing.T) {
	s := NewServer(":0", stubProvider{results: map[string]fusion.Result{}}, zerolog.New(io.Discard))
	req := httptest.NewRequest("GET", "/accounts/unknown-acct", nil)
	rr := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rr, req)

	var resp accountStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("Status = %q, want ok for an unknown account", resp.Status)
	}
}

func TestHandleAccountKnownMapsMediumToRateLimited(t *testing.T) {
	results := map[string]fusion.Result{
		"acct-1": {AccountID: "acct-1", CompositeScore: 0.6, Tier: fusion.TierMedium, Evidence: []string{"velocity: 0.40"}},
	}
	s := NewServer(":0", stubProvider{results: results}, zerolog.New(io.Discard))
	req := httptest.NewRequest("GET", "/accounts/acct-1", nil)
	rr := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rr, req)

	var resp accountStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "rate_limited" {
		t.Fatalf("Status = %q, want rate_limited", resp.Status)
	}
	if resp.CompositeScore != 0.6 {
		t.Fatalf("CompositeScore = %v, want 0.6", resp.CompositeScore)
	}
}
