// Package rpc serves the account-query adapter of spec.md §6 — lookups
// an operator or a cluster-mate service issues against an account's most
// recent fusion result. spec.md lists this as a gRPC service, but
// nothing in the dependency pack imports grpc-go or protoc-gen-go, so
// this is a plain net/http+encoding/json endpoint exposing the same
// query instead of introducing an ungrounded dependency (see DESIGN.md).
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/glasswally/glasswally/internal/fusion"
)

// StatusProvider is satisfied by *orchestrator.Orchestrator.
type StatusProvider interface {
	AccountStatus(accountID string) (fusion.Result, bool)
}

// Server exposes GET /accounts/{account_id} returning the account's most
// recent fusion result.
type Server struct {
	addr string
	orch StatusProvider
	log  zerolog.Logger
	http *http.Server
}

func NewServer(addr string, orch StatusProvider, log zerolog.Logger) *Server {
	s := &Server{addr: addr, orch: orch, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/", s.handleAccount)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.addr).Msg("rpc: account-query endpoint listening")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// accountStatusResponse is the account-query RPC contract of spec.md
// §6: {account_id, status, composite_score, evidence[]}, derived
// directly from the last fusion result; unknown accounts report "ok".
type accountStatusResponse struct {
	AccountID      string   `json:"account_id"`
	Status         string   `json:"status"`
	CompositeScore float64  `json:"composite_score"`
	Evidence       []string `json:"evidence,omitempty"`
}

// statusForTier maps a fusion tier to the account-query status
// enumeration of spec.md §6, which is coarser than the five fusion
// tiers (no distinct "critical" status is named there).
func statusForTier(t fusion.Tier) string {
	switch t {
	case fusion.TierLow:
		return "watch"
	case fusion.TierMedium:
		return "rate_limited"
	case fusion.TierHigh, fusion.TierCritical:
		return "suspended"
	default:
		return "ok"
	}
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	accountID := strings.TrimPrefix(r.URL.Path, "/accounts/")
	if accountID == "" {
		http.Error(w, "missing account_id", http.StatusBadRequest)
		return
	}

	res, ok := s.orch.AccountStatus(accountID)
	resp := accountStatusResponse{AccountID: accountID, Status: "ok"}
	if ok {
		resp.Status = statusForTier(res.Tier)
		resp.CompositeScore = res.CompositeScore
		resp.Evidence = res.Evidence
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
