package store

import (
	"time"

	"github.com/glasswally/glasswally/internal/event"
)

// Snapshot is the read-only view handed to every worker for one event. It
// is consistent up to the latest ingest completed before the call
// (spec.md §4.1) and never mutated once returned.
type Snapshot struct {
	AccountID string
	Now       time.Time

	FiveMinute WindowView
	OneHour    WindowView
	TwentyFourHour WindowView

	ThirtyDayCount int64

	InterArrivalMS []int64 // last up to 1024 deltas, chronological

	// Cross-account index lookups, keyed by this account's own current
	// top values for each pivot attribute (populated by the store at
	// snapshot time so workers never need to touch CrossIndex directly).
	SubnetPeers      map[string]int
	PaymentPeers     map[string]int
	JA3Peers         map[string]int
	JA3SPeers        map[string]int
	H2Peers          map[string]int
	SystemPromptPeers map[string]int
	HeaderOrderPeers map[string]int

	// Top values this account currently carries per pivot attribute, for
	// callers (the orchestrator, feeding the clusterer) that need to look
	// up peer arrival times rather than just occurrence counts.
	TopSubnet           string
	TopPaymentHash      string
	TopJA3              string
	TopJA3S             string
	TopH2SettingsHash   string
	TopSystemPromptHash string
	TopHeaderOrderHash  string
}

// MinHistory1h reports whether the account has at least n events in the
// 1h window, the default minimum history gate most workers use
// (spec.md §4.3: "Unless stated, min history is 5 events in the 1h window").
func (s Snapshot) MinHistory1h(n int) bool {
	return s.OneHour.Count >= n
}

func windowViewOrEmpty(v WindowView) WindowView {
	if v.RefusalCounts == nil {
		v.RefusalCounts = make(map[event.RefusalCategory]int)
	}
	if v.ASNClassCounts == nil {
		v.ASNClassCounts = make(map[event.ASNClass]int)
	}
	if v.CountryCodes == nil {
		v.CountryCodes = make(map[string]int)
	}
	return v
}
