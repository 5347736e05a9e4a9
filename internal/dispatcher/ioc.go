package dispatcher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MemberIOC is one cluster member's contribution to an IOC bundle.
type MemberIOC struct {
	AccountIDHash    string    `json:"account_id_hash"`
	IPs              []string  `json:"ips"`
	Subnets          []string  `json:"subnets"`
	JA3              []string  `json:"ja3"`
	JA3S             []string  `json:"ja3s"`
	H2SettingsHashes []string  `json:"h2_settings_hashes"`
	PaymentHashes    []string  `json:"payment_hashes"`
	WatermarkTokens  []string  `json:"watermark_tokens,omitempty"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
}

// IOCBundleInput is what the orchestrator assembles from the Hydra
// graph's component membership and the state store's per-account
// window data for a Critical cluster takedown.
type IOCBundleInput struct {
	ClusterID uint64
	Provider  string // selects the signing key from DispatcherHMACKeys
	Members   []MemberIOC
}

// iocBundleBody is the canonicalized (fixed field order, no signature)
// payload that gets HMAC-signed.
type iocBundleBody struct {
	Timestamp time.Time   `json:"timestamp"`
	ClusterID uint64      `json:"cluster_id"`
	Members   []MemberIOC `json:"members"`
}

// iocBundleRecord is the signed record written to ioc_bundles.jsonl. Of
// the auditRecord envelope it carries only tier, action and
// cluster_size, plus timestamp through iocBundleBody; it has no
// account_id, composite_score or evidence fields.
type iocBundleRecord struct {
	BundleID    string `json:"bundle_id"`
	Tier        string `json:"tier"`
	Action      string `json:"action"`
	ClusterSize int    `json:"cluster_size"`
	iocBundleBody
	Signature string `json:"hmac_sha256"`
}

// emitIOCBundle canonicalizes, signs, and writes the IOC bundle for a
// cluster takedown (spec.md §4.7).
func (d *Dispatcher) emitIOCBundle(in IOCBundleInput, at time.Time) {
	body := iocBundleBody{Timestamp: at, ClusterID: in.ClusterID, Members: in.Members}
	canonical, err := json.Marshal(body)
	if err != nil {
		d.log.Error().Err(err).Msg("dispatcher: ioc bundle marshal failed")
		return
	}

	key, ok := d.hmacKeys[in.Provider]
	if !ok {
		key = d.hmacKeys["default"]
	}
	sig := signHMAC(canonical, key)

	rec := iocBundleRecord{
		BundleID:      uuid.NewString(),
		Tier:          "Critical",
		Action:        "ClusterTakedown",
		ClusterSize:   len(in.Members),
		iocBundleBody: body,
		Signature:     sig,
	}
	d.writeLine(SinkIOCBundles, rec)
}

func signHMAC(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
