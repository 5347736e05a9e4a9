// Package event defines the normalized per-request telemetry record that
// drives the rest of the pipeline, and the enumerations derived from it.
package event

import "time"

// ASNClass classifies the network origin of a request.
type ASNClass string

const (
	ASNResidential ASNClass = "residential"
	ASNDatacenter  ASNClass = "datacenter"
	ASNMobile      ASNClass = "mobile"
	ASNTor         ASNClass = "tor"
	ASNUnknown     ASNClass = "unknown"
)

// Topic is one of the twelve enumerated capability buckets a prompt is
// assigned to by nearest-centroid lookup (see internal/signature).
type Topic int

const (
	TopicUnknown Topic = iota
	TopicCodeGen
	TopicMathReasoning
	TopicCreativeWriting
	TopicSummarization
	TopicTranslation
	TopicQA
	TopicRolePlay
	TopicToolUse
	TopicDataAnalysis
	TopicLegalFinance
	TopicMedical
	TopicOther
	NumTopics // sentinel, not a real bucket
)

// RefusalCategory enumerates why a model declined a request, when known.
type RefusalCategory string

const (
	RefusalNone      RefusalCategory = ""
	RefusalPolicy    RefusalCategory = "policy"
	RefusalSafety    RefusalCategory = "safety"
	RefusalCapacity  RefusalCategory = "capacity"
	RefusalUnclear   RefusalCategory = "unclear_request"
	RefusalOther     RefusalCategory = "other"
)

// Event is the immutable unit of ingest: one record per LLM request.
type Event struct {
	EventID      uint64    `json:"event_id"`
	Timestamp    time.Time `json:"timestamp"`
	AccountID    string    `json:"account_id"`
	IPAddress    string    `json:"ip_address"`
	Subnet24     string    `json:"subnet_24"`
	CountryCode  string    `json:"country_code,omitempty"`
	ASN          string    `json:"asn,omitempty"`
	ASNClass     ASNClass  `json:"asn_class"`
	UserAgent    string    `json:"user_agent"`
	Model        string    `json:"model,omitempty"`
	JA3          string    `json:"ja3"`
	JA3S         string    `json:"ja3s"`
	HeaderOrderHash   string `json:"header_order_hash"`
	H2SettingsHash    string `json:"h2_settings_hash"`
	GRPC              bool   `json:"grpc"`
	H2InitialWindowSizeBytes int `json:"h2_initial_window_size_bytes,omitempty"`
	PaymentHash       string `json:"payment_hash"`
	PromptLenTokens      int `json:"prompt_len_tokens"`
	MaxTokensRequested   int `json:"max_tokens_requested"`
	SystemPromptHash     string `json:"system_prompt_hash"`
	PromptTopic          Topic  `json:"prompt_topic"`
	PromptStructuralHash string `json:"prompt_structural_hash"`
	PromptEmbedding      []float32 `json:"prompt_embedding,omitempty"`
	ZWCharFlag           bool   `json:"zw_char_flag"`
	CanaryTokenMatch     bool   `json:"canary_token_match"`
	RefusalCategory      RefusalCategory `json:"refusal_category,omitempty"`

	// PromptText is never persisted past topic/embedding/hash derivation;
	// input adapters populate it transiently so internal/signature can
	// compute PromptTopic, PromptEmbedding, and PromptStructuralHash, but
	// it must not be stored on the Event that reaches the state store.
	PromptText string `json:"-"`

	// SystemPromptText is likewise transient: only its hash and a derived
	// compound-preamble match flag reach the state store.
	SystemPromptText string `json:"-"`
}

// EmbeddingDim is the fixed length of Event.PromptEmbedding.
const EmbeddingDim = 512

// RestrictedCountries is overridden by config; this is only the
// zero-value fallback used when no config is loaded (e.g. in tests).
var RestrictedCountries = map[string]bool{}
