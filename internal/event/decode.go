package event

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"unicode/utf8"
)

// wireEvent mirrors Event's JSON shape but keeps timestamp as a string so
// we can parse millisecond-precision UTC timestamps the way input adapters
// actually emit them, and keeps prompt_topic as a raw int.
type wireEvent struct {
	EventID              uint64   `json:"event_id"`
	Timestamp            string   `json:"timestamp"`
	AccountID            string   `json:"account_id"`
	IPAddress            string   `json:"ip_address"`
	Subnet24             string   `json:"subnet_24"`
	CountryCode          string   `json:"country_code"`
	ASN                  string   `json:"asn"`
	ASNClass             string   `json:"asn_class"`
	UserAgent            string   `json:"user_agent"`
	Model                string   `json:"model"`
	JA3                  string   `json:"ja3"`
	JA3S                 string   `json:"ja3s"`
	HeaderOrderHash      string   `json:"header_order_hash"`
	H2SettingsHash       string   `json:"h2_settings_hash"`
	GRPC                 bool     `json:"grpc"`
	H2InitialWindowSizeBytes int  `json:"h2_initial_window_size_bytes"`
	PaymentHash          string   `json:"payment_hash"`
	PromptLenTokens      int      `json:"prompt_len_tokens"`
	MaxTokensRequested   int      `json:"max_tokens_requested"`
	SystemPromptHash     string   `json:"system_prompt_hash"`
	PromptTopic          int      `json:"prompt_topic"`
	PromptStructuralHash string   `json:"prompt_structural_hash"`
	PromptEmbedding      []float32 `json:"prompt_embedding"`
	ZWCharFlag           bool     `json:"zw_char_flag"`
	CanaryTokenMatch     bool     `json:"canary_token_match"`
	RefusalCategory      string   `json:"refusal_category"`
	PromptText           string   `json:"prompt_text"`
	SystemPromptText     string   `json:"system_prompt_text"`
}

// DecodeError wraps a single malformed line; skipped lines are counted by
// the caller under the InputParse error kind (spec.md §7).
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeJSONL reads one JSON object per line (snake_case keys, unknown keys
// ignored, missing keys default to zero value). Invalid UTF-8 or JSON lines
// are reported via onSkip instead of aborting the stream.
func DecodeJSONL(r io.Reader, onEvent func(Event), onSkip func(line int, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		if !utf8.ValidString(line) {
			if onSkip != nil {
				onSkip(lineNo, &DecodeError{Line: lineNo, Err: errInvalidUTF8})
			}
			continue
		}

		var w wireEvent
		if err := json.Unmarshal([]byte(line), &w); err != nil {
			if onSkip != nil {
				onSkip(lineNo, &DecodeError{Line: lineNo, Err: err})
			}
			continue
		}

		ev, err := fromWire(w)
		if err != nil {
			if onSkip != nil {
				onSkip(lineNo, &DecodeError{Line: lineNo, Err: err})
			}
			continue
		}
		onEvent(ev)
	}
	return scanner.Err()
}

func fromWire(w wireEvent) (Event, error) {
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return Event{}, err
	}
	ev := Event{
		EventID:              w.EventID,
		Timestamp:            ts,
		AccountID:            w.AccountID,
		IPAddress:            w.IPAddress,
		Subnet24:             w.Subnet24,
		CountryCode:          strings.ToUpper(w.CountryCode),
		ASN:                  w.ASN,
		ASNClass:             normalizeASNClass(w.ASNClass),
		UserAgent:            w.UserAgent,
		Model:                w.Model,
		JA3:                  w.JA3,
		JA3S:                 w.JA3S,
		HeaderOrderHash:      w.HeaderOrderHash,
		H2SettingsHash:       w.H2SettingsHash,
		GRPC:                 w.GRPC,
		H2InitialWindowSizeBytes: w.H2InitialWindowSizeBytes,
		PaymentHash:          w.PaymentHash,
		PromptLenTokens:      w.PromptLenTokens,
		MaxTokensRequested:   w.MaxTokensRequested,
		SystemPromptHash:     w.SystemPromptHash,
		PromptStructuralHash: w.PromptStructuralHash,
		PromptEmbedding:      w.PromptEmbedding,
		ZWCharFlag:           w.ZWCharFlag,
		CanaryTokenMatch:     w.CanaryTokenMatch,
		RefusalCategory:      RefusalCategory(w.RefusalCategory),
		PromptText:           w.PromptText,
		SystemPromptText:     w.SystemPromptText,
	}
	if ev.Subnet24 == "" && ev.IPAddress != "" {
		ev.Subnet24 = deriveSubnet24(ev.IPAddress)
	}
	if w.PromptTopic > 0 && w.PromptTopic < int(NumTopics) {
		ev.PromptTopic = Topic(w.PromptTopic)
	}
	return ev, nil
}

func normalizeASNClass(s string) ASNClass {
	switch ASNClass(s) {
	case ASNResidential, ASNDatacenter, ASNMobile, ASNTor:
		return ASNClass(s)
	default:
		return ASNUnknown
	}
}

// deriveSubnet24 truncates an IPv4 dotted-quad to its /24. Non-IPv4
// addresses (including malformed input) are returned unchanged — callers
// treat an unparsed subnet as a low-confidence pivot, never a fatal error.
func deriveSubnet24(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}
	return parts[0] + "." + parts[1] + "." + parts[2] + ".0/24"
}
