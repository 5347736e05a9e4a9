// Package config loads the immutable runtime configuration: worker fusion
// weights, tier thresholds, geo uplift, cluster-floor parameters, and the
// versioned signature data file (archetype/topic centroids, JA3 family
// tables, CoT lexicon). It is loaded once at startup per spec.md §9
// ("Global mutable configuration") and shared by reference; reloads are
// out of scope.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DataFileVersion is the signature-data schema this binary was built
// against. A mismatched version in the loaded data file is fatal at
// startup (spec.md §9, Open Question a).
const DataFileVersion = "2026.1"

// WorkerWeights is the fixed fusion weight table of spec.md §4.2. The sum
// must equal 1.0 exactly in the fixed-precision sense of §8.1.
type WorkerWeights struct {
	Fingerprint    float64 `yaml:"fingerprint"`
	Velocity       float64 `yaml:"velocity"`
	CoT            float64 `yaml:"cot"`
	Embed          float64 `yaml:"embed"`
	Hydra          float64 `yaml:"hydra"`
	TimingCluster  float64 `yaml:"timing_cluster"`
	ASNClassifier  float64 `yaml:"asn_classifier"`
	H2GRPC         float64 `yaml:"h2_grpc"`
	RolePreamble   float64 `yaml:"role_preamble"`
	Pivot          float64 `yaml:"pivot"`
	Biometric      float64 `yaml:"biometric"`
	Watermark      float64 `yaml:"watermark"`
	SessionGap     float64 `yaml:"session_gap"`
	TokenBudget    float64 `yaml:"token_budget"`
	RefusalProbe   float64 `yaml:"refusal_probe"`
	SequenceModel  float64 `yaml:"sequence_model"`
}

// DefaultWeights returns the table from spec.md §4.2.
func DefaultWeights() WorkerWeights {
	return WorkerWeights{
		Fingerprint:   0.14,
		Velocity:      0.10,
		CoT:           0.09,
		Embed:         0.08,
		Hydra:         0.08,
		TimingCluster: 0.07,
		ASNClassifier: 0.07,
		H2GRPC:        0.06,
		RolePreamble:  0.06,
		Pivot:         0.05,
		Biometric:     0.05,
		Watermark:     0.04,
		SessionGap:    0.04,
		TokenBudget:   0.03,
		RefusalProbe:  0.02,
		SequenceModel: 0.02,
	}
}

// Sum returns the sum of all weights. Tested against 1/10000 precision
// per spec.md §8.1.
func (w WorkerWeights) Sum() float64 {
	return w.Fingerprint + w.Velocity + w.CoT + w.Embed + w.Hydra +
		w.TimingCluster + w.ASNClassifier + w.H2GRPC + w.RolePreamble +
		w.Pivot + w.Biometric + w.Watermark + w.SessionGap + w.TokenBudget +
		w.RefusalProbe + w.SequenceModel
}

// PivotWeights are the per-attribute Hydra edge weights of spec.md §4.5.
type PivotWeights struct {
	Subnet24         float64 `yaml:"subnet_24"`
	PaymentHash      float64 `yaml:"payment_hash"`
	JA3              float64 `yaml:"ja3"`
	JA3S             float64 `yaml:"ja3s"`
	H2SettingsHash   float64 `yaml:"h2_settings_hash"`
	SystemPromptHash float64 `yaml:"system_prompt_hash"`
}

func DefaultPivotWeights() PivotWeights {
	return PivotWeights{
		Subnet24:         0.25,
		PaymentHash:      0.30,
		JA3:              0.15,
		JA3S:             0.10,
		H2SettingsHash:   0.10,
		SystemPromptHash: 0.10,
	}
}

// Tier thresholds, closed-lower, per spec.md §4.6.
type TierThresholds struct {
	Low      float64 `yaml:"low"`
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

func DefaultTierThresholds() TierThresholds {
	return TierThresholds{Low: 0.35, Medium: 0.52, High: 0.72, Critical: 0.85}
}

// Config is the immutable, process-wide configuration value.
type Config struct {
	WorkerWeights       WorkerWeights   `yaml:"worker_weights"`
	PivotWeights        PivotWeights    `yaml:"pivot_weights"`
	TierThresholds      TierThresholds  `yaml:"tier_thresholds"`
	RestrictedCountries []string        `yaml:"restricted_countries"`
	GeoUpliftFactor     float64         `yaml:"geo_uplift_factor"`
	EdgeDropThreshold   float64         `yaml:"edge_drop_threshold"`
	ComponentThreshold  float64         `yaml:"component_threshold"`
	HydraSaturation     float64         `yaml:"hydra_saturation"`
	WorkerBudgetMS      int             `yaml:"worker_budget_ms"`
	AccountCap          int             `yaml:"account_cap"`
	DispatcherHMACKeys  map[string]string `yaml:"dispatcher_hmac_keys"`
	DataFilePath        string          `yaml:"data_file"`

	restrictedSet map[string]bool
}

// Default returns the built-in configuration used when no config file is
// supplied (and as the base a file is merged onto).
func Default() *Config {
	c := &Config{
		WorkerWeights:      DefaultWeights(),
		PivotWeights:       DefaultPivotWeights(),
		TierThresholds:     DefaultTierThresholds(),
		GeoUpliftFactor:    1.15,
		EdgeDropThreshold:  0.20,
		ComponentThreshold: 0.50,
		HydraSaturation:    20,
		WorkerBudgetMS:     25,
		AccountCap:         250_000,
		DispatcherHMACKeys: map[string]string{"default": "glasswally-dev-signing-key"},
	}
	c.finalize()
	return c
}

// Load reads a YAML config file and overlays it onto Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.finalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

func (c *Config) finalize() {
	c.restrictedSet = make(map[string]bool, len(c.RestrictedCountries))
	for _, cc := range c.RestrictedCountries {
		c.restrictedSet[cc] = true
	}
}

// IsRestricted reports whether a country code is in the geo-uplift set.
func (c *Config) IsRestricted(countryCode string) bool {
	return c.restrictedSet[countryCode]
}

// Validate enforces the ConfigInvalid conditions of spec.md §7(f): a
// malformed configuration is fatal at startup, not recovered in-process.
func (c *Config) Validate() error {
	sum := c.WorkerWeights.Sum()
	if diff := sum - 1.0; diff < -0.0001 || diff > 0.0001 {
		return fmt.Errorf("worker weights sum to %.6f, want 1.0 (+/- 1e-4)", sum)
	}
	if c.GeoUpliftFactor < 1.0 {
		return fmt.Errorf("geo_uplift_factor must be >= 1.0, got %f", c.GeoUpliftFactor)
	}
	if c.WorkerBudgetMS <= 0 {
		return fmt.Errorf("worker_budget_ms must be positive, got %d", c.WorkerBudgetMS)
	}
	t := c.TierThresholds
	if !(0 < t.Low && t.Low < t.Medium && t.Medium < t.High && t.High < t.Critical && t.Critical <= 1.0) {
		return fmt.Errorf("tier thresholds must be strictly increasing in (0,1]: %+v", t)
	}
	return nil
}
