package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full configuration for one piigate instance.
// It is parsed once at startup (and again on every hot reload), validated,
// and then compiled into an immutable engine snapshot. The raw Config is
// never consulted on the hot path.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Redis     RedisConfig           `yaml:"redis"`
	Pipeline  PipelineConfig        `yaml:"pipeline"`
	Detectors []DetectorRule        `yaml:"detectors"`
	Policies  map[string]PolicyRule `yaml:"policies"`
	Audit     AuditConfig           `yaml:"audit"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"` // PubSub channel for reload signals
	Key      string `yaml:"key"`     // key holding the config document
}

// FallbackPolicy selects the fail-closed action taken when an invocation
// degrades (budget exceeded, decode failure, internal error).
type FallbackPolicy string

const (
	// FallbackReject refuses the request outright.
	FallbackReject FallbackPolicy = "reject"
	// FallbackRedactAll forwards a conservatively redacted payload with
	// every string leaf masked.
	FallbackRedactAll FallbackPolicy = "redact_all"
)

type PipelineConfig struct {
	LatencyBudgetMS   int            `yaml:"latency_budget_ms"`
	Fallback          FallbackPolicy `yaml:"fallback_policy"`
	FallbackStatus    int            `yaml:"fallback_status"`
	MaxStructureDepth int            `yaml:"max_structure_depth"`

	// RiskThreshold is the combinatorial trigger: when the summed weights
	// of distinct weak PII types present in one document reach it, every
	// participating weak span is redacted with its elevated strategy.
	RiskThreshold float64 `yaml:"risk_threshold"`
}

// DetectorRule defines one detector. Pattern-based rules match the field
// text; key-based rules (Keys non-empty) claim the whole value of any leaf
// whose key matches, which covers free-text types like postal addresses
// that have no usable grammar.
type DetectorRule struct {
	Type       string   `yaml:"type"`
	Pattern    string   `yaml:"pattern"`
	Keys       []string `yaml:"keys"`
	MinWords   int      `yaml:"min_words"` // key-based only: skip values with fewer words
	Confidence float64  `yaml:"confidence"`
	Weight     float64  `yaml:"weight"`
	Standalone bool     `yaml:"standalone"`
	Verify     string   `yaml:"verify"` // "", "luhn"
}

// Strategy names a span replacement method.
type Strategy string

const (
	StrategyMask  Strategy = "mask"  // [REDACTED_<TYPE>]
	StrategyHash  Strategy = "hash"  // sha256:<16 hex>
	StrategyDrop  Strategy = "drop"  // remove the field entirely
	StrategyLast4 Strategy = "last4" // mask all but the final 4 characters
)

// PolicyRule binds one PIIType to its base and elevated strategies. The
// elevated strategy applies when the type participates in a combinatorial
// detection.
type PolicyRule struct {
	Strategy Strategy `yaml:"strategy"`
	Elevated Strategy `yaml:"elevated"`
}

// ConfigError reports an invalid detector/policy configuration. It is
// fatal at startup and causes a hot reload to be discarded.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

// DefaultConfig returns the built-in configuration: the stock detector
// catalogue with partial-reveal policies, a 10ms budget, and the reject
// fallback.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{HTTPPort: 8080},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Channel: "piigate_updates",
			Key:     "piigate_config",
		},
		Pipeline: PipelineConfig{
			LatencyBudgetMS:   10,
			Fallback:          FallbackReject,
			FallbackStatus:    422,
			MaxStructureDepth: 64,
			RiskThreshold:     1.0,
		},
		Detectors: []DetectorRule{
			{Type: "phone", Pattern: `\b\d{10}\b`, Confidence: 0.95, Standalone: true},
			{Type: "aadhaar", Pattern: `\b\d{12}\b`, Confidence: 0.95, Standalone: true},
			{Type: "passport", Pattern: `\b[A-Z][0-9]{7}\b`, Confidence: 0.9, Standalone: true},
			{Type: "upi_id", Pattern: `\b[a-zA-Z0-9._%+-]+@[a-zA-Z]+\b`, Confidence: 0.8, Standalone: true},
			{Type: "email", Pattern: `\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`, Confidence: 0.9, Standalone: true},
			{Type: "card_number", Pattern: `\b(?:\d[ -]?){12,18}\d\b`, Confidence: 0.95, Standalone: true, Verify: "luhn"},
			{Type: "name", Pattern: `\b[A-Z][a-z]+(?:\s[A-Z][a-z]+)+\b`, Confidence: 0.4, Weight: 0.5},
			{Type: "ip_address", Pattern: `\b(?:\d{1,3}\.){3}\d{1,3}\b`, Confidence: 0.5, Weight: 0.5},
			{Type: "date_of_birth", Pattern: `\b\d{4}-\d{2}-\d{2}\b`, Confidence: 0.4, Weight: 0.5},
			{Type: "zip_code", Pattern: `\b\d{5,6}\b`, Confidence: 0.3, Weight: 0.5},
			{Type: "address", Keys: []string{"address", "street_address", "home_address"}, MinWords: 3, Confidence: 0.4, Weight: 0.5},
			{Type: "device_id", Keys: []string{"device_id", "imei"}, Confidence: 0.4, Weight: 0.5},
		},
		Policies: map[string]PolicyRule{
			"phone":         {Strategy: StrategyLast4, Elevated: StrategyMask},
			"aadhaar":       {Strategy: StrategyLast4, Elevated: StrategyMask},
			"passport":      {Strategy: StrategyLast4, Elevated: StrategyMask},
			"upi_id":        {Strategy: StrategyMask, Elevated: StrategyDrop},
			"email":         {Strategy: StrategyHash, Elevated: StrategyMask},
			"card_number":   {Strategy: StrategyLast4, Elevated: StrategyDrop},
			"name":          {Strategy: StrategyMask, Elevated: StrategyMask},
			"ip_address":    {Strategy: StrategyHash, Elevated: StrategyMask},
			"date_of_birth": {Strategy: StrategyMask, Elevated: StrategyDrop},
			"zip_code":      {Strategy: StrategyMask, Elevated: StrategyMask},
			"address":       {Strategy: StrategyMask, Elevated: StrategyDrop},
			"device_id":     {Strategy: StrategyHash, Elevated: StrategyDrop},
		},
		Audit: AuditConfig{BufferSize: 1024, Sinks: []SinkConfig{{Type: "console"}}},
	}
}

type AuditConfig struct {
	BufferSize int          `yaml:"buffer_size"`
	Sinks      []SinkConfig `yaml:"sinks"`
}

type SinkConfig struct {
	Type    string            `yaml:"type"` // console, http
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Parse decodes a config document over the defaults. Used by the hot
// reload watcher, which receives the document from Redis.
func Parse(raw []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

var validStrategies = map[Strategy]bool{
	StrategyMask:  true,
	StrategyHash:  true,
	StrategyDrop:  true,
	StrategyLast4: true,
}

// Validate checks the detector/policy invariants. Every active PIIType
// must have exactly one detector rule and exactly one policy entry with
// known strategies; violations are startup-fatal.
func (c *Config) Validate() error {
	if c.Pipeline.LatencyBudgetMS <= 0 {
		return &ConfigError{Reason: "latency_budget_ms must be positive"}
	}
	if c.Pipeline.MaxStructureDepth <= 0 {
		return &ConfigError{Reason: "max_structure_depth must be positive"}
	}
	if c.Pipeline.RiskThreshold <= 0 {
		return &ConfigError{Reason: "risk_threshold must be positive"}
	}
	switch c.Pipeline.Fallback {
	case FallbackReject, FallbackRedactAll:
	default:
		return &ConfigError{Reason: fmt.Sprintf("unknown fallback_policy %q", c.Pipeline.Fallback)}
	}

	if len(c.Detectors) == 0 {
		return &ConfigError{Reason: "no detectors configured"}
	}
	seen := make(map[string]bool, len(c.Detectors))
	for _, d := range c.Detectors {
		if d.Type == "" {
			return &ConfigError{Reason: "detector with empty type"}
		}
		if seen[d.Type] {
			return &ConfigError{Reason: fmt.Sprintf("duplicate detector for type %q", d.Type)}
		}
		seen[d.Type] = true
		if d.Pattern == "" && len(d.Keys) == 0 {
			return &ConfigError{Reason: fmt.Sprintf("detector %q has neither pattern nor keys", d.Type)}
		}
		if d.Confidence <= 0 || d.Confidence > 1 {
			return &ConfigError{Reason: fmt.Sprintf("detector %q confidence must be in (0,1]", d.Type)}
		}
		if !d.Standalone && d.Weight <= 0 {
			return &ConfigError{Reason: fmt.Sprintf("weak detector %q needs a positive weight", d.Type)}
		}
		switch d.Verify {
		case "", "luhn":
		default:
			return &ConfigError{Reason: fmt.Sprintf("detector %q: unknown verify %q", d.Type, d.Verify)}
		}

		pol, ok := c.Policies[d.Type]
		if !ok {
			return &ConfigError{Reason: fmt.Sprintf("no redaction policy for type %q", d.Type)}
		}
		if !validStrategies[pol.Strategy] {
			return &ConfigError{Reason: fmt.Sprintf("policy %q: unknown strategy %q", d.Type, pol.Strategy)}
		}
		if pol.Elevated != "" && !validStrategies[pol.Elevated] {
			return &ConfigError{Reason: fmt.Sprintf("policy %q: unknown elevated strategy %q", d.Type, pol.Elevated)}
		}
	}
	return nil
}
