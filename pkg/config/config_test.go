package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero budget", func(c *Config) { c.Pipeline.LatencyBudgetMS = 0 }},
		{"zero depth", func(c *Config) { c.Pipeline.MaxStructureDepth = 0 }},
		{"unknown fallback", func(c *Config) { c.Pipeline.Fallback = "explode" }},
		{"no detectors", func(c *Config) { c.Detectors = nil }},
		{"duplicate type", func(c *Config) {
			c.Detectors = append(c.Detectors, DetectorRule{Type: "phone", Pattern: `\d+`, Confidence: 0.5, Standalone: true})
		}},
		{"missing policy", func(c *Config) { delete(c.Policies, "phone") }},
		{"unknown strategy", func(c *Config) { c.Policies["phone"] = PolicyRule{Strategy: "rot13"} }},
		{"unknown elevated strategy", func(c *Config) {
			c.Policies["phone"] = PolicyRule{Strategy: StrategyMask, Elevated: "rot13"}
		}},
		{"patternless detector", func(c *Config) {
			c.Detectors = append(c.Detectors, DetectorRule{Type: "mystery", Confidence: 0.5, Standalone: true})
		}},
		{"weak detector without weight", func(c *Config) {
			c.Detectors[0] = DetectorRule{Type: "phone", Pattern: `\d+`, Confidence: 0.5}
		}},
		{"bad confidence", func(c *Config) { c.Detectors[0].Confidence = 1.5 }},
		{"unknown verifier", func(c *Config) { c.Detectors[0].Verify = "mod97" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Errorf("Validate() error = %T, want *ConfigError", err)
			}
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "piigate.yaml")
	doc := []byte(`
pipeline:
  latency_budget_ms: 25
  fallback_policy: redact_all
server:
  http_port: 9090
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.LatencyBudgetMS != 25 {
		t.Errorf("latency_budget_ms = %d, want 25", cfg.Pipeline.LatencyBudgetMS)
	}
	if cfg.Pipeline.Fallback != FallbackRedactAll {
		t.Errorf("fallback = %q, want redact_all", cfg.Pipeline.Fallback)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("http_port = %d, want 9090", cfg.Server.HTTPPort)
	}
	// Untouched sections keep their defaults.
	if cfg.Pipeline.MaxStructureDepth != 64 {
		t.Errorf("max_structure_depth = %d, want default 64", cfg.Pipeline.MaxStructureDepth)
	}
	if len(cfg.Detectors) == 0 {
		t.Errorf("default detectors lost on partial override")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("merged config invalid: %v", err)
	}
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Pipeline.LatencyBudgetMS != 10 {
		t.Errorf("latency_budget_ms = %d, want default 10", cfg.Pipeline.LatencyBudgetMS)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("\tnot yaml: [")); err == nil {
		t.Fatalf("Parse() = nil, want error")
	}
}
