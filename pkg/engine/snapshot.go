package engine

import (
	"time"

	"piigate/pkg/config"
	"piigate/pkg/model"
)

// Snapshot is one compiled, immutable view of the detector and policy
// configuration. The pipeline holds the current snapshot behind an atomic
// pointer; reloads build a fresh snapshot and swap it in whole, so the hot
// path never takes a lock and never observes a half-updated config.
type Snapshot struct {
	detectors []Detector
	weights   map[model.PIIType]float64
	redactor  *redactor

	budget         time.Duration
	fallback       config.FallbackPolicy
	fallbackStatus int
	maxDepth       int
	riskThreshold  float64
}

// NewSnapshot validates cfg and compiles it. Any validation or compile
// failure is a *config.ConfigError: fatal at startup, discarded on reload.
func NewSnapshot(cfg *config.Config) (*Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	detectors := make([]Detector, 0, len(cfg.Detectors))
	weights := make(map[model.PIIType]float64)
	for _, rule := range cfg.Detectors {
		d, err := compileDetector(rule)
		if err != nil {
			return nil, err
		}
		detectors = append(detectors, d)
		if !rule.Standalone {
			weights[d.Type()] = rule.Weight
		}
	}

	policies := make(map[model.PIIType]config.PolicyRule, len(cfg.Policies))
	for typ, pol := range cfg.Policies {
		policies[model.PIIType(typ)] = pol
	}

	return &Snapshot{
		detectors:      detectors,
		weights:        weights,
		redactor:       &redactor{policies: policies},
		budget:         time.Duration(cfg.Pipeline.LatencyBudgetMS) * time.Millisecond,
		fallback:       cfg.Pipeline.Fallback,
		fallbackStatus: cfg.Pipeline.FallbackStatus,
		maxDepth:       cfg.Pipeline.MaxStructureDepth,
		riskThreshold:  cfg.Pipeline.RiskThreshold,
	}, nil
}

// Budget returns the per-request latency budget.
func (s *Snapshot) Budget() time.Duration { return s.budget }

// FallbackStatus returns the HTTP status the hosting adapter should use
// for the reject fallback.
func (s *Snapshot) FallbackStatus() int { return s.fallbackStatus }

// detectField runs every detector over one field and merges the candidate
// spans into a non-overlapping, deterministic set.
func (s *Snapshot) detectField(f Field) []model.Span {
	key := LastSegment(f.Path)
	var candidates []model.Span
	for _, d := range s.detectors {
		candidates = append(candidates, d.Match(f.Path, key, f.Text)...)
	}
	valid := candidates[:0]
	for _, sp := range candidates {
		if validSpan(f.Text, sp) {
			valid = append(valid, sp)
		}
	}
	return mergeSpans(valid)
}
