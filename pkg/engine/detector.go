package engine

import (
	"fmt"
	"regexp"
	"strings"

	"piigate/pkg/config"
	"piigate/pkg/model"
)

// Detector finds spans of one PII type inside a single field. Detectors
// are compiled once per config snapshot and must be safe for concurrent
// use; per-field detection runs in parallel within one document.
type Detector interface {
	// Match scans the field text and returns candidate spans. Offsets are
	// byte offsets into text. Path and key give the field's location so
	// key-claiming detectors can decide applicability.
	Match(path, key, text string) []model.Span

	// Type returns the PIIType this detector produces.
	Type() model.PIIType

	// Standalone reports whether matches redact on their own. Weak
	// detectors only contribute through the combinatorial evaluation.
	Standalone() bool

	// Weight is the combinatorial risk weight (weak detectors only).
	Weight() float64
}

// regexDetector matches a compiled pattern against field text, with an
// optional structural verifier (e.g. Luhn) applied to each raw match.
type regexDetector struct {
	typ        model.PIIType
	re         *regexp.Regexp
	confidence float64
	weight     float64
	standalone bool
	verify     func(string) bool
}

func (d *regexDetector) Type() model.PIIType { return d.typ }
func (d *regexDetector) Standalone() bool    { return d.standalone }
func (d *regexDetector) Weight() float64     { return d.weight }

func (d *regexDetector) Match(path, _, text string) []model.Span {
	// Bounded memory: the regexp package scans the field without
	// buffering beyond its own state, so cost tracks field length.
	idx := d.re.FindAllStringIndex(text, -1)
	if idx == nil {
		return nil
	}
	spans := make([]model.Span, 0, len(idx))
	for _, m := range idx {
		if d.verify != nil && !d.verify(text[m[0]:m[1]]) {
			continue
		}
		spans = append(spans, model.Span{
			Path:       path,
			Start:      m[0],
			End:        m[1],
			Type:       d.typ,
			Confidence: d.confidence,
			Standalone: d.standalone,
		})
	}
	return spans
}

// keyDetector claims the entire value of leaves whose key matches, for
// types with no usable content grammar (postal addresses, device ids).
type keyDetector struct {
	typ        model.PIIType
	keys       map[string]bool
	minWords   int
	confidence float64
	weight     float64
	standalone bool
}

func (d *keyDetector) Type() model.PIIType { return d.typ }
func (d *keyDetector) Standalone() bool    { return d.standalone }
func (d *keyDetector) Weight() float64     { return d.weight }

func (d *keyDetector) Match(path, key, text string) []model.Span {
	if text == "" || !d.keys[strings.ToLower(key)] {
		return nil
	}
	if d.minWords > 0 && len(strings.Fields(text)) < d.minWords {
		return nil
	}
	return []model.Span{{
		Path:       path,
		Start:      0,
		End:        len(text),
		Type:       d.typ,
		Confidence: d.confidence,
		Standalone: d.standalone,
	}}
}

// compileDetector builds a Detector from one validated config rule.
func compileDetector(rule config.DetectorRule) (Detector, error) {
	if len(rule.Keys) > 0 {
		keys := make(map[string]bool, len(rule.Keys))
		for _, k := range rule.Keys {
			keys[strings.ToLower(k)] = true
		}
		return &keyDetector{
			typ:        model.PIIType(rule.Type),
			keys:       keys,
			minWords:   rule.MinWords,
			confidence: rule.Confidence,
			weight:     rule.Weight,
			standalone: rule.Standalone,
		}, nil
	}

	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, &config.ConfigError{Reason: fmt.Sprintf("detector %q: invalid pattern: %v", rule.Type, err)}
	}
	d := &regexDetector{
		typ:        model.PIIType(rule.Type),
		re:         re,
		confidence: rule.Confidence,
		weight:     rule.Weight,
		standalone: rule.Standalone,
	}
	if rule.Verify == "luhn" {
		d.verify = luhnValid
	}
	return d, nil
}

// luhnValid checks the Luhn checksum over the digits of s, ignoring
// spaces and dashes. Used to separate card numbers from arbitrary digit
// runs of the same length.
func luhnValid(s string) bool {
	sum := 0
	double := false
	digits := 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == ' ' || c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		digits++
	}
	return digits >= 13 && sum%10 == 0
}
