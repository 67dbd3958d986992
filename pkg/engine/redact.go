package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"piigate/pkg/config"
	"piigate/pkg/model"
)

// maskToken builds the replacement token for masked spans, e.g.
// [REDACTED_PHONE]. Tokens deliberately contain no digits or address
// characters so no detector can re-match them (redaction is idempotent).
func maskToken(typ model.PIIType) string {
	return "[REDACTED_" + strings.ToUpper(string(typ)) + "]"
}

// hashToken replaces a span with a truncated sha256 of the original, so
// equal values stay correlatable across records without being readable.
func hashToken(original string) string {
	sum := sha256.Sum256([]byte(original))
	return "sha256:" + hex.EncodeToString(sum[:])[:16]
}

// last4Token masks everything but the final four characters, preserving
// the value's length and tail for human verification flows.
func last4Token(original string) string {
	runes := []rune(original)
	keep := 4
	if len(runes) <= keep {
		keep = 0
	}
	for i := 0; i < len(runes)-keep; i++ {
		runes[i] = 'X'
	}
	return string(runes)
}

// replacementFor renders one span's replacement text under a strategy.
// StrategyDrop is handled a level up (it removes the field, not the span).
func replacementFor(strategy config.Strategy, typ model.PIIType, original string) string {
	switch strategy {
	case config.StrategyHash:
		return hashToken(original)
	case config.StrategyLast4:
		return last4Token(original)
	default:
		return maskToken(typ)
	}
}

// redactor applies the active policy table to detections. One redactor is
// part of an immutable snapshot and is shared across requests.
type redactor struct {
	policies map[model.PIIType]config.PolicyRule
}

// strategyFor picks the base or elevated strategy for a span. Elevated
// applies when the document's combinatorial flag is set and the span's
// type participates in the combination; co-occurrence raises
// re-identification risk beyond what the base strategy mitigates.
func (r *redactor) strategyFor(sp model.Span, comb combinationResult) config.Strategy {
	pol := r.policies[sp.Type]
	if comb.Flagged && comb.Participants[sp.Type] && pol.Elevated != "" {
		return pol.Elevated
	}
	return pol.Strategy
}

// applies reports whether a span gets redacted at all: standalone spans
// always do, weak spans only when their type participates in a flagged
// combination.
func applies(sp model.Span, comb combinationResult) bool {
	if sp.Standalone {
		return true
	}
	return comb.Flagged && comb.Participants[sp.Type]
}

// redactField computes one field's full replacement text in a single
// left-to-right pass over its (non-overlapping, start-ordered) spans.
// A field is never partially applied: either this function's output is
// committed for the whole field, or the document keeps the original.
// dropField is set when any applied span's strategy is drop.
func (r *redactor) redactField(text string, spans []model.Span, comb combinationResult) (out string, dropField, changed bool) {
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, sp := range spans {
		if !applies(sp, comb) || !validSpan(text, sp) {
			continue
		}
		strategy := r.strategyFor(sp, comb)
		if strategy == config.StrategyDrop {
			return "", true, true
		}
		b.WriteString(text[prev:sp.Start])
		b.WriteString(replacementFor(strategy, sp.Type, text[sp.Start:sp.End]))
		prev = sp.End
		changed = true
	}
	if !changed {
		return text, false, false
	}
	b.WriteString(text[prev:])
	return b.String(), false, true
}

// Redact rewrites all detected spans of doc per policy and returns a new
// document. Non-matched content, key order, numeric formatting and
// whitespace outside replaced leaves are preserved byte-for-byte.
func (r *redactor) Redact(doc []byte, detections []model.Detection, comb combinationResult, fieldText map[string]string) ([]byte, error) {
	replacements := make(map[string]string)
	var drops []string
	for _, det := range detections {
		text, ok := fieldText[det.Path]
		if !ok {
			continue
		}
		out, drop, changed := r.redactField(text, det.Spans, comb)
		if !changed {
			continue
		}
		if drop {
			drops = append(drops, det.Path)
			continue
		}
		replacements[det.Path] = out
	}
	if len(replacements) == 0 && len(drops) == 0 {
		return doc, nil
	}
	return Apply(doc, replacements, drops)
}

// RedactAll is the conservative DEGRADED fallback: every string leaf is
// replaced with a bare mask token, no detection consulted. When even a
// bounded walk fails the whole payload collapses to a single token, so an
// unredacted byte can never leave on the degraded path.
func RedactAll(doc []byte, maxDepth int) []byte {
	fields, err := Walk(doc, maxDepth)
	if err != nil {
		return []byte(`"[REDACTED]"`)
	}
	replacements := make(map[string]string, len(fields))
	for _, f := range fields {
		replacements[f.Path] = "[REDACTED]"
	}
	out, err := Apply(doc, replacements, nil)
	if err != nil {
		return []byte(`"[REDACTED]"`)
	}
	return out
}
