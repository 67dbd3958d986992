package engine

import (
	"strings"
	"testing"

	"piigate/pkg/config"
	"piigate/pkg/model"
)

func testRedactor() *redactor {
	return &redactor{policies: map[model.PIIType]config.PolicyRule{
		model.TypePhone:       {Strategy: config.StrategyLast4, Elevated: config.StrategyMask},
		model.TypeEmail:       {Strategy: config.StrategyMask, Elevated: config.StrategyMask},
		model.TypeName:        {Strategy: config.StrategyMask, Elevated: config.StrategyMask},
		model.TypeDateOfBirth: {Strategy: config.StrategyMask, Elevated: config.StrategyDrop},
	}}
}

func TestRedactField_SinglePassLeftToRight(t *testing.T) {
	r := testRedactor()
	text := "phone 9876543210 or mail a@b.co end"
	spans := []model.Span{
		{Start: 6, End: 16, Type: model.TypePhone, Confidence: 0.95, Standalone: true},
		{Start: 25, End: 31, Type: model.TypeEmail, Confidence: 0.9, Standalone: true},
	}

	out, drop, changed := r.redactField(text, spans, combinationResult{})
	if drop || !changed {
		t.Fatalf("redactField() drop=%v changed=%v", drop, changed)
	}
	want := "phone XXXXXX3210 or mail [REDACTED_EMAIL] end"
	if out != want {
		t.Errorf("redactField() = %q, want %q", out, want)
	}
}

func TestRedactField_WeakSpansNeedTheFlag(t *testing.T) {
	r := testRedactor()
	text := "Jane Doe"
	spans := []model.Span{{Start: 0, End: 8, Type: model.TypeName, Confidence: 0.4}}

	out, _, changed := r.redactField(text, spans, combinationResult{})
	if changed || out != text {
		t.Errorf("weak span redacted without combinatorial flag: %q", out)
	}

	comb := combinationResult{Flagged: true, Participants: map[model.PIIType]bool{model.TypeName: true}}
	out, _, changed = r.redactField(text, spans, comb)
	if !changed || out != "[REDACTED_NAME]" {
		t.Errorf("flagged weak span not redacted: %q", out)
	}
}

func TestRedactField_ElevatedDrop(t *testing.T) {
	r := testRedactor()
	spans := []model.Span{{Start: 0, End: 10, Type: model.TypeDateOfBirth, Confidence: 0.4}}
	comb := combinationResult{Flagged: true, Participants: map[model.PIIType]bool{model.TypeDateOfBirth: true}}

	_, drop, changed := r.redactField("1990-01-01", spans, comb)
	if !drop || !changed {
		t.Errorf("elevated drop not applied: drop=%v changed=%v", drop, changed)
	}
}

func TestTokens(t *testing.T) {
	if got := maskToken(model.TypePhone); got != "[REDACTED_PHONE]" {
		t.Errorf("maskToken() = %q", got)
	}
	if got := last4Token("9876543210"); got != "XXXXXX3210" {
		t.Errorf("last4Token() = %q", got)
	}
	// Short values reveal nothing.
	if got := last4Token("123"); got != "XXX" {
		t.Errorf("last4Token(short) = %q", got)
	}
	h := hashToken("jane@example.com")
	if !strings.HasPrefix(h, "sha256:") || len(h) != len("sha256:")+16 {
		t.Errorf("hashToken() = %q", h)
	}
	if h != hashToken("jane@example.com") {
		t.Errorf("hashToken() not deterministic")
	}
	if h == hashToken("john@example.com") {
		t.Errorf("hashToken() collides on different inputs")
	}
}

func TestRedactAll(t *testing.T) {
	out := RedactAll([]byte(`{"a":"secret","b":{"c":"hidden"},"n":7}`), 64)
	got := string(out)
	if strings.Contains(got, "secret") || strings.Contains(got, "hidden") {
		t.Errorf("RedactAll() leaked content: %s", got)
	}
	if !strings.Contains(got, `"n":7`) {
		t.Errorf("RedactAll() should keep non-string leaves: %s", got)
	}

	// Unparseable input collapses to a bare token.
	if got := string(RedactAll([]byte("not json"), 64)); got != `"[REDACTED]"` {
		t.Errorf("RedactAll(invalid) = %q", got)
	}
}
