package model

import (
	"time"
)

// PIIType identifies a category of personally identifiable information.
// The set is open: detector rules in the config can introduce new types,
// as long as a redaction policy entry exists for each of them.
type PIIType string

const (
	TypePhone       PIIType = "phone"
	TypeAadhaar     PIIType = "aadhaar"
	TypePassport    PIIType = "passport"
	TypeUPI         PIIType = "upi_id"
	TypeEmail       PIIType = "email"
	TypeCardNumber  PIIType = "card_number"
	TypeName        PIIType = "name"
	TypeIPAddress   PIIType = "ip_address"
	TypeDateOfBirth PIIType = "date_of_birth"
	TypeZipCode     PIIType = "zip_code"
	TypeAddress     PIIType = "address"
	TypeDeviceID    PIIType = "device_id"
)

// Span is a located, typed PII match inside one text field.
// Offsets are byte offsets into the field's (unescaped) string value,
// with Start < End <= len(text). Spans within one field are
// non-overlapping after merge.
type Span struct {
	Path       string  `json:"path"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Type       PIIType `json:"type"`
	Confidence float64 `json:"confidence"`

	// Standalone marks spans produced by a standalone detector: they are
	// redacted on their own. Non-standalone spans only get redacted when
	// the document's combinatorial flag fires for their type.
	Standalone bool `json:"standalone"`
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans intersect.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Detection groups the merged spans found in one field.
type Detection struct {
	Path  string `json:"path"`
	Spans []Span `json:"spans"`
}

// Outcome is the terminal state of one pipeline invocation.
type Outcome string

const (
	// OutcomeForwarded: detection and redaction completed, sanitized
	// payload forwarded downstream.
	OutcomeForwarded Outcome = "forwarded"
	// OutcomeRejected: DEGRADED terminal with the reject fallback.
	OutcomeRejected Outcome = "rejected"
	// OutcomeRedactedAll: DEGRADED terminal with the conservative
	// whole-payload redaction fallback.
	OutcomeRedactedAll Outcome = "redacted_all"
)

// AuditRecord is emitted once per completed invocation (FORWARDING or
// DEGRADED terminal; cancelled invocations emit nothing). Persistence and
// ordering across records belong to the sink, not to the pipeline.
type AuditRecord struct {
	Timestamp     time.Time   `json:"timestamp"`
	DocumentID    string      `json:"document_id"`
	Outcome       Outcome     `json:"outcome"`
	Detections    []Detection `json:"detections,omitempty"`
	Combinatorial bool        `json:"combinatorial"`
	Reason        string      `json:"reason,omitempty"`
	LatencyMS     float64     `json:"latency_ms"`
}
