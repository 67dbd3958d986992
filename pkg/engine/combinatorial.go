package engine

import (
	"piigate/pkg/model"
)

// combinationResult is the document-level outcome of the combinatorial
// evaluation: whether the co-occurrence risk threshold was reached, and
// which weak types participate.
type combinationResult struct {
	Flagged      bool
	Participants map[model.PIIType]bool
	RiskScore    float64
}

// evaluateCombination inspects the set of weak PII types found anywhere in
// the document. Each distinct weak type contributes its risk weight once;
// if the sum reaches threshold, every participating type is flagged for
// elevated redaction.
//
// Standalone spans are ignored here: they redact on their own and do not
// need co-occurrence to matter.
func evaluateCombination(detections []model.Detection, weights map[model.PIIType]float64, threshold float64) combinationResult {
	present := make(map[model.PIIType]bool)
	for _, det := range detections {
		for _, sp := range det.Spans {
			if sp.Standalone {
				continue
			}
			present[sp.Type] = true
		}
	}

	score := 0.0
	for typ := range present {
		score += weights[typ]
	}

	if score < threshold {
		return combinationResult{RiskScore: score}
	}
	return combinationResult{Flagged: true, Participants: present, RiskScore: score}
}
