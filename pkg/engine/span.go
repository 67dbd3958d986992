package engine

import (
	"sort"

	"piigate/pkg/model"
)

// mergeSpans resolves overlapping candidate spans within one field into a
// non-overlapping set, ordered by start offset.
//
// Tie-break between overlapping spans: highest confidence wins; equal
// confidence keeps the longer span; still tied keeps the earlier start.
// The ordering is total, so repeated runs always resolve the same way.
func mergeSpans(spans []model.Span) []model.Span {
	if len(spans) <= 1 {
		return spans
	}

	ranked := make([]model.Span, len(spans))
	copy(ranked, spans)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		// Fully identical extents of different types: keep a stable pick.
		return a.Type < b.Type
	})

	kept := ranked[:0]
	for _, cand := range ranked {
		conflict := false
		for _, k := range kept {
			if cand.Overlaps(k) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, cand)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// validSpan rejects spans with offsets outside the text or split across
// UTF-8 rune boundaries (a detector bug, not a payload condition).
func validSpan(text string, s model.Span) bool {
	if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
		return false
	}
	return isRuneBoundary(text, s.Start) && isRuneBoundary(text, s.End)
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}
