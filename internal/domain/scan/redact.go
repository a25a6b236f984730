package scan

import "sort"

// MergeRedactions applies the redactions proposed by the given findings to
// text and returns the sanitized result. Only findings with both a span and
// a suggested redaction participate.
//
// Overlapping spans from different findings are resolved by keeping the
// higher-scoring finding and discarding the overlapped one entirely; ties
// keep the finding whose span starts first. Surviving spans are applied
// right-to-left so earlier offsets stay valid, and text outside the flagged
// spans is preserved byte-for-byte.
func MergeRedactions(text string, findings []Finding) string {
	spans := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.HasSpan() && f.Redaction != "" && f.End <= len(text) {
			spans = append(spans, f)
		}
	}
	if len(spans) == 0 {
		return text
	}

	// Resolve overlaps: prefer higher score, then earlier start.
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Score != spans[j].Score {
			return spans[i].Score > spans[j].Score
		}
		return spans[i].Start < spans[j].Start
	})
	kept := make([]Finding, 0, len(spans))
	for _, cand := range spans {
		overlaps := false
		for _, k := range kept {
			if cand.Start < k.End && k.Start < cand.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start > kept[j].Start })
	out := text
	for _, f := range kept {
		out = out[:f.Start] + f.Redaction + out[f.End:]
	}
	return out
}
