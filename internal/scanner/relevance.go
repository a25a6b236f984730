package scanner

import (
	"context"
	"fmt"
	"strings"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

var stopWords = map[string]bool{
	"the": true, "is": true, "at": true, "which": true, "on": true,
	"a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "with": true, "to": true, "for": true, "of": true,
	"not": true, "no": true, "can": true, "had": true, "has": true,
	"have": true, "was": true, "were": true, "been": true, "will": true,
	"would": true, "could": true, "should": true, "may": true,
	"might": true, "shall": true, "do": true, "does": true, "did": true,
	"are": true, "this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "my": true, "your": true, "his": true,
	"her": true, "our": true, "their": true, "what": true, "how": true,
	"why": true, "when": true, "where": true, "who": true, "whom": true,
	"you": true, "me": true, "him": true, "them": true, "about": true,
	"from": true, "into": true, "than": true,
}

// RelevanceScanner checks whether model output addresses the input
// prompt using keyword overlap as a cheap relevance proxy. Needs the
// original prompt in the scan context; without it the check is skipped.
type RelevanceScanner struct {
	minOverlap float64
}

// NewRelevanceScanner creates a relevance scanner that flags output
// whose keyword overlap with the prompt falls below minOverlap.
func NewRelevanceScanner(minOverlap float64) *RelevanceScanner {
	return &RelevanceScanner{minOverlap: minOverlap}
}

func (s *RelevanceScanner) Name() string { return "relevance" }

func (s *RelevanceScanner) Scan(_ context.Context, text string, sctx scan.Context) (scan.ScanResult, error) {
	if sctx.InputText == "" {
		return newResult(s.Name(), text, nil), nil
	}

	overlap := keywordOverlap(sctx.InputText, text)
	if overlap >= s.minOverlap {
		return newResult(s.Name(), text, nil), nil
	}

	findings := []scan.Finding{{
		Scanner:  s.Name(),
		Category: "relevance",
		Score:    scoreLow,
		Start:    scan.NoSpan,
		End:      scan.NoSpan,
		Message:  fmt.Sprintf("Low relevance score (%.2f), output may not address the input", overlap),
	}}
	return newResult(s.Name(), text, findings), nil
}

// keywordOverlap returns the fraction of the input's content words that
// also appear in the output.
func keywordOverlap(input, output string) float64 {
	inputWords := contentWords(input)
	if len(inputWords) == 0 {
		return 1.0
	}
	outputWords := contentWords(output)

	matched := 0
	for w := range inputWords {
		if outputWords[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(inputWords))
}

func contentWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, raw := range strings.Fields(text) {
		w := strings.ToLower(strings.Trim(raw, ".,!?;:\"'()[]{}"))
		if len(w) <= 2 || stopWords[w] {
			continue
		}
		words[w] = true
	}
	return words
}
