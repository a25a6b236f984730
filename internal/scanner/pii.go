package scanner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// piiEntity pairs an entity type with its detection pattern. Declared
// as a slice so detection order is stable across runs.
type piiEntity struct {
	name    string
	pattern *regexp.Regexp
}

var piiEntities = []piiEntity{
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"PHONE", regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}[-]?\d{2}[-]?\d{4}\b`)},
	{"CREDIT_CARD", regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	{"IP_ADDRESS", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{"DATE_OF_BIRTH", regexp.MustCompile(`\b(?:0[1-9]|1[0-2])[/-](?:0[1-9]|[12]\d|3[01])[/-](?:19|20)\d{2}\b`)},
}

// PIIScanner detects personally identifiable information and proposes
// per-entity redaction markers. Runs on both input and output.
type PIIScanner struct {
	entities []piiEntity
}

// NewPIIScanner creates a PII scanner limited to the given entity types.
// An empty list enables all known entities.
func NewPIIScanner(entities []string) *PIIScanner {
	if len(entities) == 0 {
		return &PIIScanner{entities: piiEntities}
	}
	wanted := make(map[string]bool, len(entities))
	for _, e := range entities {
		wanted[e] = true
	}
	var selected []piiEntity
	for _, e := range piiEntities {
		if wanted[e.name] {
			selected = append(selected, e)
		}
	}
	return &PIIScanner{entities: selected}
}

func (s *PIIScanner) Name() string { return "pii" }

func (s *PIIScanner) Scan(_ context.Context, text string, _ scan.Context) (scan.ScanResult, error) {
	var findings []scan.Finding
	for _, e := range s.entities {
		for _, loc := range e.pattern.FindAllStringIndex(text, -1) {
			findings = append(findings, scan.Finding{
				Scanner:   s.Name(),
				Category:  "pii",
				Score:     scoreHigh,
				Start:     loc[0],
				End:       loc[1],
				Message:   fmt.Sprintf("%s detected", e.name),
				Redaction: fmt.Sprintf("[%s_REDACTED]", e.name),
			})
		}
	}
	return newResult(s.Name(), text, findings), nil
}
