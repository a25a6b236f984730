package scanner

import (
	"context"
	"regexp"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// injectionPattern is one heuristic for a known injection technique.
type injectionPattern struct {
	name    string
	pattern *regexp.Regexp
	message string
}

var injectionPatterns = []injectionPattern{
	{
		"instruction_override",
		regexp.MustCompile(`(?i)\b(?:ignore|disregard|forget|override|bypass)\b.*(?:previous|above|prior|earlier|all|system)\b.*(?:instructions?|prompts?|rules?|guidelines?|constraints?)`),
		"Attempt to override system instructions",
	},
	{
		"system_prompt_extraction",
		regexp.MustCompile(`(?i)(?:reveal|show|display|print|output|repeat|tell me)\b.*(?:system\s*prompt|initial\s*prompt|hidden\s*prompt|system\s*message|instructions?|original\s*prompt)`),
		"Attempt to extract system prompt",
	},
	{
		"role_manipulation",
		regexp.MustCompile(`(?i)(?:you\s+are\s+now|act\s+as|pretend\s+to\s+be|roleplay\s+as|assume\s+the\s+role|switch\s+to|enter\s+(?:a\s+)?new\s+mode|you\s+are\s+an?\s+(?:unrestricted|unfiltered|uncensored))`),
		"Attempt to manipulate assistant role or persona",
	},
	{
		"dan_jailbreak",
		regexp.MustCompile(`(?i)(?:DAN|do\s+anything\s+now|jailbreak|developer\s+mode|god\s+mode|unrestricted\s+mode|no\s+restrictions|without\s+limits)`),
		"DAN-style jailbreak attempt",
	},
	{
		"delimiter_injection",
		regexp.MustCompile("(?:```|###|---|\\[INST\\]|\\[/INST\\]|<\\|im_start\\|>|<\\|im_end\\|>|<\\|system\\|>|<\\|user\\|>|<\\|assistant\\|>|<<SYS>>|<</SYS>>)"),
		"Delimiter or control-token injection attempt",
	},
	{
		"encoding_trick",
		regexp.MustCompile(`(?i)(?:base64|rot13|hex|decode|encode)\s*(?:the\s+following|this|:)`),
		"Possible encoding-based evasion",
	},
	{
		"injection_markers",
		regexp.MustCompile(`(?i)(?:new\s+instructions?|updated\s+instructions?|additional\s+instructions?|real\s+instructions?|actual\s+instructions?|true\s+instructions?)`),
		"Injection marker detected",
	},
}

// PromptInjectionScanner flags injection attempts in user input with
// regex heuristics. Finding confidence scales with how many distinct
// techniques matched within the same text.
type PromptInjectionScanner struct{}

func NewPromptInjectionScanner() *PromptInjectionScanner { return &PromptInjectionScanner{} }

func (s *PromptInjectionScanner) Name() string { return "prompt_injection" }

func (s *PromptInjectionScanner) Scan(_ context.Context, text string, _ scan.Context) (scan.ScanResult, error) {
	var findings []scan.Finding
	techniques := make(map[string]bool)

	for _, p := range injectionPatterns {
		for _, loc := range p.pattern.FindAllStringIndex(text, -1) {
			techniques[p.name] = true
			findings = append(findings, scan.Finding{
				Scanner:  s.Name(),
				Category: "prompt_injection",
				Start:    loc[0],
				End:      loc[1],
				Message:  p.message,
			})
		}
	}

	// One matched technique may be coincidence; several rarely are.
	score := scoreMedium
	switch {
	case len(techniques) >= 3:
		score = scoreCritical
	case len(techniques) == 2:
		score = scoreHigh
	}
	for i := range findings {
		findings[i].Score = score
	}

	return newResult(s.Name(), text, findings), nil
}
