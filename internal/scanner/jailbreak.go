package scanner

import (
	"context"
	"regexp"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

type jailbreakPattern struct {
	name    string
	pattern *regexp.Regexp
	message string
	score   float64
}

var jailbreakPatterns = []jailbreakPattern{
	{
		"dan",
		regexp.MustCompile(`(?i)(?:DAN\s*(?:\d+(?:\.\d+)?)?|do\s+anything\s+now|you\s+can\s+do\s+anything\s+now|DANMode)`),
		"DAN jailbreak pattern detected",
		scoreCritical,
	},
	{
		"developer_mode",
		regexp.MustCompile(`(?i)(?:developer\s+mode|debug\s+mode|maintenance\s+mode|admin\s+mode|sudo\s+mode|root\s+access|enable\s+developer)`),
		"Developer or debug mode jailbreak attempt",
		scoreHigh,
	},
	{
		"hypothetical",
		regexp.MustCompile(`(?i)(?:hypothetically|in\s+a\s+(?:fictional|imaginary|hypothetical)\s+(?:world|scenario|universe)|for\s+(?:a|my)\s+(?:novel|story|book|movie|script)|purely\s+(?:academic|educational|research|fictional))\s*[,:]?\s*(?:how\s+(?:would|could|can|do)|what\s+(?:would|if))`),
		"Hypothetical framing to bypass safety",
		scoreMedium,
	},
	{
		"persona",
		regexp.MustCompile(`(?i)(?:from\s+now\s+on|starting\s+now|henceforth)\s*[,:]?\s*(?:you\s+(?:are|will\s+be|shall\s+be|must\s+act\s+as)|act\s+as\s+(?:if\s+you\s+(?:are|were)|an?\s+(?:evil|unrestricted|unfiltered)))`),
		"Persona adoption jailbreak",
		scoreHigh,
	},
	{
		"token_smuggling",
		regexp.MustCompile(`(?:<\|endoftext\|>|<\|startoftext\|>|<\|padding\|>|\[IGNORE\]|\[OVERRIDE\]|\[SYSTEM\]|\[ADMIN\])`),
		"Token smuggling attempt",
		scoreCritical,
	},
	{
		"escalation",
		regexp.MustCompile(`(?i)(?:first|step\s+1|to\s+begin)[,:]?\s*(?:confirm|acknowledge|agree|say\s+yes).*(?:then|next|step\s+2|after\s+that)[,:]?\s*(?:you\s+(?:will|can|should)|tell\s+me|provide|give\s+me)`),
		"Multi-step escalation jailbreak",
		scoreHigh,
	},
	{
		"roleplay",
		regexp.MustCompile(`(?i)(?:let'?s?\s+(?:play|simulate|pretend|roleplay|imagine)|we'?re?\s+(?:playing|simulating|role\s*playing)|this\s+is\s+(?:a\s+)?(?:simulation|game|roleplay|exercise))\s*(?:where|in\s+which)?\s*(?:you\s+(?:are|have|can)|there\s+are\s+no\s+(?:rules|limits))`),
		"Roleplay-based jailbreak attempt",
		scoreHigh,
	},
}

// JailbreakScanner detects known jailbreak techniques in user input.
// Each technique carries its own confidence score.
type JailbreakScanner struct{}

func NewJailbreakScanner() *JailbreakScanner { return &JailbreakScanner{} }

func (s *JailbreakScanner) Name() string { return "jailbreak" }

func (s *JailbreakScanner) Scan(_ context.Context, text string, _ scan.Context) (scan.ScanResult, error) {
	var findings []scan.Finding
	for _, p := range jailbreakPatterns {
		for _, loc := range p.pattern.FindAllStringIndex(text, -1) {
			findings = append(findings, scan.Finding{
				Scanner:  s.Name(),
				Category: "jailbreak",
				Score:    p.score,
				Start:    loc[0],
				End:      loc[1],
				Message:  p.message,
			})
		}
	}
	return newResult(s.Name(), text, findings), nil
}
