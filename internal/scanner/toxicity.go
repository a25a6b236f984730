package scanner

import (
	"context"
	"regexp"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

type toxicityPattern struct {
	name    string
	pattern *regexp.Regexp
	message string
}

var toxicityPatterns = []toxicityPattern{
	{
		"violence_threat",
		regexp.MustCompile(`(?i)\b(?:i\s+will\s+)?(?:kill|murder|destroy|eliminate|hurt|harm|attack|assault|shoot|stab|bomb|explode)\s+(?:you|them|everyone|people)\b`),
		"Violent threat detected",
	},
	{
		"self_harm",
		regexp.MustCompile(`(?i)\b(?:how\s+to\s+)?(?:kill\s+(?:my|your)self|suicide|self[- ]harm|cut\s+(?:my|your)self|end\s+(?:my|your|it\s+all)\s+life)\b`),
		"Self-harm related content",
	},
	{
		"illegal_instruction",
		regexp.MustCompile(`(?i)\b(?:how\s+to\s+)?(?:make\s+(?:a\s+)?(?:bomb|explosive|weapon|drug|meth)|synthesize\s+(?:drugs?|meth|fentanyl)|hack\s+into|break\s+into)\b`),
		"Instructions for illegal activity",
	},
	{
		"hate_speech",
		regexp.MustCompile(`(?i)\b(?:all\s+(?:\w+\s+)?(?:should\s+die|are\s+(?:inferior|subhuman|worthless))|(?:death\s+to|exterminate|genocide)\s+(?:all\s+)?\w+)\b`),
		"Hate speech detected",
	},
	{
		"harassment",
		regexp.MustCompile(`(?i)\b(?:you\s+(?:are\s+)?(?:worthless|pathetic|disgusting|stupid|idiot|moron)|kys|kill\s+yourself)\b`),
		"Harassment detected",
	},
}

// ToxicityScanner flags clearly toxic content in model output. Pattern
// based, so it catches obvious cases only; nuanced classification
// belongs to a higher-tier scanner.
type ToxicityScanner struct{}

func NewToxicityScanner() *ToxicityScanner { return &ToxicityScanner{} }

func (s *ToxicityScanner) Name() string { return "toxicity" }

func (s *ToxicityScanner) Scan(_ context.Context, text string, _ scan.Context) (scan.ScanResult, error) {
	var findings []scan.Finding
	for _, p := range toxicityPatterns {
		for _, loc := range p.pattern.FindAllStringIndex(text, -1) {
			findings = append(findings, scan.Finding{
				Scanner:  s.Name(),
				Category: "toxicity",
				Score:    scoreHigh,
				Start:    loc[0],
				End:      loc[1],
				Message:  p.message,
			})
		}
	}
	return newResult(s.Name(), text, findings), nil
}
