// Package scanner contains the built-in content scanners and the
// registry that constructs them from configuration. All built-ins are
// regex or keyword heuristics cheap enough to run on every request;
// heavier detectors slot into the same contract at a higher tier.
package scanner

import (
	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// Confidence scores assigned to heuristic matches. Pattern scanners
// cannot measure true probability, so each pattern carries a fixed
// score reflecting how rarely it fires on benign text.
const (
	scoreCritical = 1.0
	scoreHigh     = 0.85
	scoreMedium   = 0.6
	scoreLow      = 0.35
)

// newResult assembles a ScanResult from a scanner's findings. Sanitized
// is the text with any redactable spans replaced, or the input unchanged.
func newResult(name, text string, findings []scan.Finding) scan.ScanResult {
	return scan.ScanResult{
		Scanner:   name,
		Passed:    len(findings) == 0,
		Findings:  findings,
		Sanitized: scan.MergeRedactions(text, findings),
	}
}
