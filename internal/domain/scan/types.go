// Package scan contains the core domain types for content scanning:
// findings, per-scanner results, aggregated pipeline results, and the
// Scanner capability contract that all scanner implementations satisfy.
package scan

import (
	"context"
	"time"
)

// Direction indicates which side of the model call is being scanned.
type Direction string

const (
	// DirectionInput scans user-supplied text before it reaches the model.
	DirectionInput Direction = "input"
	// DirectionOutput scans model responses before they reach the caller.
	DirectionOutput Direction = "output"
)

// Tier is a scanner cost class. Tier 1 scanners run first; higher tiers
// only run when cheaper tiers have not already forced a block.
type Tier int

const (
	// TierFast covers regex and rule-based scanners (<5ms).
	TierFast Tier = 1
	// TierMedium covers local ML classifiers (20-50ms).
	TierMedium Tier = 2
	// TierSlow covers LLM-as-judge and remote API checks (100-500ms).
	TierSlow Tier = 3
)

// NoSpan marks a Finding without position information.
const NoSpan = -1

// Synthetic finding categories produced by the pipeline itself when a
// scanner misbehaves. They bypass threshold filtering in the policy engine.
const (
	// CategoryScannerTimeout is attached when a scanner exceeds its timeout.
	CategoryScannerTimeout = "scanner_timeout"
	// CategoryScannerError is attached when a scanner returns an error.
	CategoryScannerError = "scanner_error"
)

// Finding is a single issue flagged by a scanner. Immutable once produced.
type Finding struct {
	// Scanner is the id of the scanner that produced this finding.
	Scanner string `json:"scanner"`
	// Category classifies the finding (e.g. "pii", "prompt_injection").
	Category string `json:"category"`
	// Score is the confidence of the finding in [0,1]. Findings below
	// their scanner's configured threshold are ignored by the policy engine.
	Score float64 `json:"score"`
	// Start and End are byte offsets of the flagged span in the scanned
	// text, or NoSpan when the finding has no position.
	Start int `json:"start"`
	End   int `json:"end"`
	// Message is a human-readable description of the finding.
	Message string `json:"message"`
	// Redaction is the suggested replacement for the flagged span,
	// e.g. "[SSN_REDACTED]". Empty when the finding is not redactable.
	Redaction string `json:"redaction,omitempty"`
}

// HasSpan reports whether the finding carries position information.
func (f Finding) HasSpan() bool {
	return f.Start != NoSpan && f.End > f.Start
}

// Synthetic reports whether the finding was produced by the pipeline
// rather than by a scanner (timeout or internal error).
func (f Finding) Synthetic() bool {
	return f.Category == CategoryScannerTimeout || f.Category == CategoryScannerError
}

// ScanResult is the outcome of a single scanner invocation.
type ScanResult struct {
	// Scanner is the id of the scanner that produced this result.
	Scanner string `json:"scanner"`
	// Passed is true when the scanner found nothing.
	Passed bool `json:"passed"`
	// Findings are the issues flagged by this scanner, in detection order.
	Findings []Finding `json:"findings,omitempty"`
	// Sanitized is the scanner's proposed redacted text, empty when the
	// scanner proposes no redaction.
	Sanitized string `json:"sanitized,omitempty"`
	// Elapsed is how long the scanner invocation took.
	Elapsed time.Duration `json:"elapsed"`
}

// Context carries per-request information into scanner invocations.
// Scanners must treat it as read-only.
type Context struct {
	// Direction is the side of the model call being scanned.
	Direction Direction
	// Identity is the caller-attributable key for this request, when known.
	Identity string
	// InputText is the original user prompt. Populated for output scans so
	// context-aware scanners (e.g. relevance) can compare against it.
	InputText string
}

// Scanner is the uniform capability contract consumed by the pipeline.
// Implementations vary (regex heuristics, classifiers, judges); the
// pipeline never branches on the concrete type. Scan must not mutate its
// input and must honor ctx cancellation where it can block.
type Scanner interface {
	// Name returns the scanner id used in config, findings, and telemetry.
	Name() string
	// Scan inspects text and returns a result. Returned errors are
	// contained by the pipeline and converted to synthetic findings.
	Scan(ctx context.Context, text string, sctx Context) (ScanResult, error)
}
