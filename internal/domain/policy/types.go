// Package policy maps aggregated scan findings to a single enforcement
// decision under a fixed precedence: Block > Redact > Warn > Allow.
package policy

import (
	"fmt"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// Action is the configured enforcement action for a scanner's findings.
type Action string

const (
	// ActionBlock rejects the request or response outright.
	ActionBlock Action = "block"
	// ActionWarn lets the text through but flags the findings.
	ActionWarn Action = "warn"
	// ActionLog records the findings without affecting the outcome.
	ActionLog Action = "log"
	// ActionRedact replaces the flagged spans with placeholders.
	ActionRedact Action = "redact"
)

// ParseAction converts a config string to an Action.
// The empty string defaults to ActionBlock (fail-safe).
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionBlock, ActionWarn, ActionLog, ActionRedact:
		return Action(s), nil
	case "":
		return ActionBlock, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Kind is the precedence-resolved outcome of policy evaluation.
// Ordering is significant: higher values take precedence.
type Kind int

const (
	// KindAllow permits the text unchanged.
	KindAllow Kind = iota
	// KindWarn permits the text but carries the warning findings.
	KindWarn
	// KindRedact permits a sanitized version of the text.
	KindRedact
	// KindBlock rejects the text.
	KindBlock
)

// String returns the lowercase name of the decision kind.
func (k Kind) String() string {
	switch k {
	case KindWarn:
		return "warn"
	case KindRedact:
		return "redact"
	case KindBlock:
		return "block"
	default:
		return "allow"
	}
}

// level maps an action to the decision level it contributes.
// ActionLog observes without affecting the outcome, so it maps to Allow.
func (a Action) level() Kind {
	switch a {
	case ActionBlock:
		return KindBlock
	case ActionRedact:
		return KindRedact
	case ActionWarn:
		return KindWarn
	default:
		return KindAllow
	}
}

// Decision is the outcome of evaluating a set of findings. Findings holds
// the full causing set: every finding whose action sits at the winning
// precedence level, so a Block explains all contributing violations.
type Decision struct {
	Kind     Kind
	Findings []scan.Finding
	Reason   string
}

// Allowed reports whether the scanned text may proceed (possibly redacted).
func (d Decision) Allowed() bool {
	return d.Kind != KindBlock
}

// SuppressFunc decides whether a finding should be discarded before policy
// evaluation. Compiled from a config-supplied CEL expression at guard
// construction; evaluated per finding with no side effects.
type SuppressFunc func(f scan.Finding, sctx scan.Context) bool

// ScannerPolicy is the resolved per-scanner policy consulted by Decide.
type ScannerPolicy struct {
	// Threshold filters out findings scoring below it.
	Threshold float64
	// Action is the enforcement action for this scanner's findings.
	Action Action
	// Suppress optionally discards individual findings. Nil means none.
	Suppress SuppressFunc
}
