package policy

import (
	"fmt"
	"strings"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// Engine resolves findings to a Decision. It has no hidden state and
// performs no I/O: identical findings and policies always yield an
// identical Decision.
type Engine struct {
	policies map[string]ScannerPolicy
	// failAction is applied to synthetic findings (scanner timeouts and
	// internal errors) and to findings from scanners with no entry in
	// policies. Warn for fail-open pipelines, Block for fail-closed.
	failAction Action
}

// NewEngine creates an Engine over the given per-scanner policies.
func NewEngine(policies map[string]ScannerPolicy, failAction Action) *Engine {
	if policies == nil {
		policies = map[string]ScannerPolicy{}
	}
	return &Engine{policies: policies, failAction: failAction}
}

// ActionFor returns the configured action for a scanner id, falling back
// to the engine's fail action for unknown scanners.
func (e *Engine) ActionFor(scanner string) Action {
	if p, ok := e.policies[scanner]; ok {
		return p.Action
	}
	return e.failAction
}

// Decide evaluates findings in order and returns the precedence-resolved
// Decision. Findings below their scanner's threshold are filtered out
// before evaluation, as are findings matched by a suppression rule.
// Synthetic findings (timeouts, scanner errors) bypass both filters and
// contribute at the engine's fail action level.
func (e *Engine) Decide(findings []scan.Finding, sctx scan.Context) Decision {
	winning := KindAllow
	actions := make([]Action, 0, len(findings))
	kept := make([]scan.Finding, 0, len(findings))

	for _, f := range findings {
		var act Action
		if f.Synthetic() {
			act = e.failAction
		} else {
			p, ok := e.policies[f.Scanner]
			if !ok {
				act = e.failAction
			} else {
				if f.Score < p.Threshold {
					continue
				}
				if p.Suppress != nil && p.Suppress(f, sctx) {
					continue
				}
				act = p.Action
			}
		}
		kept = append(kept, f)
		actions = append(actions, act)
		if lvl := act.level(); lvl > winning {
			winning = lvl
		}
	}

	// The causing set is every kept finding at the winning level,
	// preserving insertion order.
	causing := make([]scan.Finding, 0, len(kept))
	for i, f := range kept {
		if actions[i].level() == winning {
			causing = append(causing, f)
		}
	}
	if winning == KindAllow {
		// An Allow decision carries no causing findings; log-level
		// findings are reported via the aggregate result, not the decision.
		causing = nil
	}

	return Decision{
		Kind:     winning,
		Findings: causing,
		Reason:   reason(winning, causing),
	}
}

// RedactionSet returns the findings that should drive redaction: those
// surviving the threshold and suppression filters whose scanner action is
// redact. The pipeline feeds the result to scan.MergeRedactions.
func (e *Engine) RedactionSet(findings []scan.Finding, sctx scan.Context) []scan.Finding {
	var out []scan.Finding
	for _, f := range findings {
		if f.Synthetic() {
			continue
		}
		p, ok := e.policies[f.Scanner]
		if !ok || p.Action != ActionRedact {
			continue
		}
		if f.Score < p.Threshold {
			continue
		}
		if p.Suppress != nil && p.Suppress(f, sctx) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func reason(k Kind, causing []scan.Finding) string {
	if k == KindAllow {
		return ""
	}
	seen := make(map[string]struct{}, len(causing))
	names := make([]string, 0, len(causing))
	for _, f := range causing {
		if _, ok := seen[f.Scanner]; ok {
			continue
		}
		seen[f.Scanner] = struct{}{}
		names = append(names, f.Scanner)
	}
	return fmt.Sprintf("%s by scanners: %s", k, strings.Join(names, ", "))
}
