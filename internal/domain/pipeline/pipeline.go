// Package pipeline executes an ordered set of scanners in cost tiers,
// fanning out within a tier, short-circuiting once a block is certain,
// and aggregating findings into a single policy decision.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aisafe-dev/aisafegate/internal/domain/policy"
	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// DefaultScannerTimeout bounds a scanner invocation when the config does
// not set one.
const DefaultScannerTimeout = 5 * time.Second

// AggregateResult is the outcome of one pipeline run. It is created per
// call, owned by the caller, and never shared across requests.
type AggregateResult struct {
	// Passed reports whether the text may proceed (Decision is not Block).
	Passed bool `json:"passed"`
	// Findings are all surviving findings in execution order: tiers in
	// ascending cost order, scanners within a tier in their fixed
	// config-declared order regardless of completion timing.
	Findings []scan.Finding `json:"findings,omitempty"`
	// Decision is the precedence-folded policy outcome across every tier
	// that actually executed.
	Decision policy.Decision `json:"decision"`
	// Sanitized is the final text after all redactions. Equals the input
	// exactly when nothing was redacted.
	Sanitized string `json:"sanitized"`
	// Timings records per-scanner execution time.
	Timings map[string]time.Duration `json:"timings,omitempty"`
	// Elapsed is the total pipeline run time.
	Elapsed time.Duration `json:"elapsed"`
}

// Redacted reports whether the run changed the text.
func (r *AggregateResult) Redacted() bool {
	return r.Decision.Kind == policy.KindRedact
}

// FailedScanners returns the ids of scanners contributing to the decision.
func (r *AggregateResult) FailedScanners() []string {
	seen := make(map[string]struct{}, len(r.Decision.Findings))
	var out []string
	for _, f := range r.Decision.Findings {
		if _, ok := seen[f.Scanner]; ok {
			continue
		}
		seen[f.Scanner] = struct{}{}
		out = append(out, f.Scanner)
	}
	return out
}

// BoundScanner pairs a scanner with its resolved tier and timeout.
type BoundScanner struct {
	Scanner scan.Scanner
	Tier    scan.Tier
	Timeout time.Duration
}

// Pipeline runs scanners for one direction. Construction fixes the scanner
// order; Run is safe for concurrent use across requests since the pipeline
// holds no per-request state.
type Pipeline struct {
	direction scan.Direction
	tiers     [3][]BoundScanner
	engine    *policy.Engine
	logger    *slog.Logger
}

// New creates a Pipeline. Scanners are grouped by tier preserving the
// given order within each tier; that order also fixes the finding merge
// order, so decisions are deterministic.
func New(direction scan.Direction, scanners []BoundScanner, engine *policy.Engine, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		direction: direction,
		engine:    engine,
		logger:    logger.With("pipeline", string(direction)),
	}
	for _, bs := range scanners {
		t := bs.Tier
		if t < scan.TierFast || t > scan.TierSlow {
			t = scan.TierFast
		}
		p.tiers[t-1] = append(p.tiers[t-1], bs)
	}
	return p
}

// Engine exposes the policy engine used by this pipeline.
func (p *Pipeline) Engine() *policy.Engine {
	return p.engine
}

// Run executes the tiers in ascending cost order and returns the
// aggregated result. Scanner failures never escape Run: timeouts and
// internal errors are converted to synthetic findings. Run returns an
// error only when ctx is cancelled, in which case partial results are
// discarded.
func (p *Pipeline) Run(ctx context.Context, text string, sctx scan.Context) (*AggregateResult, error) {
	start := time.Now()
	sctx.Direction = p.direction

	current := text
	var all []scan.Finding
	timings := make(map[string]time.Duration)

	for ti, tier := range p.tiers {
		if len(tier) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Short-circuit: once findings so far already force a block,
		// expensive later tiers never run.
		if len(all) > 0 && p.engine.Decide(all, sctx).Kind == policy.KindBlock {
			p.logger.Debug("short-circuiting remaining tiers", "tier", ti+1)
			break
		}

		results := p.runTier(ctx, tier, current, sctx)
		if err := ctx.Err(); err != nil {
			// Cancelled mid-tier: discard partial results.
			return nil, err
		}

		var tierFindings []scan.Finding
		for _, res := range results {
			timings[res.Scanner] = res.Elapsed
			tierFindings = append(tierFindings, res.Findings...)
		}
		all = append(all, tierFindings...)

		// Redactions from this tier feed the next tier's input. Spans in
		// tierFindings all refer to the same tier input text, so overlap
		// resolution is well defined.
		if redactable := p.engine.RedactionSet(tierFindings, sctx); len(redactable) > 0 {
			current = scan.MergeRedactions(current, redactable)
		}
	}

	decision := p.engine.Decide(all, sctx)
	res := &AggregateResult{
		Passed:    decision.Allowed(),
		Findings:  all,
		Decision:  decision,
		Sanitized: current,
		Timings:   timings,
		Elapsed:   time.Since(start),
	}
	p.logger.Debug("pipeline run complete",
		"decision", decision.Kind.String(),
		"findings", len(all),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// runTier fans out the tier's scanners concurrently and collects results
// indexed by declared position, so merge order never depends on timing.
func (p *Pipeline) runTier(ctx context.Context, tier []BoundScanner, text string, sctx scan.Context) []scan.ScanResult {
	results := make([]scan.ScanResult, len(tier))
	done := make(chan int, len(tier))
	for i, bs := range tier {
		go func(i int, bs BoundScanner) {
			results[i] = p.invoke(ctx, bs, text, sctx)
			done <- i
		}(i, bs)
	}
	for range tier {
		<-done
	}
	return results
}

// invoke runs one scanner bounded by its timeout. The scanner runs in its
// own goroutine so a stuck implementation cannot stall the tier; the
// buffered channel lets it finish and be collected even after we stop
// waiting.
func (p *Pipeline) invoke(ctx context.Context, bs BoundScanner, text string, sctx scan.Context) scan.ScanResult {
	timeout := bs.Timeout
	if timeout <= 0 {
		timeout = DefaultScannerTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := bs.Scanner.Name()
	type outcome struct {
		res scan.ScanResult
		err error
	}
	ch := make(chan outcome, 1)
	start := time.Now()
	go func() {
		res, err := bs.Scanner.Scan(cctx, text, sctx)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case o := <-ch:
		elapsed := time.Since(start)
		if o.err != nil {
			// A ctx-aware scanner surfaces its own timeout as a context
			// error; classify it the same as an unresponsive one.
			if errors.Is(o.err, context.DeadlineExceeded) || errors.Is(o.err, context.Canceled) {
				if ctx.Err() != nil {
					return scan.ScanResult{Scanner: name, Passed: true, Elapsed: elapsed}
				}
				p.logger.Warn("scanner timed out", "scanner", name, "timeout", timeout)
				return syntheticResult(name, scan.CategoryScannerTimeout, "scanner exceeded its timeout", elapsed)
			}
			p.logger.Warn("scanner failed", "scanner", name, "error", o.err)
			return syntheticResult(name, scan.CategoryScannerError, "scanner error: "+o.err.Error(), elapsed)
		}
		o.res.Scanner = name
		o.res.Elapsed = elapsed
		return o.res
	case <-cctx.Done():
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			// Request cancelled: a cancelled scanner contributes no finding.
			return scan.ScanResult{Scanner: name, Passed: true, Elapsed: elapsed}
		}
		p.logger.Warn("scanner timed out", "scanner", name, "timeout", timeout)
		return syntheticResult(name, scan.CategoryScannerTimeout, "scanner exceeded its timeout", elapsed)
	}
}

func syntheticResult(scanner, category, msg string, elapsed time.Duration) scan.ScanResult {
	return scan.ScanResult{
		Scanner: scanner,
		Passed:  false,
		Findings: []scan.Finding{{
			Scanner:  scanner,
			Category: category,
			Score:    1.0,
			Start:    scan.NoSpan,
			End:      scan.NoSpan,
			Message:  msg,
		}},
		Elapsed: elapsed,
	}
}
