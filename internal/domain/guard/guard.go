// Package guard assembles the input and output scan pipelines from
// configuration and exposes the scanning entry points used by the proxy
// and the CLI.
package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/aisafe-dev/aisafegate/internal/config"
	"github.com/aisafe-dev/aisafegate/internal/domain/pipeline"
	"github.com/aisafe-dev/aisafegate/internal/domain/policy"
	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
	"github.com/aisafe-dev/aisafegate/internal/scanner"
)

// defaultThreshold applies when a scanner config leaves threshold unset.
const defaultThreshold = 0.5

// SuppressionCompiler compiles suppress_if expressions into predicates.
// Implemented by the CEL adapter.
type SuppressionCompiler interface {
	CompileSuppression(expr string) (policy.SuppressFunc, error)
}

// ModelFunc produces a model response for a prompt. Used by Wrap to
// guard an arbitrary model call.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// Guard runs the input and output pipelines and applies policy.
type Guard struct {
	input  *pipeline.Pipeline
	output *pipeline.Pipeline
	logger *slog.Logger
}

// New builds a Guard from configuration. Unknown scanner ids, scanners
// declared for the wrong direction, and invalid suppress_if expressions
// are configuration errors.
func New(cfg *config.Config, compiler SuppressionCompiler, logger *slog.Logger) (*Guard, error) {
	failAction, err := policy.ParseAction(cfg.Settings.FailAction)
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid fail_action: " + err.Error()}
	}

	input, err := buildPipeline(scan.DirectionInput, cfg.Input, failAction, compiler, logger)
	if err != nil {
		return nil, err
	}
	output, err := buildPipeline(scan.DirectionOutput, cfg.Output, failAction, compiler, logger)
	if err != nil {
		return nil, err
	}

	return &Guard{input: input, output: output, logger: logger}, nil
}

// buildPipeline assembles one direction's pipeline. Scanners run in
// catalog order regardless of YAML map iteration order, so results are
// deterministic across runs.
func buildPipeline(
	dir scan.Direction,
	configs map[string]config.ScannerConfig,
	failAction policy.Action,
	compiler SuppressionCompiler,
	logger *slog.Logger,
) (*pipeline.Pipeline, error) {
	for id := range configs {
		if !scanner.Known(id) {
			return nil, &ConfigurationError{Scanner: id, Reason: "unknown scanner"}
		}
		if !scanner.AppliesTo(id, dir) {
			return nil, &ConfigurationError{Scanner: id, Reason: "not applicable to " + string(dir) + " scanning"}
		}
	}

	var bound []pipeline.BoundScanner
	policies := make(map[string]policy.ScannerPolicy, len(configs))

	for _, id := range scanner.IDs() {
		sc, declared := configs[id]
		if !declared || !sc.IsEnabled() {
			continue
		}

		s, err := scanner.Build(id, scanner.Settings{
			Entities:     sc.Entities,
			BannedTopics: sc.BannedTopics,
			MinRelevance: sc.MinRelevance,
		})
		if err != nil {
			return nil, &ConfigurationError{Scanner: id, Reason: err.Error()}
		}

		tier := scanner.DefaultTier(id)
		if sc.Tier != 0 {
			tier = scan.Tier(sc.Tier)
		}

		timeout := pipeline.DefaultScannerTimeout
		if sc.Timeout != "" {
			timeout, err = time.ParseDuration(sc.Timeout)
			if err != nil {
				return nil, &ConfigurationError{Scanner: id, Reason: "invalid timeout: " + err.Error()}
			}
		}

		threshold := sc.Threshold
		if threshold == 0 {
			threshold = defaultThreshold
		}

		var suppress policy.SuppressFunc
		if sc.SuppressIf != "" {
			if compiler == nil {
				return nil, &ConfigurationError{Scanner: id, Reason: "suppress_if requires a suppression compiler"}
			}
			suppress, err = compiler.CompileSuppression(sc.SuppressIf)
			if err != nil {
				return nil, &ConfigurationError{Scanner: id, Reason: "invalid suppress_if: " + err.Error()}
			}
		}

		action, err := policy.ParseAction(sc.Action)
		if err != nil {
			return nil, &ConfigurationError{Scanner: id, Reason: err.Error()}
		}

		bound = append(bound, pipeline.BoundScanner{Scanner: s, Tier: tier, Timeout: timeout})
		policies[id] = policy.ScannerPolicy{
			Threshold: threshold,
			Action:    action,
			Suppress:  suppress,
		}
	}

	engine := policy.NewEngine(policies, failAction)
	return pipeline.New(dir, bound, engine, logger), nil
}

// ScanInput runs text through the input pipeline.
func (g *Guard) ScanInput(ctx context.Context, text, identity string) (*pipeline.AggregateResult, error) {
	sctx := scan.Context{Direction: scan.DirectionInput, Identity: identity}
	res, err := g.input.Run(ctx, text, sctx)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("input scan completed",
		"passed", res.Passed,
		"findings", len(res.Findings),
		"elapsed", res.Elapsed)
	return res, nil
}

// ScanOutput runs text through the output pipeline. inputText is the
// original prompt, made available to context-aware scanners.
func (g *Guard) ScanOutput(ctx context.Context, text, identity, inputText string) (*pipeline.AggregateResult, error) {
	sctx := scan.Context{Direction: scan.DirectionOutput, Identity: identity, InputText: inputText}
	res, err := g.output.Run(ctx, text, sctx)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("output scan completed",
		"passed", res.Passed,
		"findings", len(res.Findings),
		"elapsed", res.Elapsed)
	return res, nil
}

// Wrap guards an arbitrary model call: the prompt is scanned (and
// possibly redacted) before fn runs, and fn's response is scanned (and
// possibly redacted) before it is returned. A blocking decision on
// either side returns a PolicyViolationError; a blocked input never
// reaches fn.
func (g *Guard) Wrap(ctx context.Context, prompt string, fn ModelFunc) (string, error) {
	in, err := g.ScanInput(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	if !in.Passed {
		return "", &PolicyViolationError{Direction: scan.DirectionInput, Decision: in.Decision}
	}

	response, err := fn(ctx, in.Sanitized)
	if err != nil {
		return "", err
	}

	out, err := g.ScanOutput(ctx, response, "", in.Sanitized)
	if err != nil {
		return "", err
	}
	if !out.Passed {
		return "", &PolicyViolationError{Direction: scan.DirectionOutput, Decision: out.Decision}
	}
	return out.Sanitized, nil
}
