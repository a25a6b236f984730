// Package celcond compiles CEL suppression expressions from scanner
// policy configuration into predicates the policy engine can apply to
// individual findings.
package celcond

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/aisafe-dev/aisafegate/internal/domain/policy"
	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// maxExpressionLength caps suppress_if expression size.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion.
const maxCostBudget = 100_000

// maxNestingDepth caps parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single expression evaluation.
const evalTimeout = time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates CEL suppression expressions.
type Evaluator struct {
	env *cel.Env
}

// newSuppressionEnvironment creates a CEL environment exposing the
// finding and request attributes available to suppress_if expressions:
// scanner, category, score, message, direction, and identity.
func newSuppressionEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("scanner", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("message", cel.StringType),
		cel.Variable("direction", cel.StringType),
		cel.Variable("identity", cel.StringType),
	)
}

// NewEvaluator creates a new CEL evaluator with the suppression environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := newSuppressionEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create suppression environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// ValidateExpression checks that a suppress_if expression is
// syntactically valid and within the safety limits.
func (e *Evaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}
	return nil
}

// CompileSuppression compiles expr into a predicate over findings.
// The predicate fails open: an evaluation error keeps the finding.
func (e *Evaluator) CompileSuppression(expr string) (policy.SuppressFunc, error) {
	prg, err := e.compile(expr)
	if err != nil {
		return nil, err
	}

	return func(f scan.Finding, sctx scan.Context) bool {
		ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
		defer cancel()

		result, _, err := prg.ContextEval(ctx, map[string]any{
			"scanner":   f.Scanner,
			"category":  f.Category,
			"score":     f.Score,
			"message":   f.Message,
			"direction": string(sctx.Direction),
			"identity":  sctx.Identity,
		})
		if err != nil {
			return false
		}
		b, ok := result.Value().(bool)
		return ok && b
	}, nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return prg, nil
}

// validateNesting checks that the expression does not exceed the
// maximum allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}
