// Package cel provides CEL-based request conditions for the policy engine.
package cel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/policy"
)

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single evaluation on the request path.
const evalTimeout = 100 * time.Millisecond

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles CEL expressions into policy conditions.
type Evaluator struct {
	env    *cel.Env
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator over the request environment.
func NewEvaluator(logger *slog.Logger) (*Evaluator, error) {
	env, err := NewRequestEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create request environment: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{env: env, logger: logger}, nil
}

// Compile parses and type-checks a CEL expression, returning a compiled program.
// The expression must yield a bool.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
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

// ValidateExpression checks length, nesting and that expr compiles.
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if expr == "" {
		return errors.New("expression is empty")
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}
	return nil
}

// Evaluate runs prg against one request.
func (e *Evaluator) Evaluate(prg cel.Program, d envelope.Descriptor, t policy.Target) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, BuildRequestActivation(d, t))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return b, nil
}

// Condition is a compiled, named CEL expression usable as a policy.Condition.
type Condition struct {
	name       string
	expression string
	prg        cel.Program
	eval       *Evaluator
}

var _ policy.Condition = (*Condition)(nil)

// NewCondition validates and compiles expr.
func (e *Evaluator) NewCondition(name, expr string) (*Condition, error) {
	if err := e.ValidateExpression(expr); err != nil {
		return nil, fmt.Errorf("condition %q: %w", name, err)
	}
	prg, err := e.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", name, err)
	}
	return &Condition{name: name, expression: expr, prg: prg, eval: e}, nil
}

// Name returns the condition name.
func (c *Condition) Name() string { return c.name }

// Expression returns the CEL source.
func (c *Condition) Expression() string { return c.expression }

// Matches evaluates the condition. Evaluation errors count as no match.
func (c *Condition) Matches(d envelope.Descriptor, t policy.Target) bool {
	ok, err := c.eval.Evaluate(c.prg, d, t)
	if err != nil {
		c.eval.logger.Warn("condition evaluation failed, treating as no match",
			"condition", c.name,
			"error", err,
		)
		return false
	}
	return ok
}
