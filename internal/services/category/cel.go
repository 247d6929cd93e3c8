package category

import (
	"encoding/json"
	"fmt"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/google/cel-go/cel"
)

// CELEngine compiles and evaluates attribute constraints.
// Expressions see the attribute as `value` and its key as `key`.
type CELEngine struct {
	env *cel.Env
}

// NewCELEngine creates a new CEL engine with the constraint declarations
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("key", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELEngine{
		env: env,
	}, nil
}

// Compile checks that expression is a boolean constraint and returns its program
func (e *CELEngine) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid CEL expression: %w", issues.Err())
	}

	// dyn inputs leave the output type open; anything else must be bool
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("CEL expression must return boolean, got: %s", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return program, nil
}

// ValidateExpression validates a CEL expression without evaluating it
func (e *CELEngine) ValidateExpression(expression string) error {
	_, err := e.Compile(expression)
	return err
}

// Evaluate compiles and runs expression against a single attribute
func (e *CELEngine) Evaluate(expression string, key string, value entities.TypedValue) (bool, error) {
	program, err := e.Compile(expression)
	if err != nil {
		return false, err
	}
	return Run(program, key, value)
}

// Run evaluates a compiled constraint
func Run(program cel.Program, key string, value entities.TypedValue) (bool, error) {
	native, err := celValue(value)
	if err != nil {
		return false, err
	}

	result, _, err := program.Eval(map[string]interface{}{
		"value": native,
		"key":   key,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	ok, isBool := result.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("CEL expression did not evaluate to boolean, got: %T", result.Value())
	}
	return ok, nil
}

// celValue converts a typed value into something the CEL type adapter understands
func celValue(v entities.TypedValue) (interface{}, error) {
	raw, ok := v.JSON()
	if !ok {
		return v.Interface(), nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode json attribute: %w", err)
	}
	return decoded, nil
}
