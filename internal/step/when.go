// internal/step/when.go
package step

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// CompileWhen compiles a when expression against env. Unknown variables are
// compile errors, so typos surface at validation time.
func CompileWhen(expression string, env map[string]any) (*vm.Program, error) {
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile when %q: %w", expression, err)
	}
	return program, nil
}

// EvalWhen evaluates a when expression. An empty expression is true.
func EvalWhen(expression string, env map[string]any) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true, nil
	}
	program, err := CompileWhen(expression, env)
	if err != nil {
		return false, err
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval when %q: %w", expression, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("when %q did not return bool (got %T)", expression, output)
	}
	return result, nil
}
