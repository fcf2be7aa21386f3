package rules

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

type exprRule struct {
	source  string
	program *exprvm.Program
}

func compileExpr(source string) (Rule, error) {
	program, err := exprlang.Compile(source,
		exprlang.Env(vars("")),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("rules: compile expr: %w", err)
	}
	return &exprRule{source: source, program: program}, nil
}

func (r *exprRule) Engine() string { return EngineExpr }
func (r *exprRule) Source() string { return r.source }

func (r *exprRule) Check(pointer string) error {
	out, err := exprlang.Run(r.program, vars(pointer))
	if err != nil {
		return fmt.Errorf("rules: eval expr: %w", err)
	}
	return verdict(EngineExpr, r.source, out)
}
