package rules

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
)

type celRule struct {
	source  string
	program celgo.Program
}

func compileCEL(source string) (Rule, error) {
	env, err := celgo.NewEnv(
		celgo.Variable("pointer", celgo.StringType),
		celgo.Variable("size", celgo.IntType),
		celgo.Variable("scheme", celgo.StringType),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Parse(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rules: parse cel: %w", issues.Err())
	}
	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rules: check cel: %w", issues.Err())
	}
	if !checked.OutputType().IsExactType(celgo.BoolType) {
		return nil, fmt.Errorf("rules: cel rule %q has type %s, want bool", source, checked.OutputType())
	}
	prg, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &celRule{source: source, program: prg}, nil
}

func (r *celRule) Engine() string { return EngineCEL }
func (r *celRule) Source() string { return r.source }

func (r *celRule) Check(pointer string) error {
	in := vars(pointer)
	in["size"] = int64(len(pointer))
	out, _, err := r.program.Eval(in)
	if err != nil {
		return fmt.Errorf("rules: eval cel: %w", err)
	}
	return verdict(EngineCEL, r.source, out.Value())
}
