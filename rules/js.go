package rules

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// JSTimeout bounds a single js rule evaluation.
var JSTimeout = 100 * time.Millisecond

type jsRule struct {
	source  string
	program *goja.Program
}

func compileJS(source string) (Rule, error) {
	program, err := goja.Compile("rule", fmt.Sprintf("(function(){ return (%s); })()", source), true)
	if err != nil {
		return nil, fmt.Errorf("rules: compile js: %w", err)
	}
	return &jsRule{source: source, program: program}, nil
}

func (r *jsRule) Engine() string { return EngineJS }
func (r *jsRule) Source() string { return r.source }

// Check runs the program in a fresh runtime; goja runtimes are not safe for
// concurrent use.
func (r *jsRule) Check(pointer string) error {
	vm := goja.New()
	for k, v := range vars(pointer) {
		if err := vm.Set(k, v); err != nil {
			return err
		}
	}
	timer := time.AfterFunc(JSTimeout, func() { vm.Interrupt("rule timed out") })
	defer timer.Stop()

	value, err := vm.RunProgram(r.program)
	if err != nil {
		return fmt.Errorf("rules: eval js: %w", err)
	}
	return verdict(EngineJS, r.source, value.Export())
}
