// Package rules compiles operator-supplied admission rules for metadata
// pointers. A rule is an expression over the variables
//
//	pointer  string  the payload or new pointer
//	size     int     len(pointer) in bytes
//	scheme   string  the part before "://", or "" if there is none
//
// that must evaluate to a boolean. Engines: "expr" (expr-lang), "cel"
// (cel-go) and "js" (goja).
package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRejected is wrapped by Check when a rule evaluates to false.
var ErrRejected = errors.New("rules: pointer rejected")

const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// Rule is a compiled admission rule. Implementations are safe for concurrent use.
type Rule interface {
	Engine() string
	Source() string
	// Check returns nil if pointer is admitted, an error wrapping
	// ErrRejected if the rule says no, or another error if evaluation failed.
	Check(pointer string) error
}

// Compile parses source for engine.
func Compile(engine, source string) (Rule, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("rules: %s rule source must not be empty", engine)
	}
	switch engine {
	case EngineExpr:
		return compileExpr(source)
	case EngineCEL:
		return compileCEL(source)
	case EngineJS:
		return compileJS(source)
	default:
		return nil, fmt.Errorf("rules: unknown engine %q", engine)
	}
}

// Func adapts r for registry.WithPointerCheck. A nil rule admits everything.
func Func(r Rule) func(string) error {
	if r == nil {
		return nil
	}
	return r.Check
}

func vars(pointer string) map[string]any {
	scheme, _, ok := strings.Cut(pointer, "://")
	if !ok {
		scheme = ""
	}
	return map[string]any{
		"pointer": pointer,
		"size":    len(pointer),
		"scheme":  scheme,
	}
}

func verdict(engine, source string, out any) error {
	ok, isBool := out.(bool)
	if !isBool {
		return fmt.Errorf("rules: %s rule %q returned %T, want bool", engine, source, out)
	}
	if !ok {
		return fmt.Errorf("%w by %s rule %q", ErrRejected, engine, source)
	}
	return nil
}
