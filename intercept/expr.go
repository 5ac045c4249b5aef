package intercept

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// resultVar is the reserved variable exposing the call's return value to
// put and evict-after expressions.
const resultVar = "result"

// programs caches compiled expressions process-wide, keyed by the exact
// source string. Insert-if-absent: a racing first use may compile the same
// source twice, but one program is retained and shared by all callers. The
// set of distinct expressions is bounded by source code, so the cache never
// needs eviction.
var programs sync.Map // string -> *vm.Program

func compile(src string) (*vm.Program, error) {
	if p, ok := programs.Load(src); ok {
		return p.(*vm.Program), nil
	}
	p, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	actual, _ := programs.LoadOrStore(src, p)
	return actual.(*vm.Program), nil
}

// Invocation is the call context expressions evaluate against.
type Invocation struct {
	// Method is the declared name of the protected call. It anchors the
	// default key, so it must be unique per protected method.
	Method string

	// Target is the receiver, exposed to expressions as "target".
	Target any

	// Params are the declared parameter names, positionally aligned with
	// Args. Missing or empty names leave only the positional binding.
	Params []string

	// Args are the call's argument values.
	Args []any
}

// env builds the variable bindings for one evaluation: target, method, the
// args slice, each argument under its declared name and under p0..pN, and -
// when withResult - the call's return value under "result".
func (inv Invocation) env(result any, withResult bool) map[string]any {
	e := map[string]any{
		"method": inv.Method,
		"target": inv.Target,
		"args":   inv.Args,
	}
	for i, a := range inv.Args {
		e[fmt.Sprintf("p%d", i)] = a
		if i < len(inv.Params) && inv.Params[i] != "" {
			e[inv.Params[i]] = a
		}
	}
	if withResult {
		e[resultVar] = result
	}
	return e
}

// evalKey runs a key expression. Non-string results are rendered in their
// natural string form; a nil result is an evaluation failure.
func evalKey(p *vm.Program, env map[string]any) (string, error) {
	out, err := expr.Run(p, env)
	if err != nil {
		return "", err
	}
	switch v := out.(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("key expression yielded nil")
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// evalCondition runs a condition expression. Anything but a bool result is
// an evaluation failure (the caller fails open to true).
func evalCondition(p *vm.Program, env map[string]any) (bool, error) {
	out, err := expr.Run(p, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition yielded %T, want bool", out)
	}
	return b, nil
}
