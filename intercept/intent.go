// Package intercept maps declarative cache intents onto the cacheaside
// engine. A call site declares intents once (a Plan), then routes its calls
// through an Interceptor which evaluates conditions, resolves keys and
// drives the engine, composing results back into the caller's return value.
package intercept

import (
	"fmt"

	"github.com/expr-lang/expr/vm"

	"github.com/unkn0wn-root/cacheaside"
)

// Kind selects the cache behavior of one Intent.
type Kind int

const (
	// KindCacheable checks the cache first and loads on miss.
	KindCacheable Kind = iota
	// KindPut always runs the call and writes its result.
	KindPut
	// KindEvict removes one key or a whole namespace, before or after the
	// call depending on BeforeInvocation.
	KindEvict
)

func (k Kind) String() string {
	switch k {
	case KindCacheable:
		return "cacheable"
	case KindPut:
		return "put"
	case KindEvict:
		return "evict"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Intent declares one cache behavior attached to a protected call.
type Intent struct {
	Kind Kind

	// Namespaces to operate on; the first non-empty entry wins. At least
	// one is required - validated when the Plan is built, not per call.
	Namespaces []string

	// Key is the key expression. Empty means the default method-derived
	// key policy.
	Key string

	// Condition gates the intent. Empty means always on.
	Condition string

	// AllEntries makes an evict intent clear the whole namespace instead
	// of one key.
	AllEntries bool

	// BeforeInvocation runs an evict intent before the business call.
	BeforeInvocation bool
}

// Cacheable declares a get-or-load intent.
func Cacheable(namespace, keyExpr string) Intent {
	return Intent{Kind: KindCacheable, Namespaces: []string{namespace}, Key: keyExpr}
}

// Put declares a write-through intent.
func Put(namespace, keyExpr string) Intent {
	return Intent{Kind: KindPut, Namespaces: []string{namespace}, Key: keyExpr}
}

// Evict declares a single-key eviction after the call.
func Evict(namespace, keyExpr string) Intent {
	return Intent{Kind: KindEvict, Namespaces: []string{namespace}, Key: keyExpr}
}

// EvictAll declares a namespace-wide eviction after the call.
func EvictAll(namespace string) Intent {
	return Intent{Kind: KindEvict, Namespaces: []string{namespace}, AllEntries: true}
}

// Before marks an evict intent as before-invocation.
func (it Intent) Before() Intent {
	it.BeforeInvocation = true
	return it
}

// When sets the condition expression.
func (it Intent) When(conditionExpr string) Intent {
	it.Condition = conditionExpr
	return it
}

type compiledIntent struct {
	Intent
	ns        string
	key       *vm.Program // nil when Key is empty
	condition *vm.Program // nil when Condition is empty
}

// Plan is a validated, compiled set of intents for one call boundary.
// Build it once per declaration; it is immutable and safe for concurrent
// use.
type Plan struct {
	intents []compiledIntent
}

// NewPlan validates the declaration and compiles its expressions eagerly,
// so configuration mistakes (missing namespace, malformed expression
// syntax) surface at declaration time rather than mid-call.
func NewPlan(intents ...Intent) (*Plan, error) {
	if len(intents) == 0 {
		return nil, &cacheaside.ConfigError{Reason: "plan: at least one intent is required"}
	}
	compiled := make([]compiledIntent, 0, len(intents))
	for _, it := range intents {
		ci := compiledIntent{Intent: it}

		ns, ok := firstNonEmpty(it.Namespaces)
		if !ok {
			return nil, &cacheaside.ConfigError{
				Reason: fmt.Sprintf("%s intent: cache namespace must be specified", it.Kind),
			}
		}
		ci.ns = ns

		var err error
		if it.Key != "" {
			if ci.key, err = compile(it.Key); err != nil {
				return nil, &cacheaside.ConfigError{
					Reason: fmt.Sprintf("%s intent: invalid key expression %q: %v", it.Kind, it.Key, err),
				}
			}
		}
		if it.Condition != "" {
			if ci.condition, err = compile(it.Condition); err != nil {
				return nil, &cacheaside.ConfigError{
					Reason: fmt.Sprintf("%s intent: invalid condition expression %q: %v", it.Kind, it.Condition, err),
				}
			}
		}
		compiled = append(compiled, ci)
	}
	return &Plan{intents: compiled}, nil
}

// MustPlan is like NewPlan but panics on error. Declarations are static per
// method, so a panic here is a startup-time programming error.
func MustPlan(intents ...Intent) *Plan {
	p, err := NewPlan(intents...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Plan) single() (compiledIntent, bool) {
	if len(p.intents) == 1 {
		return p.intents[0], true
	}
	return compiledIntent{}, false
}

func firstNonEmpty(names []string) (string, bool) {
	for _, n := range names {
		if n != "" {
			return n, true
		}
	}
	return "", false
}
