package intercept

import (
	"context"
	"time"

	"github.com/unkn0wn-root/cacheaside"
)

const defaultTTL = 10 * time.Minute

// Func is the protected business call, deferred so the dispatcher controls
// when (and whether) it runs. ok=false is the absent result.
type Func[V any] func(ctx context.Context) (V, bool, error)

// Interceptor drives a Cache[V] from declared intents at call boundaries.
// One Interceptor serves any number of Plans for the same value type.
type Interceptor[V any] struct {
	cache      cacheaside.Cache[V]
	ttls       *cacheaside.TTLRegistry
	log        cacheaside.Logger
	hooks      cacheaside.Hooks
	defaultTTL time.Duration
}

// Options configure an Interceptor. Only Cache is required.
type Options[V any] struct {
	Cache cacheaside.Cache[V]

	// TTLs resolves per-namespace TTLs; nil means every namespace uses
	// DefaultTTL.
	TTLs *cacheaside.TTLRegistry

	Logger     cacheaside.Logger
	Hooks      cacheaside.Hooks
	DefaultTTL time.Duration // fallback for unregistered namespaces; 0 => 10m
}

func New[V any](opts Options[V]) (*Interceptor[V], error) {
	if opts.Cache == nil {
		return nil, &cacheaside.ConfigError{Reason: "interceptor: cache is required"}
	}
	ic := &Interceptor[V]{
		cache:      opts.Cache,
		ttls:       opts.TTLs,
		log:        opts.Logger,
		hooks:      opts.Hooks,
		defaultTTL: opts.DefaultTTL,
	}
	if ic.log == nil {
		ic.log = cacheaside.NopLogger{}
	}
	if ic.hooks == nil {
		ic.hooks = cacheaside.NopHooks{}
	}
	if ic.defaultTTL == 0 {
		ic.defaultTTL = defaultTTL
	}
	return ic, nil
}

// Execute runs fn under the plan's intents. The business call runs exactly
// once for put/evict/composite plans and zero-or-one times for a lone
// cacheable plan (zero on a cache hit). Business errors propagate
// unchanged; cache failures never surface.
func (ic *Interceptor[V]) Execute(ctx context.Context, plan *Plan, inv Invocation, fn Func[V]) (V, bool, error) {
	if plan == nil || len(plan.intents) == 0 {
		return fn(ctx)
	}
	if ci, ok := plan.single(); ok {
		switch ci.Kind {
		case KindCacheable:
			return ic.runCacheable(ctx, ci, inv, fn)
		case KindPut:
			return ic.runPut(ctx, ci, inv, fn)
		case KindEvict:
			return ic.runEvict(ctx, ci, inv, fn)
		}
	}
	return ic.runComposite(ctx, plan, inv, fn)
}

// Wrap decorates fn with the plan. The returned function binds each call's
// arguments into the Invocation so expressions and the default key see them.
func (ic *Interceptor[V]) Wrap(plan *Plan, method string, target any, params []string, fn func(ctx context.Context, args ...any) (V, bool, error)) func(ctx context.Context, args ...any) (V, bool, error) {
	return func(ctx context.Context, args ...any) (V, bool, error) {
		inv := Invocation{Method: method, Target: target, Params: params, Args: args}
		return ic.Execute(ctx, plan, inv, func(ctx context.Context) (V, bool, error) {
			return fn(ctx, args...)
		})
	}
}

func (ic *Interceptor[V]) runCacheable(ctx context.Context, ci compiledIntent, inv Invocation, fn Func[V]) (V, bool, error) {
	if !ic.condition(ci, inv, nil, false) {
		ic.log.Debug("cacheable condition not met, executing directly", cacheaside.Fields{"method": inv.Method})
		return fn(ctx)
	}
	key := ic.resolveKey(ci, inv, nil, false)
	return ic.cache.Cacheable(ctx, ci.ns, key, cacheaside.Loader[V](fn), ic.resolveTTL(ci.ns))
}

// runPut executes the call once, then evaluates condition and key with the
// result bound, so "result"-referencing expressions work on the single-put
// path too. The engine's loader receives the already-computed result.
func (ic *Interceptor[V]) runPut(ctx context.Context, ci compiledIntent, inv Invocation, fn Func[V]) (V, bool, error) {
	v, ok, err := fn(ctx)
	if err != nil {
		var zero V
		return zero, false, err
	}
	res := resultAny(v, ok)
	if !ic.condition(ci, inv, res, true) {
		ic.log.Debug("put condition not met, skipping cache update", cacheaside.Fields{"method": inv.Method})
		return v, ok, nil
	}
	key := ic.resolveKey(ci, inv, res, true)
	return ic.cache.Put(ctx, ci.ns, key, precomputed(v, ok), ic.resolveTTL(ci.ns))
}

func (ic *Interceptor[V]) runEvict(ctx context.Context, ci compiledIntent, inv Invocation, fn Func[V]) (V, bool, error) {
	if !ic.condition(ci, inv, nil, false) {
		ic.log.Debug("evict condition not met, executing directly", cacheaside.Fields{"method": inv.Method})
		return fn(ctx)
	}
	if ci.BeforeInvocation {
		ic.evict(ctx, ci, inv, nil, false)
		return fn(ctx)
	}
	v, ok, err := fn(ctx)
	if err != nil {
		// business failure: nothing changed, so nothing to evict
		var zero V
		return zero, false, err
	}
	ic.evict(ctx, ci, inv, resultAny(v, ok), true)
	return v, ok, nil
}

// runComposite executes multiple intents in fixed order: evict-before in
// declaration order, the business call exactly once, cacheable intents
// applied to the result (the call already ran, so they act as puts), put
// intents, then evict-after. Each stage is best-effort and cannot stop
// later stages or the result from reaching the caller.
func (ic *Interceptor[V]) runComposite(ctx context.Context, plan *Plan, inv Invocation, fn Func[V]) (V, bool, error) {
	for _, ci := range plan.intents {
		if ci.Kind == KindEvict && ci.BeforeInvocation && ic.condition(ci, inv, nil, false) {
			ic.evict(ctx, ci, inv, nil, false)
		}
	}

	v, ok, err := fn(ctx)
	if err != nil {
		var zero V
		return zero, false, err
	}
	res := resultAny(v, ok)
	loader := precomputed(v, ok)

	for _, ci := range plan.intents {
		switch ci.Kind {
		case KindCacheable:
			if ic.condition(ci, inv, nil, false) {
				key := ic.resolveKey(ci, inv, nil, false)
				_, _, _ = ic.cache.Put(ctx, ci.ns, key, loader, ic.resolveTTL(ci.ns))
			}
		case KindPut:
			if ic.condition(ci, inv, res, true) {
				key := ic.resolveKey(ci, inv, res, true)
				_, _, _ = ic.cache.Put(ctx, ci.ns, key, loader, ic.resolveTTL(ci.ns))
			}
		}
	}

	for _, ci := range plan.intents {
		if ci.Kind == KindEvict && !ci.BeforeInvocation && ic.condition(ci, inv, res, true) {
			ic.evict(ctx, ci, inv, res, true)
		}
	}
	return v, ok, nil
}

func (ic *Interceptor[V]) evict(ctx context.Context, ci compiledIntent, inv Invocation, result any, withResult bool) {
	if ci.AllEntries {
		ic.log.Debug("evicting all entries", cacheaside.Fields{"namespace": ci.ns})
		_, _ = ic.cache.EvictAll(ctx, ci.ns)
		return
	}
	key := ic.resolveKey(ci, inv, result, withResult)
	ic.log.Debug("evicting cache entry", cacheaside.Fields{"namespace": ci.ns, "key": key})
	_ = ic.cache.Evict(ctx, ci.ns, key)
}

// condition evaluates the intent's gate. Empty means true; evaluation
// failures fail open to true so a broken expression can never silently
// skip the business call.
func (ic *Interceptor[V]) condition(ci compiledIntent, inv Invocation, result any, withResult bool) bool {
	if ci.condition == nil {
		return true
	}
	ok, err := evalCondition(ci.condition, inv.env(result, withResult))
	if err != nil {
		ic.log.Warn("condition evaluation failed, assuming true", cacheaside.Fields{"expr": ci.Condition, "err": err})
		ic.hooks.ExpressionFallback(ci.Condition, err)
		return true
	}
	return ok
}

// resolveKey evaluates the intent's key expression, falling back to the
// method-derived default key when the expression is absent or fails.
func (ic *Interceptor[V]) resolveKey(ci compiledIntent, inv Invocation, result any, withResult bool) string {
	if ci.key == nil {
		return defaultKey(inv)
	}
	key, err := evalKey(ci.key, inv.env(result, withResult))
	if err != nil {
		ic.log.Warn("key expression failed, using default key", cacheaside.Fields{"expr": ci.Key, "err": err})
		ic.hooks.ExpressionFallback(ci.Key, err)
		return defaultKey(inv)
	}
	return key
}

func (ic *Interceptor[V]) resolveTTL(namespace string) time.Duration {
	return ic.ttls.ResolveOrDefault(namespace, ic.defaultTTL)
}

func precomputed[V any](v V, ok bool) cacheaside.Loader[V] {
	return func(context.Context) (V, bool, error) { return v, ok, nil }
}

func resultAny[V any](v V, ok bool) any {
	if !ok {
		return nil
	}
	return v
}
