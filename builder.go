package cacheaside

import (
	"context"
	"time"
)

// Operation is a fluent, single-shot cacheable call with hit/miss callbacks,
// for call sites that resolve keys and conditions themselves instead of
// going through the intercept layer.
//
//	v, ok, err := cacheaside.NewOperation[User](cache).
//	    Namespace("users").
//	    Key(id).
//	    Loader(loadUser).
//	    TTL(10 * time.Minute).
//	    OnMiss(func(u User) { metrics.Inc("user_load") }).
//	    Execute(ctx)
type Operation[V any] struct {
	cache     Cache[V]
	namespace string
	key       string
	loader    Loader[V]
	ttl       time.Duration
	condition bool
	onHit     func(V)
	onMiss    func(V)
}

func NewOperation[V any](cache Cache[V]) *Operation[V] {
	return &Operation[V]{cache: cache, condition: true}
}

func (o *Operation[V]) Namespace(namespace string) *Operation[V] {
	o.namespace = namespace
	return o
}

func (o *Operation[V]) Key(key string) *Operation[V] {
	o.key = key
	return o
}

func (o *Operation[V]) Loader(loader Loader[V]) *Operation[V] {
	o.loader = loader
	return o
}

// TTL overrides the engine's default TTL. Zero keeps the default.
func (o *Operation[V]) TTL(ttl time.Duration) *Operation[V] {
	o.ttl = ttl
	return o
}

// Condition gates caching. When false, Execute invokes the loader directly
// and the store is untouched.
func (o *Operation[V]) Condition(condition bool) *Operation[V] {
	o.condition = condition
	return o
}

// OnHit runs after Execute when the value was served from the store.
func (o *Operation[V]) OnHit(fn func(V)) *Operation[V] {
	o.onHit = fn
	return o
}

// OnMiss runs after Execute when the loader produced the value.
func (o *Operation[V]) OnMiss(fn func(V)) *Operation[V] {
	o.onMiss = fn
	return o
}

func (o *Operation[V]) Execute(ctx context.Context) (V, bool, error) {
	var zero V
	if o.cache == nil {
		return zero, false, &ConfigError{Reason: "operation: cache is required"}
	}
	if err := requireFields(o.namespace, o.key, o.loader != nil); err != nil {
		return zero, false, err
	}
	if !o.condition {
		return o.loader(ctx)
	}

	hit := true
	loader := func(ctx context.Context) (V, bool, error) {
		hit = false
		return o.loader(ctx)
	}
	v, ok, err := o.cache.Cacheable(ctx, o.namespace, o.key, loader, o.ttl)
	if err != nil || !ok {
		return v, ok, err
	}
	if hit && o.onHit != nil {
		o.onHit(v)
	}
	if !hit && o.onMiss != nil {
		o.onMiss(v)
	}
	return v, true, nil
}
