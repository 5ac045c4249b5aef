package cacheaside

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	c "github.com/unkn0wn-root/cacheaside/codec"
	"github.com/unkn0wn-root/cacheaside/store"
	"github.com/unkn0wn-root/cacheaside/store/memory"
)

var errTransport = errors.New("transport down")

// flakyStore wraps a real store and fails selected operations, to exercise
// the fail-open and best-effort paths.
type flakyStore struct {
	store.Store
	failGet    bool
	failSet    bool
	failDel    bool
	failScan   bool
	failExists bool
	failTTL    bool
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errTransport
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.failSet {
		return errTransport
	}
	return f.Store.Set(ctx, key, value, ttl)
}

func (f *flakyStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if f.failDel {
		return 0, errTransport
	}
	return f.Store.Del(ctx, keys...)
}

func (f *flakyStore) Scan(ctx context.Context, pattern string, count int64, fn func([]string) error) error {
	if f.failScan {
		return errTransport
	}
	return f.Store.Scan(ctx, pattern, count, fn)
}

func (f *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	if f.failExists {
		return false, errTransport
	}
	return f.Store.Exists(ctx, key)
}

func (f *flakyStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	if f.failTTL {
		return 0, false, errTransport
	}
	return f.Store.TTL(ctx, key)
}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T, st store.Store, optsOpt func(*Options[user])) Cache[user] {
	t.Helper()
	opts := Options[user]{
		Store: st,
		Codec: c.JSON[user]{},
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[user](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cc
}

func loadUser(u user) Loader[user] {
	return func(context.Context) (user, bool, error) { return u, true, nil }
}

func noLoad(t *testing.T) Loader[user] {
	return func(context.Context) (user, bool, error) {
		t.Fatalf("loader invoked on a cache hit")
		return user{}, false, nil
	}
}

// TestCacheableMissThenHit walks the canonical scenario: miss loads and
// stores with the requested TTL, the following call is served from the
// store without touching the loader.
func TestCacheableMissThenHit(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cc := newTestCache(t, mem, nil)
	defer cc.Close(ctx)

	ann := user{ID: "42", Name: "Ann"}
	calls := 0
	loader := func(context.Context) (user, bool, error) {
		calls++
		return ann, true, nil
	}

	got, ok, err := cc.Cacheable(ctx, "users", "42", loader, 10*time.Minute)
	if err != nil || !ok || got != ann {
		t.Fatalf("first call: got=%v ok=%v err=%v", got, ok, err)
	}
	if calls != 1 {
		t.Fatalf("loader calls = %d, want 1", calls)
	}

	// TTL was set at write time
	if d, ok, _ := mem.TTL(ctx, "users:42"); !ok || d <= 9*time.Minute || d > 10*time.Minute {
		t.Fatalf("stored TTL = %v ok=%v, want ~10m", d, ok)
	}

	got, ok, err = cc.Cacheable(ctx, "users", "42", noLoad(t), 10*time.Minute)
	if err != nil || !ok || got != ann {
		t.Fatalf("second call: got=%v ok=%v err=%v", got, ok, err)
	}
}

// TestCacheableAbsentNotStored verifies an absent loader result is returned
// but never written.
func TestCacheableAbsentNotStored(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cc := newTestCache(t, mem, nil)

	loader := func(context.Context) (user, bool, error) { return user{}, false, nil }
	_, ok, err := cc.Cacheable(ctx, "users", "gone", loader, 0)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v, want absent with no error", ok, err)
	}
	if mem.Len() != 0 {
		t.Fatalf("absent result was written to the store")
	}
}

func TestCacheableLoaderErrorPropagates(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)

	boom := errors.New("db down")
	loader := func(context.Context) (user, bool, error) { return user{}, false, boom }
	if _, _, err := cc.Cacheable(ctx, "users", "1", loader, 0); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want loader error", err)
	}
}

// TestCacheableFailOpenOnReadError: a failed store read falls through to the
// loader, and the write-back is still attempted.
func TestCacheableFailOpenOnReadError(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	fs := &flakyStore{Store: mem, failGet: true}
	cc := newTestCache(t, fs, nil)

	ann := user{ID: "42", Name: "Ann"}
	got, ok, err := cc.Cacheable(ctx, "users", "42", loadUser(ann), time.Minute)
	if err != nil || !ok || got != ann {
		t.Fatalf("got=%v ok=%v err=%v, want loader result with no error", got, ok, err)
	}
	// only the read failed; the loaded value must have been written back
	if present, _ := mem.Exists(ctx, "users:42"); !present {
		t.Fatalf("write-back skipped after fail-open read")
	}
}

func TestCacheableWriteErrorStillReturnsValue(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memory.New(), failSet: true}
	cc := newTestCache(t, fs, nil)

	ann := user{ID: "42", Name: "Ann"}
	got, ok, err := cc.Cacheable(ctx, "users", "42", loadUser(ann), time.Minute)
	if err != nil || !ok || got != ann {
		t.Fatalf("got=%v ok=%v err=%v, want loaded value despite write failure", got, ok, err)
	}
}

// TestCacheableCorruptEntrySelfHeals ensures undecodable bytes are dropped
// and the read degrades to a miss.
func TestCacheableCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cc := newTestCache(t, mem, nil)

	if err := mem.Set(ctx, "users:bad", []byte("{not json"), time.Minute); err != nil {
		t.Fatalf("inject corrupt: %v", err)
	}

	ann := user{ID: "bad", Name: "Fixed"}
	got, ok, err := cc.Cacheable(ctx, "users", "bad", loadUser(ann), time.Minute)
	if err != nil || !ok || got != ann {
		t.Fatalf("got=%v ok=%v err=%v, want loader result", got, ok, err)
	}
	// the corrupt entry was replaced by the fresh one
	got, ok, err = cc.Cacheable(ctx, "users", "bad", noLoad(t), time.Minute)
	if err != nil || !ok || got != ann {
		t.Fatalf("after self-heal: got=%v ok=%v err=%v", got, ok, err)
	}
}

// TestPutRoundTrip: put then cacheable returns the value without the loader.
func TestPutRoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)

	ann := user{ID: "42", Name: "Ann"}
	if _, ok, err := cc.Put(ctx, "users", "42", loadUser(ann), time.Minute); err != nil || !ok {
		t.Fatalf("Put: ok=%v err=%v", ok, err)
	}
	got, ok, err := cc.Cacheable(ctx, "users", "42", noLoad(t), time.Minute)
	if err != nil || !ok || got != ann {
		t.Fatalf("got=%v ok=%v err=%v", got, ok, err)
	}
}

// TestPutAbsentEvicts: putting an absent value removes the entry so a stale
// value cannot outlive the source of truth.
func TestPutAbsentEvicts(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)

	ann := user{ID: "42", Name: "Ann"}
	if _, _, err := cc.Put(ctx, "users", "42", loadUser(ann), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !cc.Exists(ctx, "users", "42") {
		t.Fatalf("entry missing after put")
	}

	absent := func(context.Context) (user, bool, error) { return user{}, false, nil }
	if _, ok, err := cc.Put(ctx, "users", "42", absent, time.Minute); err != nil || ok {
		t.Fatalf("absent put: ok=%v err=%v", ok, err)
	}
	if cc.Exists(ctx, "users", "42") {
		t.Fatalf("entry survived an absent put")
	}
}

func TestPutLoaderErrorPropagates(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)

	boom := errors.New("db down")
	loader := func(context.Context) (user, bool, error) { return user{}, false, boom }
	if _, _, err := cc.Put(ctx, "users", "1", loader, 0); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want loader error", err)
	}
}

// TestEvictIdempotent: evicting a key that does not exist is not an error.
func TestEvictIdempotent(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)

	if err := cc.Evict(ctx, "users", "nope"); err != nil {
		t.Fatalf("Evict missing key: %v", err)
	}
	// and eviction failures stay invisible to the caller
	fs := &flakyStore{Store: memory.New(), failDel: true}
	cc2 := newTestCache(t, fs, nil)
	if err := cc2.Evict(ctx, "users", "nope"); err != nil {
		t.Fatalf("Evict with failing store: %v", err)
	}
}

// TestEvictAllBatches seeds more keys than one scan batch and expects the
// full count back, with other namespaces untouched.
func TestEvictAllBatches(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cc := newTestCache(t, mem, nil)

	const n = 250 // > 2 scan batches of 100
	for i := 0; i < n; i++ {
		if err := mem.Set(ctx, fmt.Sprintf("users:%d", i), []byte("x"), 0); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_ = mem.Set(ctx, "orders:9", []byte("x"), 0)

	deleted, err := cc.EvictAll(ctx, "users")
	if err != nil || deleted != n {
		t.Fatalf("EvictAll: deleted=%d err=%v, want %d", deleted, err, n)
	}
	if present, _ := mem.Exists(ctx, "orders:9"); !present {
		t.Fatalf("EvictAll crossed namespaces")
	}

	// empty namespace completes with count 0
	deleted, err = cc.EvictAll(ctx, "users")
	if err != nil || deleted != 0 {
		t.Fatalf("EvictAll empty: deleted=%d err=%v", deleted, err)
	}
}

func TestEvictByPattern(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cc := newTestCache(t, mem, nil)

	for _, k := range []string{"users:1", "users:2", "orders:9"} {
		_ = mem.Set(ctx, k, []byte("x"), 0)
	}

	deleted, err := cc.EvictByPattern(ctx, "users:*")
	if err != nil || deleted != 2 {
		t.Fatalf("EvictByPattern: deleted=%d err=%v, want 2", deleted, err)
	}
	if present, _ := mem.Exists(ctx, "orders:9"); !present {
		t.Fatalf("pattern eviction removed a non-matching key")
	}
}

func TestEvictScanErrorReportsPartialCount(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memory.New(), failScan: true}
	cc := newTestCache(t, fs, nil)

	deleted, err := cc.EvictAll(ctx, "users")
	if err != nil || deleted != 0 {
		t.Fatalf("EvictAll with failing scan: deleted=%d err=%v, want best-effort success", deleted, err)
	}
}

func TestEvictMultiple(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cc := newTestCache(t, mem, nil)

	for _, k := range []string{"users:1", "users:2", "users:3"} {
		_ = mem.Set(ctx, k, []byte("x"), 0)
	}
	if err := cc.EvictMultiple(ctx, "users", "1", "3"); err != nil {
		t.Fatalf("EvictMultiple: %v", err)
	}
	if present, _ := mem.Exists(ctx, "users:2"); !present {
		t.Fatalf("untargeted key was evicted")
	}
	if present, _ := mem.Exists(ctx, "users:1"); present {
		t.Fatalf("targeted key survived")
	}
}

func TestExistsFalseOnStoreError(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memory.New(), failExists: true}
	cc := newTestCache(t, fs, nil)

	if cc.Exists(ctx, "users", "1") {
		t.Fatalf("Exists = true on store error, want false")
	}
}

func TestTTLQueries(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cc := newTestCache(t, mem, nil)

	_, _, _ = cc.Put(ctx, "users", "1", loadUser(user{ID: "1"}), time.Hour)
	if d, ok := cc.TTL(ctx, "users", "1"); !ok || d <= 0 || d > time.Hour {
		t.Fatalf("TTL = %v ok=%v, want ~1h", d, ok)
	}
	if _, ok := cc.TTL(ctx, "users", "missing"); ok {
		t.Fatalf("TTL ok=true for a missing key")
	}

	fs := &flakyStore{Store: mem, failTTL: true}
	cc2 := newTestCache(t, fs, nil)
	if _, ok := cc2.TTL(ctx, "users", "1"); ok {
		t.Fatalf("TTL ok=true on store error")
	}
}

// TestDisabledCache: a disabled cache runs loaders directly and never
// touches the store.
func TestDisabledCache(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	cc := newTestCache(t, mem, func(o *Options[user]) { o.Disabled = true })

	if cc.Enabled() {
		t.Fatalf("Enabled() = true for a disabled cache")
	}

	calls := 0
	loader := func(context.Context) (user, bool, error) {
		calls++
		return user{ID: "1"}, true, nil
	}
	for i := 0; i < 2; i++ {
		if _, ok, err := cc.Cacheable(ctx, "users", "1", loader, 0); err != nil || !ok {
			t.Fatalf("disabled Cacheable: ok=%v err=%v", ok, err)
		}
	}
	if calls != 2 {
		t.Fatalf("loader calls = %d, want 2 (no caching while disabled)", calls)
	}
	if mem.Len() != 0 {
		t.Fatalf("disabled cache wrote to the store")
	}
	if err := cc.Evict(ctx, "users", "1"); err != nil {
		t.Fatalf("disabled Evict: %v", err)
	}
}

func TestRequiredFieldValidation(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)

	var cfgErr *ConfigError
	if _, _, err := cc.Cacheable(ctx, "", "k", loadUser(user{}), 0); !errors.As(err, &cfgErr) {
		t.Fatalf("missing namespace: err = %v, want ConfigError", err)
	}
	if _, _, err := cc.Cacheable(ctx, "ns", "", loadUser(user{}), 0); !errors.As(err, &cfgErr) {
		t.Fatalf("missing key: err = %v, want ConfigError", err)
	}
	if _, _, err := cc.Put(ctx, "ns", "k", nil, 0); !errors.As(err, &cfgErr) {
		t.Fatalf("missing loader: err = %v, want ConfigError", err)
	}
}

// TestConcurrentMissesLoadIndependently documents the default contract:
// without single-flight, N concurrent misses on one key run the loader N
// times (last write wins on the store side).
func TestConcurrentMissesLoadIndependently(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)

	const n = 4
	var calls atomic.Int64
	entered := make(chan struct{}, n)
	release := make(chan struct{})

	loader := func(context.Context) (user, bool, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return user{ID: "42"}, true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := cc.Cacheable(ctx, "users", "42", loader, 0); err != nil || !ok {
				t.Errorf("Cacheable: ok=%v err=%v", ok, err)
			}
		}()
	}
	// every caller misses and enters its own loader before any write happens
	for i := 0; i < n; i++ {
		<-entered
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != n {
		t.Fatalf("loader calls = %d, want %d independent loads", got, n)
	}
}

// TestSingleFlightCoalescesMisses: with single-flight enabled, concurrent
// misses on one key share a single loader call.
func TestSingleFlightCoalescesMisses(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), func(o *Options[user]) { o.SingleFlight = true })

	const n = 4
	var calls atomic.Int64
	entered := make(chan struct{}, n)
	release := make(chan struct{})

	loader := func(context.Context) (user, bool, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return user{ID: "42", Name: "Ann"}, true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok, err := cc.Cacheable(ctx, "users", "42", loader, 0)
			if err != nil || !ok || got.Name != "Ann" {
				t.Errorf("Cacheable: got=%v ok=%v err=%v", got, ok, err)
			}
		}()
	}

	<-entered // one loader is in flight
	// give the remaining callers time to miss and join the flight
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader calls = %d, want 1 coalesced load", got)
	}
}

func TestNewRequiresStoreAndCodec(t *testing.T) {
	if _, err := New[user](Options[user]{Codec: c.JSON[user]{}}); err == nil {
		t.Fatalf("New without store should fail")
	}
	if _, err := New[user](Options[user]{Store: memory.New()}); err == nil {
		t.Fatalf("New without codec should fail")
	}
}
