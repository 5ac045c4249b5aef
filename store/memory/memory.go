// Package memory implements store.Store in-process. Intended for tests and
// single-node setups where a remote store is overkill.
package memory

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/unkn0wn-root/cacheaside/store"
)

type entry struct {
	value []byte
	exp   time.Time // zero => no expiry
}

// Store keeps entries in a mutex-guarded map. Expired entries are dropped
// lazily on access.
type Store struct {
	mu sync.RWMutex
	m  map[string]entry
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{m: make(map[string]entry)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if e.expired() {
		s.mu.Lock()
		delete(s.m, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	// copy: callers may reuse the slice after Set returns
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.m[key] = entry{value: v, exp: exp}
	s.mu.Unlock()
	return nil
}

func (s *Store) Del(_ context.Context, keys ...string) (int64, error) {
	var deleted int64
	s.mu.Lock()
	for _, k := range keys {
		if e, ok := s.m[k]; ok {
			if !e.expired() {
				deleted++
			}
			delete(s.m, k)
		}
	}
	s.mu.Unlock()
	return deleted, nil
}

// Scan snapshots the matching keys under the read lock, then hands them to
// fn in batches of at most count with the lock released.
func (s *Store) Scan(_ context.Context, pattern string, count int64, fn func(keys []string) error) error {
	if count <= 0 {
		count = 100
	}

	var matched []string
	s.mu.RLock()
	for k, e := range s.m {
		if e.expired() {
			continue
		}
		if ok, err := path.Match(pattern, k); err == nil && ok {
			matched = append(matched, k)
		}
	}
	s.mu.RUnlock()

	for len(matched) > 0 {
		n := int(count)
		if n > len(matched) {
			n = len(matched)
		}
		if err := fn(matched[:n]); err != nil {
			return err
		}
		matched = matched[n:]
	}
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	return ok && !e.expired(), nil
}

func (s *Store) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok || e.expired() || e.exp.IsZero() {
		return 0, false, nil
	}
	return time.Until(e.exp), true, nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.m = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.m {
		if !e.expired() {
			n++
		}
	}
	return n
}

func (e entry) expired() bool {
	return !e.exp.IsZero() && time.Now().After(e.exp)
}
