// Package memory is an in-process cache store backed by an expiring LRU.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	val     []byte
	expires time.Time
}

type Store struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time

	mu   sync.Mutex
	gens map[string]int64
}

// New keeps at most size results; maxTTL bounds every entry regardless of
// the ttl passed to Set.
func New(size int, maxTTL time.Duration) *Store {
	if size <= 0 {
		size = 1024
	}
	return &Store{
		lru:  expirable.NewLRU[string, entry](size, nil, maxTTL),
		now:  time.Now,
		gens: make(map[string]int64),
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		s.lru.Remove(key)
		return nil, false, nil
	}
	return e.val, true, nil
}

func (s *Store) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.lru.Add(key, e)
	return nil
}

func (s *Store) Generation(_ context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[table], nil
}

func (s *Store) Bump(_ context.Context, table string) error {
	s.mu.Lock()
	s.gens[table]++
	s.mu.Unlock()
	return nil
}

func (s *Store) Len() int { return s.lru.Len() }

func (s *Store) Close() error {
	s.lru.Purge()
	return nil
}
