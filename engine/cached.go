package engine

import (
	"context"
	"time"
)

// TextCache is the storage a CachedStrategy reads and writes.
type TextCache interface {
	Get(key string, maxAge time.Duration) (string, bool)
	Set(key, text string)
}

// CachedStrategy serves recent fetches of the wrapped strategy from a cache.
// Caching inside a strategy is the only state that outlives a race. Entries
// are keyed by strategy name and target. Only text the race's gate accepts
// is stored, and a cached text the current gate rejects triggers a live
// fetch.
type CachedStrategy struct {
	inner  Strategy
	cache  TextCache
	maxAge time.Duration
}

// Cached wraps s with cache. maxAge <= 0 disables lookups but still stores.
func Cached(s Strategy, cache TextCache, maxAge time.Duration) *CachedStrategy {
	return &CachedStrategy{inner: s, cache: cache, maxAge: maxAge}
}

func (s *CachedStrategy) Name() string { return s.inner.Name() }

func (s *CachedStrategy) Fetch(ctx context.Context, target string) (string, error) {
	key := s.inner.Name() + "|" + target
	if text, ok := s.cache.Get(key, s.maxAge); ok && Accepts(ctx, text) {
		return text, nil
	}
	text, err := s.inner.Fetch(ctx, target)
	if err != nil {
		return "", err
	}
	if Accepts(ctx, text) {
		s.cache.Set(key, text)
	}
	return text, nil
}
