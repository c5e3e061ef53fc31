package analytics

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// viewCache memoizes view results per catalog generation. Generations only
// move forward, so an entry tagged with an older generation can never be
// served again once the catalog mutates; the views stay pure functions of
// the snapshot.
type viewCache struct {
	lru *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	generation uint64
	value      any
}

func newViewCache(size int) *viewCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil
	}
	return &viewCache{lru: c}
}

// cached looks up a view result for the catalog's current generation. On a
// miss the caller reads the generation itself, before taking its snapshot,
// and tags the stored result with it: a mutation between that read and the
// snapshot bumps the generation, so the entry invalidates instead of
// poisoning later lookups.
func cached[T any](e *Engine, view, param string) (T, bool) {
	var zero T
	if e.cache == nil {
		return zero, false
	}
	ent, ok := e.cache.lru.Get(view + "|" + param)
	if !ok || ent.generation != e.cat.Generation() {
		return zero, false
	}
	value, ok := ent.value.(T)
	return value, ok
}

func store[T any](e *Engine, view, param string, gen uint64, rows T) T {
	if e.cache != nil {
		e.cache.lru.Add(view+"|"+param, cacheEntry{generation: gen, value: rows})
	}
	return rows
}
