package index

import "sync"

// Handle shares one index between in-flight searches and infrequent
// rebuilds. Rebuilds construct a complete new Index and Swap it in; the
// index behind the handle is never mutated while a search reads it.
type Handle struct {
	mu sync.RWMutex
	ix *Index
}

func NewHandle(ix *Index) *Handle {
	return &Handle{ix: ix}
}

// Get returns the current index, or nil when none has been loaded.
func (h *Handle) Get() *Index {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ix
}

// Swap replaces the current index with a freshly built one.
func (h *Handle) Swap(ix *Index) {
	h.mu.Lock()
	h.ix = ix
	h.mu.Unlock()
}
