package dedupe

import "sync"

// Index is the set of declaration ids already written to the output. It only
// grows during a run.
type Index struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{items: make(map[string]struct{})}
}

// Seed adds every id in ids. Blank ids are ignored.
func (x *Index) Seed(ids []string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, id := range ids {
		if id != "" {
			x.items[id] = struct{}{}
		}
	}
}

// Contains reports whether id has already been emitted.
func (x *Index) Contains(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	_, ok := x.items[id]
	return ok
}

// Add records id as emitted.
func (x *Index) Add(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.items[id] = struct{}{}
}

// Len returns the number of known ids.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return len(x.items)
}
