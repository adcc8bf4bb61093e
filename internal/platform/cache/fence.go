package cache

import "sync"

// Fence stops a read-through fill from storing a value that an invalidation
// overtook. Readers call Begin before loading from storage and Commit after;
// writers call Bump before dropping the cached entry. Keys are tracked only
// while a read is pending. The zero value is ready to use.
type Fence[K comparable] struct {
	mu      sync.Mutex
	pending map[K]*fenceState
}

type fenceState struct {
	readers int
	gen     uint64
}

// Begin registers a pending read of key and returns its token.
func (f *Fence[K]) Begin(key K) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = make(map[K]*fenceState)
	}
	st, ok := f.pending[key]
	if !ok {
		st = &fenceState{}
		f.pending[key] = st
	}
	st.readers++
	return st.gen
}

// Commit ends the read started by Begin. fill runs only if key was not
// bumped in between, and runs under the fence lock.
func (f *Fence[K]) Commit(key K, token uint64, fill func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.pending[key]
	if !ok {
		return
	}
	if st.gen == token && fill != nil {
		fill()
	}
	st.readers--
	if st.readers <= 0 {
		delete(f.pending, key)
	}
}

// Bump marks pending reads of key as stale.
func (f *Fence[K]) Bump(key K) {
	f.mu.Lock()
	if st, ok := f.pending[key]; ok {
		st.gen++
	}
	f.mu.Unlock()
}
