package snapshot

import "sync/atomic"

// Handle is the single atomically-addressed pointer every reader and the
// reconciler go through to reach the live snapshot (spec §4.3). A reader
// that has Loaded a Snapshot keeps observing it unchanged regardless of
// later Stores, satisfying the snapshot-immutability property (spec §8.5).
type Handle struct {
	ptr atomic.Pointer[Snapshot]
}

// NewHandle returns a Handle pointing at an empty snapshot.
func NewHandle() *Handle {
	h := &Handle{}
	h.ptr.Store(Empty())
	return h
}

// Load returns the current live snapshot with a single atomic read.
func (h *Handle) Load() *Snapshot {
	return h.ptr.Load()
}

// Store installs next as the live snapshot unconditionally.
func (h *Handle) Store(next *Snapshot) {
	h.ptr.Store(next)
}

// CompareAndSwap installs next only if the live snapshot is still old,
// used by the reconciler to detect a concurrent swap (which should never
// happen since it is the sole writer of the handle, but guards against
// programmer error rather than silently overwriting).
func (h *Handle) CompareAndSwap(old, next *Snapshot) bool {
	return h.ptr.CompareAndSwap(old, next)
}
