package txn

import (
	"bytes"
	"sync"

	"github.com/cuemby/sutramem/pkg/types"
)

// NodeLocker hands out per-concept locks, created lazily and never
// removed (locks are cheap and concept churn is bounded by what's
// actually been touched in this process's lifetime). Callers that need
// to hold two locks at once must acquire them in the order LockPair
// returns — lesser id first — to avoid the classic deadlock between two
// operations that touch the same pair of concepts in opposite order.
type NodeLocker struct {
	mu    sync.Mutex
	locks map[types.ConceptID]*sync.Mutex
}

func NewNodeLocker() *NodeLocker {
	return &NodeLocker{locks: make(map[types.ConceptID]*sync.Mutex)}
}

func (l *NodeLocker) lockFor(id types.ConceptID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// Lock acquires the single lock for id and returns an unlock func.
func (l *NodeLocker) Lock(id types.ConceptID) func() {
	m := l.lockFor(id)
	m.Lock()
	return m.Unlock
}

// LockPair acquires locks for a and b in ascending byte order, so any
// two concurrent LockPair calls over the same two ids always contend for
// the same lock first. Returns a single unlock func that releases both
// in reverse acquisition order.
func (l *NodeLocker) LockPair(a, b types.ConceptID) func() {
	if a == b {
		unlock := l.Lock(a)
		return unlock
	}
	first, second := a, b
	if bytes.Compare(a[:], b[:]) > 0 {
		first, second = b, a
	}
	unlockFirst := l.Lock(first)
	unlockSecond := l.Lock(second)
	return func() {
		unlockSecond()
		unlockFirst()
	}
}
