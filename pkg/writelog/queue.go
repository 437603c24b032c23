package writelog

import (
	"runtime"
	"sync/atomic"

	"github.com/cuemby/sutramem/pkg/wal"
)

// node is one link in the Michael-Scott queue. The dummy head node never
// carries a meaningful value.
type node struct {
	value wal.Entry
	next  atomic.Pointer[node]
}

// Queue is a lock-free, wait-free-on-enqueue MPMC FIFO queue of pending
// WAL entries (spec §4.4). It is the classic Michael & Scott (1996)
// two-pointer linked queue: CAS on the tail's next pointer to link a new
// node, then a best-effort CAS to advance the tail pointer itself so a
// stalled enqueuer never blocks a reader.
type Queue struct {
	head atomic.Pointer[node]
	tail atomic.Pointer[node]
	len  atomic.Int64

	highWatermark int
	nudgeCh       chan struct{}
}

// NewQueue returns an empty Queue. highWatermark is the soft depth above
// which Enqueue starts yielding and nudging the reconciler (spec §4.4);
// pass 0 to disable the watermark behavior.
func NewQueue(highWatermark int) *Queue {
	q := &Queue{highWatermark: highWatermark, nudgeCh: make(chan struct{}, 1)}
	sentinel := &node{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Enqueue appends e to the tail of the queue. It is O(1) and never blocks
// on a reader, though above the high-watermark it yields the goroutine
// once and emits a non-blocking nudge so the reconciler wakes early.
func (q *Queue) Enqueue(e wal.Entry) (depth int) {
	n := &node{value: e}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				break
			}
		} else {
			// Tail lagged behind a link another enqueuer already made;
			// help it catch up before retrying.
			q.tail.CompareAndSwap(tail, next)
		}
	}

	d := q.len.Add(1)
	depth = int(d)
	if q.highWatermark > 0 && depth > q.highWatermark {
		runtime.Gosched()
		q.nudge()
	}
	return depth
}

// Dequeue removes and returns the entry at the head of the queue, if any.
func (q *Queue) Dequeue() (wal.Entry, bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				return wal.Entry{}, false
			}
			// Tail lagged behind; help it catch up and retry.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		value := next.value
		if q.head.CompareAndSwap(head, next) {
			q.len.Add(-1)
			return value, true
		}
	}
}

// DrainUpTo removes and returns up to n entries in FIFO order, fewer if
// the queue empties first. This is what the reconciler calls each cycle
// with n = the configured batch budget B (spec §4.5 step 4).
func (q *Queue) DrainUpTo(n int) []wal.Entry {
	out := make([]wal.Entry, 0, n)
	for i := 0; i < n; i++ {
		e, ok := q.Dequeue()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

// Depth reports the approximate current queue length. It is exact in the
// absence of concurrent Enqueue/Dequeue and a fast, possibly-stale
// estimate otherwise, which is all the reconciler's interval control
// needs (spec §4.5).
func (q *Queue) Depth() int {
	return int(q.len.Load())
}

func (q *Queue) nudge() {
	select {
	case q.nudgeCh <- struct{}{}:
	default:
	}
}

// NudgeCh returns the channel the reconciler selects on to wake early
// when the queue crosses its high-watermark, instead of waiting out the
// full adaptive sleep interval.
func (q *Queue) NudgeCh() <-chan struct{} {
	return q.nudgeCh
}
