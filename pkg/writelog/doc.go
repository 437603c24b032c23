/*
Package writelog implements the pending-operations queue from
SPEC_FULL.md §4.4: writers enqueue wait-free, the reconciler drains in
FIFO order, and a soft high-watermark makes the writer path cooperative
(one runtime.Gosched yield plus a non-blocking nudge to the reconciler)
once the queue grows past it. No third-party MPMC queue appears anywhere
in the retrieval pack, so this is built directly on sync/atomic following
a Michael-Scott-style linked queue, documented per-function in DESIGN.md
as a standard-library choice.
*/
package writelog
