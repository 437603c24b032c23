/*
Package reconciler implements the adaptive reconciler from
SPEC_FULL.md §4.5: a dedicated cooperative task that periodically drains
the pending write log into a new immutable snapshot, feeds new or
replaced vectors to the ANN index, and appends a WAL checkpoint. Its
sleep interval adapts to an exponential moving average of queue depth so
that an idle store backs off to a slow poll while a write burst collapses
the interval toward millisecond-scale draining.
*/
package reconciler
