/*
Package events is an in-memory pub/sub broker used by ConcurrentMemory to
notify host programs of snapshot swaps and health degradation without
requiring them to poll Stats. The concept-deleted and transaction event
types are defined but nothing in the store publishes them. Delivery is
best-effort: a slow subscriber drops events rather than blocking the
reconciler.
*/
package events
