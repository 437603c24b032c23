/*
Package metrics provides Prometheus metrics collection and exposition for
sutramem: store-wide gauges (concept/edge/vector counts), reconciler
interval and health score, ANN/pathfinder latency histograms, and
transaction coordinator outcome counters. The gauges are set directly
rather than via a separate polling collector, to avoid this package
depending on pkg/memory: the reconciler sets interval, queue utilization
and health on each loop, and ConcurrentMemory's Stats sets the
concept/edge/vector counts each time it is called.
*/
package metrics
