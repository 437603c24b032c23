/*
Package pathfinder implements the three traversal strategies from
SPEC_FULL.md §4.7 — BFS, best-first (priority-queue with a proximity
heuristic), and bidirectional search — over a Snapshot's adjacency
lists, with harmonic-mean confidence propagation, cycle rejection, early
termination below a confidence floor, and Jaccard-of-edges
diversification of the final candidate set.
*/
package pathfinder
