/*
Package aggregator implements the Multi-Path Aggregator from
SPEC_FULL.md §4.10: given a set of candidate answers each backed by a
reasoning path and its confidence, normalizes and Jaccard-clusters the
answers, scores each cluster by support/consensus/outlier/diversity
factors, and returns the winning cluster's answer and consensus
strength. Pure functions — no state, no I/O.
*/
package aggregator
