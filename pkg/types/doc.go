/*
Package types defines the core data structures used throughout sutramem.

This package contains the domain model shared by every other package:
concept identifiers, concepts, associations (edges), the
store configuration, the error taxonomy, and the advisory stats struct
returned by ConcurrentMemory.Stats.

# Core Types

Data model:
  - ConceptID: opaque 128-bit identifier
  - Concept: text + metadata + optional embedding
  - Association: directed, typed, weighted edge between two concepts
  - AssocType: the closed set of edge tags (semantic, causal, temporal,
    hierarchical, compositional)

Configuration:
  - Config: everything supplied at store open, with YAML tags so a host
    program can load it from a manifest the same way warren's apply
    command loads a resource manifest

Errors:
  - Kind: the error taxonomy kinds
  - Error: a Kind plus a wrapped cause, with package-level sentinels for
    errors.Is
*/
package types
