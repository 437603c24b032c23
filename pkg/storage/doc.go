/*
Package storage implements the on-disk segment format for a single shard:
a 64-byte header followed by concept, edge, and vector records written
sequentially with no in-file index. Segments are immutable once written;
the reconciler produces a new one on each flush and the WAL covers
everything since the last segment's high-water sequence. See
storage.dat in SPEC_FULL.md §4.1.
*/
package storage
