package wal

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/sutramem/pkg/metrics"
	"github.com/cuemby/sutramem/pkg/types"
)

const fileName = "wal.log"

// WAL is a crash-safe, two-phase-committed append log backed by
// raft-boltdb's BoltStore. It reuses raft.LogStore purely as a durable
// sequential log; no raft.Raft instance is ever created, so there is no
// leader election, heartbeats, or replication (spec's single-process,
// no-distributed-consensus Non-goal).
type WAL struct {
	mu      sync.Mutex
	dir     string
	path    string
	store   *raftboltdb.BoltStore
	nextSeq uint64
}

// Open opens (creating if necessary) the WAL file under dir.
func Open(dir string) (*WAL, error) {
	path := filepath.Join(dir, fileName)
	store, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, types.NewError("wal.Open", types.KindIO, err)
	}
	last, err := store.LastIndex()
	if err != nil {
		store.Close()
		return nil, types.NewError("wal.Open", types.KindIO, err)
	}
	next := last + 1
	if m, err := LoadManifest(dir); err == nil && m.SegmentHighSequence >= next {
		next = m.SegmentHighSequence + 1
	}
	return &WAL{
		dir:     dir,
		path:    path,
		store:   store,
		nextSeq: next,
	}, nil
}

// Close releases the underlying file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.Close()
}

// Append durably records e, assigning it the next sequence number. The
// write is two-phase: the record is stored with Committed=false and
// flushed, then the same index is overwritten with Committed=true and
// flushed again. A crash between the two phases leaves a record that
// Replay discards (spec §4.2's failure semantics).
func (w *WAL) Append(e Entry) (uint64, error) {
	timer := metrics.NewTimer()
	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.nextSeq
	e.Sequence = seq
	if e.TimestampUS == 0 {
		e.TimestampUS = uint64(time.Now().UnixMicro())
	}

	e.Committed = false
	if err := w.store.StoreLog(&raft.Log{Index: seq, Term: 1, Type: raft.LogCommand, Data: Encode(e)}); err != nil {
		return 0, types.NewError("wal.Append", types.KindIO, err)
	}

	e.Committed = true
	if err := w.store.StoreLog(&raft.Log{Index: seq, Term: 1, Type: raft.LogCommand, Data: Encode(e)}); err != nil {
		return 0, types.NewError("wal.Append", types.KindIO, err)
	}

	w.nextSeq = seq + 1
	timer.ObserveDuration(metrics.WALAppendDuration)
	return seq, nil
}

// Replay applies every committed entry with sequence strictly greater
// than manifest's segment high-water mark, in order, to apply. Entries
// with Committed=false (a torn write at crash time) are silently skipped.
func (w *WAL) Replay(manifest Manifest, apply func(Entry) error) error {
	w.mu.Lock()
	first, err := w.store.FirstIndex()
	if err != nil {
		w.mu.Unlock()
		return types.NewError("wal.Replay", types.KindIO, err)
	}
	last, err := w.store.LastIndex()
	if err != nil {
		w.mu.Unlock()
		return types.NewError("wal.Replay", types.KindIO, err)
	}
	w.mu.Unlock()

	start := manifest.SegmentHighSequence + 1
	if start < first {
		start = first
	}
	for seq := start; seq <= last; seq++ {
		var l raft.Log
		w.mu.Lock()
		err := w.store.GetLog(seq, &l)
		w.mu.Unlock()
		if errors.Is(err, raft.ErrLogNotFound) {
			continue
		}
		if err != nil {
			return types.NewError("wal.Replay", types.KindIO, err)
		}
		e, err := Decode(seq, l.Data)
		if err != nil {
			// A torn tail entry; per spec §4.2 this is discarded, not fatal,
			// but only at the very end of the log.
			if seq == last {
				break
			}
			return types.NewError("wal.Replay", types.KindCorrupt, err)
		}
		if !e.Committed {
			continue
		}
		if err := apply(e); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint is called after a successful segment flush: it drops the WAL
// file and starts a fresh one, then persists the manifest recording
// highSequence as the new replay floor. This realizes spec §4.2's "WAL is
// truncated to 0 bytes and a fresh header installed" using BoltStore's
// file as the underlying log rather than a hand-rolled append file.
// Entries above highSequence (appended while the flushed batch was being
// reconciled) are copied into the fresh file, and numbering continues
// above both them and highSequence.
func (w *WAL) Checkpoint(highSequence uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	last, err := w.store.LastIndex()
	if err != nil {
		return types.NewError("wal.Checkpoint", types.KindIO, err)
	}
	var keep []*raft.Log
	for seq := highSequence + 1; seq <= last; seq++ {
		l := new(raft.Log)
		if err := w.store.GetLog(seq, l); err == nil {
			keep = append(keep, l)
		}
	}

	if err := w.store.Close(); err != nil {
		return types.NewError("wal.Checkpoint", types.KindIO, err)
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return types.NewError("wal.Checkpoint", types.KindIO, err)
	}
	store, err := raftboltdb.NewBoltStore(w.path)
	if err != nil {
		return types.NewError("wal.Checkpoint", types.KindIO, err)
	}
	w.store = store
	if err := store.StoreLogs(keep); err != nil {
		return types.NewError("wal.Checkpoint", types.KindIO, err)
	}
	if w.nextSeq <= highSequence {
		w.nextSeq = highSequence + 1
	}

	if err := SaveManifest(w.dir, Manifest{
		SegmentHighSequence: highSequence,
		SegmentCreatedAt:    time.Now().UnixMicro(),
	}); err != nil {
		return types.NewError("wal.Checkpoint", types.KindIO, err)
	}
	metrics.WALFlushesTotal.Inc()
	return nil
}
