package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/sutramem/pkg/ann"
	"github.com/cuemby/sutramem/pkg/events"
	"github.com/cuemby/sutramem/pkg/log"
	"github.com/cuemby/sutramem/pkg/metrics"
	"github.com/cuemby/sutramem/pkg/pathfinder"
	"github.com/cuemby/sutramem/pkg/reconciler"
	"github.com/cuemby/sutramem/pkg/snapshot"
	"github.com/cuemby/sutramem/pkg/storage"
	"github.com/cuemby/sutramem/pkg/txn"
	"github.com/cuemby/sutramem/pkg/types"
	"github.com/cuemby/sutramem/pkg/wal"
	"github.com/cuemby/sutramem/pkg/writelog"
)

// pendingKey identifies one in-flight (not yet committed or aborted) 2PC
// association on this shard, so CommitAssociation/AbortAssociation can
// find and release the lock PrepareAssociation took.
type pendingKey struct {
	source types.ConceptID
	target types.ConceptID
}

// shardInstance is one physical shard: its own directory, WAL, write
// log, snapshot handle, ANN index, and reconciler (spec §4.1-§4.7). It
// implements shard.Shard so pkg/shard's Router can address it without
// knowing it is backed by real storage.
type shardInstance struct {
	id  uint32
	dir string
	cfg types.Config

	handle *snapshot.Handle
	queue  *writelog.Queue
	wal    *wal.WAL
	index  *ann.Index
	recon  *reconciler.Reconciler
	events *events.Broker
	locker *txn.NodeLocker

	logger zerolog.Logger

	pendingMu sync.Mutex
	pending   map[pendingKey]func()
}

// openShardInstance opens (or creates) the shard directory at dir,
// replaying any committed WAL tail past the last flushed segment before
// starting the reconciler, per spec §4.2's crash-recovery contract.
func openShardInstance(dir string, id uint32, cfg types.Config) (*shardInstance, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewError("open_store", types.KindIO, err)
	}

	w, err := wal.Open(dir)
	if err != nil {
		return nil, err
	}

	manifest, err := wal.LoadManifest(dir)
	if err != nil {
		w.Close()
		return nil, types.NewError("open_store", types.KindIO, err)
	}

	base, err := loadBaseSnapshot(dir)
	if err != nil {
		w.Close()
		return nil, err
	}

	index, rebuildFromSnapshot, err := openANNIndex(dir, cfg)
	if err != nil {
		w.Close()
		return nil, err
	}
	if rebuildFromSnapshot {
		base.Each(func(n *snapshot.Node) {
			if len(n.Concept.Vector) == int(cfg.VectorDimension) {
				_ = index.Insert(n.Concept.ID, n.Concept.Vector)
			}
		})
	}

	handle := snapshot.NewHandle()
	handle.Store(base)

	broker := events.NewBroker()
	broker.Start()

	queue := writelog.NewQueue(cfg.Reconciler.QMax)
	recon := reconciler.New(id, dir, cfg.Reconciler, handle, queue, w, index, broker)

	replayed := 0
	if err := w.Replay(manifest, func(e wal.Entry) error {
		queue.Enqueue(e)
		replayed++
		return nil
	}); err != nil {
		w.Close()
		broker.Stop()
		return nil, err
	}

	recon.Start()
	if replayed > 0 {
		// Drive the replayed WAL tail through the reconciler's own
		// tested merge path once, synchronously, rather than duplicating
		// its OpWriteConcept/OpWriteAssociation/OpDeleteConcept logic
		// here. Open does not return until the shard's in-memory state
		// matches what was durably committed before the crash.
		if _, err := recon.FlushPending(); err != nil {
			recon.Stop()
			w.Close()
			broker.Stop()
			return nil, err
		}
	}

	return &shardInstance{
		id:      id,
		dir:     dir,
		cfg:     cfg,
		handle:  handle,
		queue:   queue,
		wal:     w,
		index:   index,
		recon:   recon,
		events:  broker,
		locker:  txn.NewNodeLocker(),
		logger:  log.WithShard(id),
		pending: make(map[pendingKey]func()),
	}, nil
}

// loadBaseSnapshot reads storage.dat, if present, into an initial
// snapshot. A missing file means this shard has never flushed a segment;
// an empty snapshot plus a full WAL replay covers that case.
func loadBaseSnapshot(dir string) (*snapshot.Snapshot, error) {
	path := filepath.Join(dir, "storage.dat")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return snapshot.Empty(), nil
	}
	if err != nil {
		return nil, types.NewError("open_store", types.KindIO, err)
	}
	defer f.Close()

	concepts, edges, err := storage.LoadSegment(f)
	if err != nil {
		return nil, err
	}

	snap := snapshot.Empty()
	for _, c := range concepts {
		snap = snap.WithConcept(c)
	}
	for _, e := range edges {
		snap = snap.WithAssociation(e)
	}
	return snap, nil
}

// openANNIndex loads the persisted index for dir, or builds an empty one
// if no sidecar exists yet or it no longer matches the configured
// dimension. rebuild reports whether the caller must repopulate it from
// the base snapshot (spec §4.6's documented fallback-to-rebuild path).
func openANNIndex(dir string, cfg types.Config) (index *ann.Index, rebuild bool, err error) {
	params := ann.Params{M: cfg.ANN.M, EfConstruction: cfg.ANN.EfConstruction, EfSearch: cfg.ANN.EfSearch}
	loaded, loadErr := ann.Load(dir, int(cfg.VectorDimension))
	if loadErr == nil {
		return loaded, false, nil
	}
	return ann.New(int(cfg.VectorDimension), params), true, nil
}

func (s *shardInstance) ID() uint32 { return s.id }

// Close stops the reconciler and event broker, persists the ANN index if
// dirty, and closes the WAL.
func (s *shardInstance) Close() error {
	s.recon.Stop()
	s.events.Stop()
	if s.index.Dirty() {
		if err := s.index.Save(s.dir); err != nil {
			s.logger.Error().Err(err).Msg("ann save failed on close")
		}
	}
	return s.wal.Close()
}

func (s *shardInstance) LearnConcept(ctx context.Context, c *types.Concept) (uint64, error) {
	if s.cfg.ReadOnly {
		return 0, types.NewError("learn_concept", types.KindReadOnly, nil)
	}
	if s.cfg.MaxConcepts > 0 {
		if _, exists := s.handle.Load().GetConcept(c.ID); !exists {
			if uint64(s.handle.Load().Len()) >= s.cfg.MaxConcepts {
				return 0, types.NewError("learn_concept", types.KindCapacity, nil)
			}
		}
	}

	vec := c.Vector
	if len(vec) > 0 {
		if s.cfg.NormalizeOnInsert {
			vec = normalizeVector(vec)
		}
		if len(vec) != int(s.cfg.VectorDimension) {
			return 0, types.NewError("learn_concept", types.KindDimensionMismatch, nil)
		}
	}

	now := time.Now()
	entry := wal.Entry{
		Op:              wal.OpWriteConcept,
		ConceptID:       c.ID,
		Content:         c.Content,
		Vector:          vec,
		CreatedSeconds:  uint32(now.Unix()),
		ModifiedSeconds: uint32(now.Unix()),
		Strength:        c.Strength,
		Confidence:      c.Confidence,
	}
	return s.appendAndEnqueue(entry)
}

func (s *shardInstance) GetConcept(ctx context.Context, id types.ConceptID) (*types.Concept, bool) {
	c, ok := s.handle.Load().GetConcept(id)
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (s *shardInstance) DeleteConcept(ctx context.Context, id types.ConceptID) error {
	if s.cfg.ReadOnly {
		return types.NewError("delete_concept", types.KindReadOnly, nil)
	}
	if _, ok := s.handle.Load().GetConcept(id); !ok {
		return types.NewError("delete_concept", types.KindNotFound, nil)
	}
	_, err := s.appendAndEnqueue(wal.Entry{Op: wal.OpDeleteConcept, ConceptID: id})
	return err
}

func (s *shardInstance) SetVector(ctx context.Context, id types.ConceptID, vec []float32) error {
	if s.cfg.ReadOnly {
		return types.NewError("set_vector", types.KindReadOnly, nil)
	}
	existing, ok := s.handle.Load().GetConcept(id)
	if !ok {
		return types.NewError("set_vector", types.KindNotFound, nil)
	}
	if s.cfg.NormalizeOnInsert {
		vec = normalizeVector(vec)
	}
	if len(vec) != int(s.cfg.VectorDimension) {
		return types.NewError("set_vector", types.KindDimensionMismatch, nil)
	}
	if s.cfg.MaxVectors > 0 && len(existing.Vector) == 0 && uint64(s.index.Len()) >= s.cfg.MaxVectors {
		return types.NewError("set_vector", types.KindCapacity, nil)
	}

	now := time.Now()
	entry := wal.Entry{
		Op:              wal.OpWriteConcept,
		ConceptID:       id,
		Content:         existing.Content,
		Vector:          vec,
		CreatedSeconds:  uint32(existing.CreatedAt.Unix()),
		ModifiedSeconds: uint32(now.Unix()),
		Strength:        existing.Strength,
		Confidence:      existing.Confidence,
	}
	_, err := s.appendAndEnqueue(entry)
	return err
}

func (s *shardInstance) GetVector(ctx context.Context, id types.ConceptID) ([]float32, bool) {
	c, ok := s.handle.Load().GetConcept(id)
	if !ok || len(c.Vector) == 0 {
		return nil, false
	}
	return append([]float32(nil), c.Vector...), true
}

func (s *shardInstance) GetNeighbors(ctx context.Context, id types.ConceptID) ([]types.Neighbor, bool) {
	return s.handle.Load().GetNeighbors(id)
}

func (s *shardInstance) CreateLocalAssociation(ctx context.Context, a types.Association) error {
	if s.cfg.ReadOnly {
		return types.NewError("create_association", types.KindReadOnly, nil)
	}
	unlock := s.locker.LockPair(a.Source, a.Target)
	defer unlock()

	if _, ok := s.handle.Load().GetConcept(a.Source); !ok {
		return types.NewError("create_association", types.KindNotFound, nil)
	}
	if _, ok := s.handle.Load().GetConcept(a.Target); !ok {
		return types.NewError("create_association", types.KindNotFound, nil)
	}
	return s.writeAssociation(a)
}

// PrepareAssociation validates and locks this shard's endpoint of a
// cross-shard edge (spec §4.9's "validate, lock, vote"). The WAL record
// itself is not written until Commit, since wal.Append already makes a
// single entry's durability atomic; there is nothing to roll forward from
// a prepared-but-uncommitted entry.
func (s *shardInstance) PrepareAssociation(ctx context.Context, a types.Association) error {
	if s.cfg.ReadOnly {
		return types.NewError("create_association", types.KindReadOnly, nil)
	}
	if _, ok := s.handle.Load().GetConcept(a.Source); !ok {
		return types.NewError("create_association", types.KindNotFound, nil)
	}

	unlock := s.locker.Lock(a.Source)
	key := pendingKey{source: a.Source, target: a.Target}
	s.pendingMu.Lock()
	s.pending[key] = unlock
	s.pendingMu.Unlock()
	return nil
}

func (s *shardInstance) CommitAssociation(ctx context.Context, a types.Association) error {
	defer s.releasePending(a)
	return s.writeAssociation(a)
}

func (s *shardInstance) AbortAssociation(ctx context.Context, a types.Association) error {
	s.releasePending(a)
	return nil
}

func (s *shardInstance) releasePending(a types.Association) {
	key := pendingKey{source: a.Source, target: a.Target}
	s.pendingMu.Lock()
	unlock, ok := s.pending[key]
	delete(s.pending, key)
	s.pendingMu.Unlock()
	if ok {
		unlock()
	}
}

func (s *shardInstance) writeAssociation(a types.Association) error {
	id := uuid.New()
	entry := wal.Entry{
		Op:             wal.OpWriteAssociation,
		Source:         a.Source,
		Target:         a.Target,
		AssociationID:  [16]byte(id),
		Weight:         a.Weight,
		AssociationTyp: a.Type,
		CreatedSeconds: uint32(time.Now().Unix()),
	}
	_, err := s.appendAndEnqueue(entry)
	return err
}

func (s *shardInstance) appendAndEnqueue(entry wal.Entry) (uint64, error) {
	seq, err := s.wal.Append(entry)
	if err != nil {
		return 0, err
	}
	entry.Sequence = seq
	s.queue.Enqueue(entry)
	return seq, nil
}

func (s *shardInstance) SemanticSearch(ctx context.Context, query []float32, k int) ([]ann.Result, error) {
	return s.index.Search(query, k)
}

func (s *shardInstance) FindPaths(ctx context.Context, start types.ConceptID, targets map[types.ConceptID]bool, params pathfinder.Params) ([]pathfinder.Path, error) {
	timer := metrics.NewTimer()
	paths, err := pathfinder.FindPaths(s.handle.Load(), start, targets, params)
	timer.ObserveDurationVec(metrics.PathfinderDuration, string(params.Strategy))
	if err == nil {
		metrics.PathsFoundTotal.WithLabelValues(string(params.Strategy)).Add(float64(len(paths)))
	}
	return paths, err
}

func (s *shardInstance) Stats() types.ShardStats {
	snap := s.handle.Load()
	var edgeCount uint64
	snap.Each(func(n *snapshot.Node) { edgeCount += uint64(len(n.Neighbors)) })
	return types.ShardStats{ShardID: s.id, ConceptCount: uint64(snap.Len()), EdgeCount: edgeCount}
}
