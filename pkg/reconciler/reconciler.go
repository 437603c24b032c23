package reconciler

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sutramem/pkg/ann"
	"github.com/cuemby/sutramem/pkg/events"
	"github.com/cuemby/sutramem/pkg/log"
	"github.com/cuemby/sutramem/pkg/metrics"
	"github.com/cuemby/sutramem/pkg/snapshot"
	"github.com/cuemby/sutramem/pkg/storage"
	"github.com/cuemby/sutramem/pkg/types"
	"github.com/cuemby/sutramem/pkg/wal"
	"github.com/cuemby/sutramem/pkg/writelog"
)

// Reconciler is the adaptive reconciler, spec §4.5. One instance per
// shard: it owns the shard's write log, WAL, and ANN index, and is the
// sole writer of the shard's snapshot handle.
type Reconciler struct {
	shardID uint32
	dir     string
	cfg     types.ReconcilerConfig

	handle *snapshot.Handle
	queue  *writelog.Queue
	wal    *wal.WAL
	index  *ann.Index
	events *events.Broker

	logger zerolog.Logger
	stopCh chan struct{}
	doneCh chan struct{}

	// flushNowCh carries a reply channel for synchronous flush_pending
	// barrier requests; Start's loop services it between cycles.
	flushNowCh chan chan error

	mu           sync.Mutex
	ema          float64
	lastInterval time.Duration
	lastCycleDur time.Duration
	health       float64
	degraded     atomic.Bool
}

// New constructs a Reconciler for one shard. dir is the shard's storage
// directory (containing storage.dat, wal.log, etc., per spec §6's
// persistent state layout).
func New(shardID uint32, dir string, cfg types.ReconcilerConfig, handle *snapshot.Handle, queue *writelog.Queue, w *wal.WAL, index *ann.Index, broker *events.Broker) *Reconciler {
	return &Reconciler{
		shardID: shardID,
		dir:     dir,
		cfg:     cfg,
		handle:  handle,
		queue:   queue,
		wal:     w,
		index:   index,
		events:  broker,
		logger:  log.WithShard(shardID),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		health:  1.0,
		flushNowCh: make(chan chan error),
	}
}

// Start begins the reconciliation loop in its own goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// FlushPending forces an immediate cycle (draining whatever is currently
// queued) and blocks until it completes, implementing the flush_pending
// barrier from spec §6: the caller's own writes are guaranteed visible
// once this returns. It returns the resulting snapshot sequence.
func (r *Reconciler) FlushPending() (uint64, error) {
	reply := make(chan error, 1)
	select {
	case r.flushNowCh <- reply:
	case <-r.stopCh:
		return 0, types.NewError("flush_pending", types.KindIO, nil)
	}
	if err := <-reply; err != nil {
		return 0, err
	}
	return r.handle.Load().Seq, nil
}

func (r *Reconciler) run() {
	defer close(r.doneCh)
	r.logger.Info().Msg("reconciler started")

	for {
		q := r.queue.Depth()
		r.updateEMA(float64(q))
		interval := r.computeInterval()

		r.mu.Lock()
		r.lastInterval = interval
		r.mu.Unlock()
		metrics.ReconcileIntervalSeconds.Set(interval.Seconds())
		metrics.QueueUtilization.Set(r.utilization())

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			r.cycle()
		case <-r.queue.NudgeCh():
			timer.Stop()
			r.cycle()
		case reply := <-r.flushNowCh:
			timer.Stop()
			pending := r.queue.Depth()
			err := r.cycle()
			for err == nil && r.cfg.BatchBudget > 0 && pending > r.cfg.BatchBudget {
				pending -= r.cfg.BatchBudget
				err = r.cycle()
			}
			reply <- err
		case <-r.stopCh:
			timer.Stop()
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// updateEMA folds q into the queue-depth exponential moving average,
// Q_t = alpha*q + (1-alpha)*Q_{t-1} (spec §4.5).
func (r *Reconciler) updateEMA(q float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ema = r.cfg.Alpha*q + (1-r.cfg.Alpha)*r.ema
}

func (r *Reconciler) utilization() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.QMax == 0 {
		return 0
	}
	return r.ema / float64(r.cfg.QMax)
}

// computeInterval evaluates the three-branch I* formula from spec §4.5.
func (r *Reconciler) computeInterval() time.Duration {
	u := r.utilization()
	switch {
	case u < 0.20:
		return r.cfg.IMax
	case u <= 0.70:
		return r.cfg.IBase
	default:
		p := (u - 0.70) / 0.30
		if p > 1 {
			p = 1
		}
		span := float64(r.cfg.IBase - r.cfg.IMin)
		return r.cfg.IMin + time.Duration((1-p)*span)
	}
}

// cycle drains the write log, builds and installs a new snapshot, inserts
// changed vectors into the ANN index, and flushes a fresh segment plus
// WAL checkpoint. It implements steps 4-8 of spec §4.5.
func (r *Reconciler) cycle() error {
	cycleTimer := metrics.NewTimer()
	defer func() {
		d := cycleTimer.Duration()
		r.mu.Lock()
		r.lastCycleDur = d
		r.mu.Unlock()
		cycleTimer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
		r.updateHealth(d)
	}()

	batch := r.queue.DrainUpTo(r.cfg.BatchBudget)
	if len(batch) == 0 {
		return nil
	}

	base := r.handle.Load()
	next := base
	var highSeq uint64
	vectorUpdates := make(map[types.ConceptID][]float32)
	var deleted []types.ConceptID

	for _, e := range batch {
		if e.Sequence > highSeq {
			highSeq = e.Sequence
		}
		switch e.Op {
		case wal.OpWriteConcept:
			c := &types.Concept{
				ID:         e.ConceptID,
				Content:    e.Content,
				Strength:   e.Strength,
				Confidence: e.Confidence,
				CreatedAt:  time.Unix(int64(e.CreatedSeconds), 0).UTC(),
			}
			if len(e.Vector) > 0 {
				c.Vector = e.Vector
			}
			next = next.WithConcept(c)
			if len(e.Vector) > 0 {
				vectorUpdates[e.ConceptID] = e.Vector
			}
		case wal.OpWriteAssociation:
			next = next.WithAssociation(types.Association{
				Source: e.Source,
				Target: e.Target,
				Type:   e.AssociationTyp,
				Weight: e.Weight,
			})
		case wal.OpDeleteConcept:
			deleted = append(deleted, e.ConceptID)
		}
	}

	for _, id := range deleted {
		var referencing []types.ConceptID
		next.Each(func(n *snapshot.Node) {
			for _, nb := range n.Neighbors {
				if nb.ID == id {
					referencing = append(referencing, n.Concept.ID)
					return
				}
			}
		})
		for _, from := range referencing {
			next = next.WithoutNeighbor(from, id)
		}
		next = next.WithoutConcept(id)
		delete(vectorUpdates, id)
	}

	next = next.WithSeq(base.Seq + 1)
	if !r.handle.CompareAndSwap(base, next) {
		r.logger.Warn().Msg("snapshot handle changed unexpectedly between load and swap")
		r.handle.Store(next)
	}

	for id, v := range vectorUpdates {
		if err := r.index.Insert(id, v); err != nil {
			r.logger.Error().Err(err).Str("concept_id", id.String()).Msg("ann insert failed")
		}
	}

	if err := r.flushSegment(next); err != nil {
		r.logger.Error().Err(err).Msg("segment flush failed")
		return err
	}
	if err := r.wal.Checkpoint(highSeq); err != nil {
		r.logger.Error().Err(err).Msg("wal checkpoint failed")
		return err
	}

	r.events.Publish(events.Event{Type: events.TypeSnapshotSwapped, ShardID: r.shardID, SnapshotSeq: next.Seq})
	return nil
}

func (r *Reconciler) flushSegment(s *snapshot.Snapshot) error {
	var concepts []*types.Concept
	var edges []types.Association
	seen := make(map[[32]byte]bool)
	s.Each(func(n *snapshot.Node) {
		concepts = append(concepts, n.Concept)
		for _, nb := range n.Neighbors {
			var key [32]byte
			copy(key[0:16], n.Concept.ID[:])
			copy(key[16:32], nb.ID[:])
			if seen[key] {
				return
			}
			seen[key] = true
			edges = append(edges, types.Association{Source: n.Concept.ID, Target: nb.ID, Type: nb.Type, Weight: nb.Weight})
		}
	})

	path := filepath.Join(r.dir, "storage.dat")
	f, err := os.Create(path)
	if err != nil {
		return types.NewError("reconciler.flushSegment", types.KindIO, err)
	}
	defer f.Close()
	return storage.WriteSegment(f, concepts, edges, time.Now())
}

// updateHealth degrades H(t) when utilization exceeds 0.9 or the cycle
// overran its computed interval (spec §4.5).
func (r *Reconciler) updateHealth(cycleDur time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.ema / math.Max(1, float64(r.cfg.QMax))
	h := r.health
	switch {
	case u > 0.9:
		h -= 0.1
	case cycleDur > r.lastInterval:
		h -= 0.05
	default:
		h += 0.02
	}
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}
	r.health = h
	metrics.HealthScore.Set(h)
	if h < 0.5 && !r.degraded.Load() {
		r.degraded.Store(true)
		r.events.Publish(events.Event{Type: events.TypeDegraded, ShardID: r.shardID, Message: "health below 0.5"})
	} else if h >= 0.5 {
		r.degraded.Store(false)
	}
}

// Snapshot returns (queue_utilization, health, interval_ms) for stats().
func (r *Reconciler) Snapshot() (utilization, health float64, intervalMillis int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := 0.0
	if r.cfg.QMax > 0 {
		u = r.ema / float64(r.cfg.QMax)
	}
	return u, r.health, r.lastInterval.Milliseconds()
}
