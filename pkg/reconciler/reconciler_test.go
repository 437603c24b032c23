package reconciler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/sutramem/pkg/ann"
	"github.com/cuemby/sutramem/pkg/events"
	"github.com/cuemby/sutramem/pkg/snapshot"
	"github.com/cuemby/sutramem/pkg/types"
	"github.com/cuemby/sutramem/pkg/wal"
	"github.com/cuemby/sutramem/pkg/writelog"
)

func testCfg() types.ReconcilerConfig {
	return types.ReconcilerConfig{
		Alpha:       0.3,
		QMax:        10_000,
		IMin:        time.Millisecond,
		IBase:       50 * time.Millisecond,
		IMax:        time.Second,
		BatchBudget: 1000,
	}
}

func newTestReconciler(t *testing.T) *Reconciler {
	t.Helper()
	dir := t.TempDir()
	w, err := wal.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	return New(0, dir, testCfg(), snapshot.NewHandle(), writelog.NewQueue(10_000), w, ann.New(4, ann.DefaultParams()), broker)
}

func TestComputeIntervalIdleNominalHot(t *testing.T) {
	r := newTestReconciler(t)

	r.ema = 0.05 * float64(r.cfg.QMax) // u = 0.05 < 0.20
	require.Equal(t, r.cfg.IMax, r.computeInterval())

	r.ema = 0.5 * float64(r.cfg.QMax) // u = 0.5, nominal
	require.Equal(t, r.cfg.IBase, r.computeInterval())

	r.ema = float64(r.cfg.QMax) // u = 1.0, fully hot -> collapses to IMin
	require.Equal(t, r.cfg.IMin, r.computeInterval())

	r.ema = 0.85 * float64(r.cfg.QMax) // u = 0.85, halfway into the hot band
	got := r.computeInterval()
	require.Greater(t, got, r.cfg.IMin)
	require.Less(t, got, r.cfg.IBase)
}

func TestCycleDrainsBatchAndPersists(t *testing.T) {
	r := newTestReconciler(t)
	id := types.IDFromUint64(1)

	_, err := r.wal.Append(wal.Entry{
		Op:             wal.OpWriteConcept,
		ConceptID:      id,
		Content:        []byte("alpha"),
		Vector:         []float32{1, 0, 0, 0},
		CreatedSeconds: uint32(time.Now().Unix()),
	})
	require.NoError(t, err)
	seq := r.queue.Enqueue(wal.Entry{
		Op:             wal.OpWriteConcept,
		ConceptID:      id,
		Content:        []byte("alpha"),
		Vector:         []float32{1, 0, 0, 0},
		CreatedSeconds: uint32(time.Now().Unix()),
		Sequence:       1,
	})
	require.Equal(t, 1, seq)

	require.NoError(t, r.cycle())

	snap := r.handle.Load()
	c, ok := snap.GetConcept(id)
	require.True(t, ok)
	require.Equal(t, []byte("alpha"), c.Content)
	require.Equal(t, uint64(1), snap.Seq)

	require.FileExists(t, filepath.Join(r.dir, "storage.dat"))
	manifestPath := filepath.Join(r.dir, "manifest.json")
	require.FileExists(t, manifestPath)

	require.Equal(t, 1, r.index.Len())
}

func TestFlushPendingBarrierMakesWriteVisible(t *testing.T) {
	r := newTestReconciler(t)
	r.Start()
	defer r.Stop()

	id := types.IDFromUint64(7)
	_, err := r.wal.Append(wal.Entry{Op: wal.OpWriteConcept, ConceptID: id, Content: []byte("x")})
	require.NoError(t, err)
	r.queue.Enqueue(wal.Entry{Op: wal.OpWriteConcept, ConceptID: id, Content: []byte("x"), Sequence: 1})

	_, err = r.FlushPending()
	require.NoError(t, err)

	_, ok := r.handle.Load().GetConcept(id)
	require.True(t, ok)
}
