package txn

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sutramem/pkg/types"
)

type fakeParticipant struct {
	vote          bool
	prepareDelay  time.Duration
	commits       int
	aborts        int
	prepareCalled bool
}

func (p *fakeParticipant) Prepare(ctx context.Context, op EdgeOp) error {
	p.prepareCalled = true
	if p.prepareDelay > 0 {
		select {
		case <-time.After(p.prepareDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !p.vote {
		return types.NewError("prepare", types.KindAlreadyExists, nil)
	}
	return nil
}

func (p *fakeParticipant) Commit(ctx context.Context, op EdgeOp) error {
	p.commits++
	return nil
}

func (p *fakeParticipant) Abort(ctx context.Context, op EdgeOp) error {
	p.aborts++
	return nil
}

func testOp() EdgeOp {
	return EdgeOp{
		Source: types.IDFromUint64(2),
		Target: types.IDFromUint64(3),
		Type:   types.AssocSemantic,
		Weight: 0.7,
	}
}

func TestExecuteCommitsWhenBothVoteYes(t *testing.T) {
	c := NewCoordinator(time.Second)
	fwd := &fakeParticipant{vote: true}
	rev := &fakeParticipant{vote: true}

	err := c.Execute(context.Background(), testOp(), fwd, rev)
	require.NoError(t, err)
	require.Equal(t, 1, fwd.commits)
	require.Equal(t, 1, rev.commits)
	require.Zero(t, fwd.aborts)
	require.Zero(t, rev.aborts)
}

func TestExecuteAbortsWhenOneParticipantRefuses(t *testing.T) {
	c := NewCoordinator(time.Second)
	fwd := &fakeParticipant{vote: true}
	rev := &fakeParticipant{vote: false}

	err := c.Execute(context.Background(), testOp(), fwd, rev)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindTxnAborted, kind)
	require.Equal(t, 1, fwd.aborts)
	require.Zero(t, fwd.commits)
	require.Zero(t, rev.commits)
}

func TestExecuteAbortsOnTimeout(t *testing.T) {
	c := NewCoordinator(30 * time.Millisecond)
	fwd := &fakeParticipant{vote: true}
	rev := &fakeParticipant{vote: true, prepareDelay: time.Second}

	err := c.Execute(context.Background(), testOp(), fwd, rev)
	require.Error(t, err)
	var sErr *types.Error
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, types.AbortTimeout, sErr.Reason)
	require.Equal(t, 1, fwd.aborts)
}

func TestNodeLockerLockPairOrdersByID(t *testing.T) {
	l := NewNodeLocker()
	a := types.IDFromUint64(1)
	b := types.IDFromUint64(2)

	done := make(chan struct{})
	unlock := l.LockPair(b, a) // reversed argument order, should still lock a before b internally
	go func() {
		unlockOther := l.LockPair(a, b)
		unlockOther()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second LockPair should not have acquired both locks while the first holds them")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-done
}

func TestSweepRemovesStaleTransaction(t *testing.T) {
	c := NewCoordinator(10 * time.Millisecond)
	c.Start()
	defer c.Stop()

	c.mu.Lock()
	id := uuid.New()
	c.txns[id] = &transaction{id: id, state: Preparing, startedAt: time.Now().Add(-time.Second)}
	c.mu.Unlock()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, ok := c.txns[id]
		return !ok
	}, time.Second, 5*time.Millisecond)
}
