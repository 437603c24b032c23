package txn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/sutramem/pkg/log"
	"github.com/cuemby/sutramem/pkg/metrics"
	"github.com/cuemby/sutramem/pkg/types"
)

// State is a participant's position in the 2PC state machine (spec
// §4.9).
type State int

const (
	Preparing State = iota
	Prepared
	Committed
	Aborted
)

// EdgeOp is the cross-shard operation a 2PC transaction carries: a
// forward edge on shard(source) and a reverse companion edge on
// shard(target), so get_neighbors(target) resolves locally afterwards.
type EdgeOp struct {
	Source types.ConceptID
	Target types.ConceptID
	Type   types.AssocType
	Weight float32
}

// Participant is one shard's half of a cross-shard create_association.
// Prepare validates its endpoint exists, locks it, and votes by returning
// nil (yes) or an error (no). The interface does not involve the WAL; the
// shard implementation in pkg/memory writes no record at Prepare and
// appends the edge's WAL record at Commit. A participant that votes yes
// must be able to Commit later without failing.
type Participant interface {
	Prepare(ctx context.Context, op EdgeOp) error
	Commit(ctx context.Context, op EdgeOp) error
	Abort(ctx context.Context, op EdgeOp) error
}

type transaction struct {
	id        uuid.UUID
	state     State
	startedAt time.Time
}

// Coordinator drives 2PC across exactly two participants per
// transaction (the two shards touched by a cross-shard edge). It tracks
// in-flight transactions so a background sweep can drop any tracking
// entry that outlives its timeout; the abort itself, per spec §4.9's
// presumed-abort rule, happens in Execute when the prepare phase times
// out.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu   sync.Mutex
	txns map[uuid.UUID]*transaction

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCoordinator builds a Coordinator with the given per-transaction
// timeout (spec's txn_timeout_secs, default 5s).
func NewCoordinator(timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Coordinator{
		timeout: timeout,
		logger:  log.WithComponent("txn"),
		txns:    make(map[uuid.UUID]*transaction),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the background sweep that removes any transaction still
// tracked past 2x the configured timeout from the coordinator's table — a
// backstop for entries that, for whatever reason, were not cleaned up by
// Execute itself. The sweep calls no participant.
func (c *Coordinator) Start() {
	go c.sweep()
}

// Stop halts the sweep goroutine.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Coordinator) sweep() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.timeout / 5)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			deadline := 2 * c.timeout
			c.mu.Lock()
			for id, t := range c.txns {
				if time.Since(t.startedAt) > deadline {
					c.logger.Warn().Str("txn_id", id.String()).Msg("sweeping stuck transaction, presumed abort")
					delete(c.txns, id)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Execute runs the full prepare/commit-or-abort protocol for op across
// forward (owns the forward edge, shard(source)) and reverse (owns the
// companion edge, shard(target)). It blocks until both participants have
// voted or the coordinator's timeout elapses.
func (c *Coordinator) Execute(ctx context.Context, op EdgeOp, forward, reverse Participant) error {
	id := uuid.New()
	t := &transaction{id: id, state: Preparing, startedAt: time.Now()}

	c.mu.Lock()
	c.txns[id] = t
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.txns, id)
		c.mu.Unlock()
	}()

	start := time.Now()
	logger := c.logger.With().Str("txn_id", id.String()).Logger()

	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	forwardErr, reverseErr := c.prepareBoth(pctx, op, forward, reverse)
	if forwardErr == nil && reverseErr == nil {
		t.state = Prepared
		c.commitBoth(context.Background(), op, forward, reverse, &logger)
		t.state = Committed
		metrics.TxnOutcomesTotal.WithLabelValues("committed").Inc()
		metrics.TxnDuration.Observe(time.Since(start).Seconds())
		return nil
	}

	reason := types.AbortParticipantRefused
	if pctx.Err() == context.DeadlineExceeded {
		reason = types.AbortTimeout
	}
	c.abortBoth(context.Background(), op, forward, reverse, forwardErr == nil, reverseErr == nil, &logger)
	t.state = Aborted

	outcome := "aborted_refused"
	if reason == types.AbortTimeout {
		outcome = "aborted_timeout"
	}
	metrics.TxnOutcomesTotal.WithLabelValues(outcome).Inc()
	metrics.TxnDuration.Observe(time.Since(start).Seconds())

	logger.Warn().Str("reason", string(reason)).Msg("cross-shard association aborted")
	return types.NewAbort("create_association", reason, firstNonNil(forwardErr, reverseErr))
}

func (c *Coordinator) prepareBoth(ctx context.Context, op EdgeOp, forward, reverse Participant) (error, error) {
	var wg sync.WaitGroup
	var forwardErr, reverseErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		forwardErr = forward.Prepare(ctx, op)
	}()
	go func() {
		defer wg.Done()
		reverseErr = reverse.Prepare(ctx, op)
	}()
	wg.Wait()
	return forwardErr, reverseErr
}

func (c *Coordinator) commitBoth(ctx context.Context, op EdgeOp, forward, reverse Participant, logger *zerolog.Logger) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := forward.Commit(ctx, op); err != nil {
			logger.Error().Err(err).Msg("forward participant commit failed after yes vote")
		}
	}()
	go func() {
		defer wg.Done()
		if err := reverse.Commit(ctx, op); err != nil {
			logger.Error().Err(err).Msg("reverse participant commit failed after yes vote")
		}
	}()
	wg.Wait()
}

func (c *Coordinator) abortBoth(ctx context.Context, op EdgeOp, forward, reverse Participant, forwardVotedYes, reverseVotedYes bool, logger *zerolog.Logger) {
	var wg sync.WaitGroup
	if forwardVotedYes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := forward.Abort(ctx, op); err != nil {
				logger.Error().Err(err).Msg("forward participant abort failed")
			}
		}()
	}
	if reverseVotedYes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reverse.Abort(ctx, op); err != nil {
				logger.Error().Err(err).Msg("reverse participant abort failed")
			}
		}()
	}
	wg.Wait()
}

func firstNonNil(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
