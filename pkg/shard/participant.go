package shard

import (
	"context"

	"github.com/cuemby/sutramem/pkg/txn"
	"github.com/cuemby/sutramem/pkg/types"
)

// participant adapts a Shard to txn.Participant for one side of a
// cross-shard create_association. reversed selects which directed edge
// this shard is responsible for: the forward participant creates
// source->target on shard(source); the reverse participant creates the
// companion target->source edge on shard(target) (spec §4.8/§4.9).
type participant struct {
	shard    Shard
	reversed bool
}

func (p *participant) association(op txn.EdgeOp) types.Association {
	if !p.reversed {
		return types.Association{Source: op.Source, Target: op.Target, Type: op.Type, Weight: op.Weight}
	}
	return types.Association{Source: op.Target, Target: op.Source, Type: op.Type, Weight: op.Weight}
}

func (p *participant) Prepare(ctx context.Context, op txn.EdgeOp) error {
	return p.shard.PrepareAssociation(ctx, p.association(op))
}

func (p *participant) Commit(ctx context.Context, op txn.EdgeOp) error {
	return p.shard.CommitAssociation(ctx, p.association(op))
}

func (p *participant) Abort(ctx context.Context, op txn.EdgeOp) error {
	return p.shard.AbortAssociation(ctx, p.association(op))
}
