package replay

import (
	"context"
	"fmt"
	"github.com/txsociety/tx-retracer/pkg/core"
	"log/slog"
	"sort"
	"time"
)

// Context is everything needed to rebuild the state preceding a transaction.
type Context struct {
	Target core.Transaction
	Block  core.BlockContext
	// Siblings are earlier transactions of the same account committed in the same
	// masterchain block, ascending by lt. The target is not included.
	Siblings     []core.Transaction
	MinLt        uint64
	TargetIsLast bool
}

type Resolver struct {
	blockchain blockchain
	delay      time.Duration
}

// NewResolver creates a resolver. A non-zero delay is inserted between data source
// calls for rate-limited backends.
func NewResolver(blockchain blockchain, delay time.Duration) *Resolver {
	return &Resolver{blockchain: blockchain, delay: delay}
}

func (r *Resolver) wait(ctx context.Context) error {
	if r.delay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.delay):
		return nil
	}
}

func (r *Resolver) Resolve(ctx context.Context, location core.TxLocation) (Context, error) {
	tx, err := r.blockchain.GetTransaction(ctx, location)
	if err != nil {
		return Context{}, fmt.Errorf("can not get transaction %v: %w", location, err)
	}
	if err := r.wait(ctx); err != nil {
		return Context{}, err
	}
	mcBlock, seed, err := r.blockchain.GetCommittingBlock(ctx, tx.Block)
	if err != nil {
		return Context{}, fmt.Errorf("can not find masterchain block for %v: %w", tx.Block.BlockID, err)
	}
	if err := r.wait(ctx); err != nil {
		return Context{}, err
	}
	blockTxs, err := r.blockchain.GetBlockTransactions(ctx, mcBlock)
	if err != nil {
		return Context{}, fmt.Errorf("can not get transactions of masterchain block %v: %w", mcBlock.Seqno, err)
	}

	minLt, isLast := tx.Lt, true
	for _, blockTx := range blockTxs {
		if blockTx.Account != tx.Account {
			continue
		}
		if blockTx.Lt < minLt {
			minLt = blockTx.Lt
		}
		if blockTx.Lt > tx.Lt {
			isLast = false
		}
	}

	var siblings []core.Transaction
	if minLt < tx.Lt {
		if err := r.wait(ctx); err != nil {
			return Context{}, err
		}
		history, err := r.blockchain.GetAccountTransactions(ctx, tx.Account, tx.Lt, tx.Hash, minLt)
		if err != nil {
			return Context{}, fmt.Errorf("can not get account transactions: %w", err)
		}
		for _, h := range history {
			if h.Lt >= minLt && h.Lt < tx.Lt {
				siblings = append(siblings, h)
			}
		}
		sort.SliceStable(siblings, func(i, j int) bool {
			return siblings[i].Lt < siblings[j].Lt
		})
	}

	if err := r.wait(ctx); err != nil {
		return Context{}, err
	}
	config, err := r.blockchain.GetConfig(ctx, mcBlock)
	if err != nil {
		return Context{}, fmt.Errorf("can not get config: %w", err)
	}
	slog.Debug("block context resolved",
		"tx", location.String(),
		"mc_seqno", mcBlock.Seqno,
		"shard_seqno", tx.Block.Seqno,
		"siblings", len(siblings),
		"target_is_last", isLast)
	return Context{
		Target: tx,
		Block: core.BlockContext{
			McSeqno:    mcBlock.Seqno,
			ShardSeqno: tx.Block.Seqno,
			Shard:      tx.Block,
			RandSeed:   seed,
			Config:     config,
		},
		Siblings:     siblings,
		MinLt:        minLt,
		TargetIsLast: isLast,
	}, nil
}
