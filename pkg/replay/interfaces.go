package replay

import (
	"context"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/tx-retracer/pkg/core"
)

type blockchain interface {
	GetTransaction(ctx context.Context, location core.TxLocation) (core.Transaction, error)
	// GetCommittingBlock returns the masterchain block committing shardBlock and the rand seed of shardBlock.
	GetCommittingBlock(ctx context.Context, shardBlock ton.BlockIDExt) (ton.BlockIDExt, ton.Bits256, error)
	GetBlockTransactions(ctx context.Context, masterchainBlock ton.BlockIDExt) ([]core.BlockTransaction, error)
	GetAccountTransactions(ctx context.Context, a ton.AccountID, lt uint64, hash ton.Bits256, minLt uint64) ([]core.Transaction, error)
	GetConfig(ctx context.Context, masterchainBlock ton.BlockIDExt) (*boc.Cell, error)
	GetAccountState(ctx context.Context, masterchainSeqno uint32, a ton.AccountID) (tlb.ShardAccount, error)
	GetLibraries(ctx context.Context, hashes []ton.Bits256) (map[ton.Bits256]*boc.Cell, error)
}

type engine interface {
	RunTransaction(ctx context.Context, params core.EmulationParams) (core.EmulationResult, error)
	Version(ctx context.Context) (core.EngineVersion, error)
}
