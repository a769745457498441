package blockchain

import (
	"context"
	"errors"
	"fmt"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/config"
	"github.com/tonkeeper/tongo/liteapi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/tx-retracer/pkg/core"
	"log/slog"
)

const (
	masterchainShard = 0x8000000000000000
	// lookup by seqno
	lookupModeSeqno = 1
	// shard blocks are usually committed within a few masterchain blocks
	maxCommitDistance = 32
	historyBatch      = 16
)

type Client struct {
	connection *liteapi.Client
}

func New(ls []config.LiteServer, testnet bool) (*Client, error) {
	options := make([]liteapi.Option, 0)
	if len(ls) > 0 {
		options = append(options, liteapi.WithLiteServers(ls))
		options = append(options, liteapi.WithMaxConnectionsNumber(len(ls)))
	} else if testnet {
		options = append(options, liteapi.Testnet())
		slog.Warn("liteservers are not set, retrieving liteservers from testnet global config")
	} else {
		options = append(options, liteapi.Mainnet())
		slog.Warn("liteservers are not set, retrieving liteservers from global config")
	}
	api, err := liteapi.NewClient(options...)
	if err != nil {
		return nil, err
	}
	return &Client{connection: api}, nil
}

func (c *Client) GetTransaction(ctx context.Context, location core.TxLocation) (core.Transaction, error) {
	txs, err := c.connection.GetTransactions(ctx, 1, location.Account, location.Lt, location.Hash)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(txs) == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	if ton.Bits256(txs[0].Hash()) != location.Hash {
		return core.Transaction{}, core.ErrTxMismatch
	}
	return convertTransaction(location.Account, txs[0]), nil
}

// GetAccountTransactions returns transactions of the account starting from lt/hash and going
// back in time while lt >= minLt. The newest transaction is first.
func (c *Client) GetAccountTransactions(ctx context.Context, a ton.AccountID, lt uint64, hash ton.Bits256, minLt uint64) ([]core.Transaction, error) {
	var transactions []core.Transaction
	for lt != 0 && lt >= minLt {
		txs, err := c.connection.GetTransactions(ctx, historyBatch, a, lt, hash)
		if err != nil {
			return nil, err
		}
		if len(txs) == 0 {
			break
		}
		for _, tx := range txs {
			if ton.Bits256(tx.Hash()) != hash {
				return nil, core.ErrTxMismatch
			}
			if tx.Lt < minLt {
				return transactions, nil
			}
			transactions = append(transactions, convertTransaction(a, tx))
			hash = ton.Bits256(tx.PrevTransHash)
			lt = tx.PrevTransLt
			if lt == 0 {
				break
			}
		}
	}
	return transactions, nil
}

func (c *Client) lookupMasterchainBlock(ctx context.Context, seqno uint32) (ton.BlockIDExt, error) {
	id, _, err := c.connection.LookupBlock(ctx, ton.BlockID{Workchain: -1, Shard: masterchainShard, Seqno: seqno}, lookupModeSeqno, nil, nil)
	return id, err
}

// GetCommittingBlock finds the first masterchain block whose shard configuration includes
// the given shard block. The random seed of the shard block is returned with it.
func (c *Client) GetCommittingBlock(ctx context.Context, shardBlock ton.BlockIDExt) (ton.BlockIDExt, ton.Bits256, error) {
	block, err := c.connection.GetBlock(ctx, shardBlock)
	if err != nil {
		return ton.BlockIDExt{}, ton.Bits256{}, fmt.Errorf("can not get block: %w", err)
	}
	seed := ton.Bits256(block.Extra.RandSeed)
	if shardBlock.Workchain == -1 {
		return shardBlock, seed, nil
	}
	seqno := block.Info.MinRefMcSeqno
	for i := 0; i < maxCommitDistance; i++ {
		mc, err := c.lookupMasterchainBlock(ctx, seqno)
		if err != nil {
			return ton.BlockIDExt{}, ton.Bits256{}, fmt.Errorf("can not lookup masterchain block %v: %w", seqno, err)
		}
		shards, err := c.connection.GetAllShardsInfo(ctx, mc)
		if err != nil {
			return ton.BlockIDExt{}, ton.Bits256{}, fmt.Errorf("can not get shards of masterchain block %v: %w", seqno, err)
		}
		if commits(shards, shardBlock) {
			return mc, seed, nil
		}
		seqno++
	}
	return ton.BlockIDExt{}, ton.Bits256{}, fmt.Errorf("shard block %v is not committed: %w", shardBlock.Seqno, core.ErrNotFound)
}

// commits reports whether a masterchain block with the given shard tips includes shardBlock.
func commits(tips []ton.BlockIDExt, shardBlock ton.BlockIDExt) bool {
	for _, s := range tips {
		if s.Workchain == shardBlock.Workchain && ShardsIntersect(s.Shard, shardBlock.Shard) && s.Seqno >= shardBlock.Seqno {
			return true
		}
	}
	return false
}

// GetBlockTransactions returns transactions of the masterchain block and of every shard block
// it commits.
func (c *Client) GetBlockTransactions(ctx context.Context, masterchainBlock ton.BlockIDExt) ([]core.BlockTransaction, error) {
	block, err := c.connection.GetBlock(ctx, masterchainBlock)
	if err != nil {
		return nil, fmt.Errorf("can not get masterchain block: %w", err)
	}
	transactions := blockTransactions(-1, block)

	shards, err := c.connection.GetAllShardsInfo(ctx, masterchainBlock)
	if err != nil {
		return nil, fmt.Errorf("can not get shards: %w", err)
	}
	var prevShards []ton.BlockIDExt
	if masterchainBlock.Seqno > 0 {
		prev, err := c.lookupMasterchainBlock(ctx, masterchainBlock.Seqno-1)
		if err != nil {
			return nil, err
		}
		prevShards, err = c.connection.GetAllShardsInfo(ctx, prev)
		if err != nil {
			return nil, fmt.Errorf("can not get previous shards: %w", err)
		}
	}
	for _, r := range shardRanges(shards, prevShards) {
		for seqno := r.From; seqno <= r.Tip.Seqno; seqno++ {
			id := r.Tip
			if seqno != r.Tip.Seqno {
				id, _, err = c.connection.LookupBlock(ctx, ton.BlockID{Workchain: r.Tip.Workchain, Shard: r.Tip.Shard, Seqno: seqno}, lookupModeSeqno, nil, nil)
				if err != nil {
					return nil, fmt.Errorf("can not lookup shard block %v: %w", seqno, err)
				}
			}
			shardBlock, err := c.connection.GetBlock(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("can not get shard block %v: %w", seqno, err)
			}
			transactions = append(transactions, blockTransactions(r.Tip.Workchain, shardBlock)...)
		}
	}
	return transactions, nil
}

// shardRange is a run of blocks of one shard, From through Tip.Seqno.
type shardRange struct {
	Tip  ton.BlockIDExt
	From uint32
}

// shardRanges returns the shard blocks committed by a masterchain block with the given tips:
// everything after the intersecting tips of the previous masterchain block. Shards that did not
// advance are skipped.
func shardRanges(tips, prevTips []ton.BlockIDExt) []shardRange {
	var res []shardRange
	for _, tip := range tips {
		var (
			from  uint32
			found bool
		)
		for _, p := range prevTips {
			if p.Workchain == tip.Workchain && ShardsIntersect(p.Shard, tip.Shard) {
				from = max(from, p.Seqno+1)
				found = true
			}
		}
		if !found {
			from = tip.Seqno
		}
		if from > tip.Seqno {
			continue
		}
		res = append(res, shardRange{Tip: tip, From: from})
	}
	return res
}

func blockTransactions(workchain int32, block tlb.Block) []core.BlockTransaction {
	var res []core.BlockTransaction
	for _, tx := range block.AllTransactions() {
		res = append(res, core.BlockTransaction{
			Account: ton.AccountID{Workchain: workchain, Address: tx.AccountAddr},
			Lt:      tx.Lt,
			Hash:    ton.Bits256(tx.Hash()),
		})
	}
	return res
}

func (c *Client) GetConfig(ctx context.Context, masterchainBlock ton.BlockIDExt) (*boc.Cell, error) {
	configParams, err := c.connection.WithBlock(masterchainBlock).GetConfigAll(ctx, 0)
	if err != nil {
		return nil, err
	}
	cfg := boc.NewCell()
	if err := tlb.Marshal(cfg, configParams.Config); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) GetAccountState(ctx context.Context, masterchainSeqno uint32, a ton.AccountID) (tlb.ShardAccount, error) {
	block, err := c.lookupMasterchainBlock(ctx, masterchainSeqno)
	if err != nil {
		return tlb.ShardAccount{}, err
	}
	return c.connection.WithBlock(block).GetAccountState(ctx, a)
}

func (c *Client) GetLibraries(ctx context.Context, libraryList []ton.Bits256) (map[ton.Bits256]*boc.Cell, error) {
	if len(libraryList) == 0 {
		return map[ton.Bits256]*boc.Cell{}, nil
	}
	libs, err := c.connection.GetLibraries(ctx, libraryList)
	if err != nil {
		return nil, err
	}
	for _, h := range libraryList {
		if _, ok := libs[h]; !ok {
			return nil, errors.New("library not found: " + h.Hex())
		}
	}
	return libs, nil
}

// ShardsIntersect reports whether two shard prefixes of the same workchain overlap.
func ShardsIntersect(a, b uint64) bool {
	lowA, lowB := a&-a, b&-b
	low := max(lowA, lowB)
	mask := ^(low<<1 - 1)
	return a&mask == b&mask
}

func convertTransaction(a ton.AccountID, tx ton.Transaction) core.Transaction {
	transaction := core.Transaction{
		Lt:             tx.Lt,
		Hash:           ton.Bits256(tx.Hash()),
		Account:        a,
		Utime:          tx.Now,
		Block:          tx.BlockID,
		StateHashAfter: ton.Bits256(tx.StateUpdate.NewHash),
		Raw:            tx.Transaction,
	}
	if tx.Transaction.Msgs.InMsg.Exists {
		m := tx.Transaction.Msgs.InMsg.Value.Value
		transaction.InMessage = &m
	}
	return transaction
}
