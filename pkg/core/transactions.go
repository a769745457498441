package core

import (
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

// Transaction is a committed transaction together with the fields the replay needs.
type Transaction struct {
	Lt             uint64
	Hash           ton.Bits256
	Account        ton.AccountID
	Utime          uint32
	Block          ton.BlockIDExt
	InMessage      *tlb.Message
	StateHashAfter ton.Bits256
	Raw            tlb.Transaction
}

// BlockTransaction is a short reference to a transaction found while scanning a block.
type BlockTransaction struct {
	Account ton.AccountID
	Lt      uint64
	Hash    ton.Bits256
}

// BlockContext describes the masterchain block that committed a transaction.
type BlockContext struct {
	McSeqno    uint32
	ShardSeqno uint32
	Shard      ton.BlockIDExt
	RandSeed   ton.Bits256
	Config     *boc.Cell
}
