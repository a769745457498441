package core

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"strconv"
	"strings"
)

// TxLocation identifies a committed transaction of an account.
type TxLocation struct {
	Account ton.AccountID
	Lt      uint64
	Hash    ton.Bits256
}

func (l TxLocation) String() string {
	return fmt.Sprintf("%s:%d:%s", l.Account.ToRaw(), l.Lt, l.Hash.Hex())
}

// ParseTxLocation accepts an account in any form tongo understands, a decimal lt
// and a transaction hash in hex or base64.
func ParseTxLocation(account, lt, hash string) (TxLocation, error) {
	a, err := ton.ParseAccountID(account)
	if err != nil {
		return TxLocation{}, fmt.Errorf("invalid account: %w", err)
	}
	l, err := strconv.ParseUint(lt, 10, 64)
	if err != nil {
		return TxLocation{}, fmt.Errorf("invalid lt: %w", err)
	}
	h, err := ParseHash(hash)
	if err != nil {
		return TxLocation{}, err
	}
	return TxLocation{Account: a, Lt: l, Hash: h}, nil
}

func ParseHash(s string) (ton.Bits256, error) {
	var (
		b   []byte
		err error
	)
	if len(s) == 64 {
		b, err = hex.DecodeString(s)
	} else {
		s = strings.TrimRight(s, "=")
		b, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			b, err = base64.RawURLEncoding.DecodeString(s)
		}
	}
	if err != nil {
		return ton.Bits256{}, fmt.Errorf("invalid hash: %w", err)
	}
	if len(b) != 32 {
		return ton.Bits256{}, fmt.Errorf("invalid hash length: %d", len(b))
	}
	var h ton.Bits256
	copy(h[:], b)
	return h, nil
}

// Snapshot is an account state as consumed and produced by the execution engine.
// It is never mutated: every transformation returns a new Snapshot.
type Snapshot struct {
	account tlb.ShardAccount
}

func NewSnapshot(account tlb.ShardAccount) Snapshot {
	return Snapshot{account: account}
}

func (s Snapshot) ShardAccount() tlb.ShardAccount {
	return s.account
}

func (s Snapshot) LastTransaction() (uint64, ton.Bits256) {
	return s.account.LastTransLt, ton.Bits256(s.account.LastTransHash)
}

// WithoutLastTransaction clears the previous transaction linkage. The engine derives causal
// continuity from it and knows nothing about transactions outside of the replayed sequence.
func (s Snapshot) WithoutLastTransaction() Snapshot {
	account := s.account
	account.LastTransLt = 0
	account.LastTransHash = tlb.Bits256{}
	return Snapshot{account: account}
}

func (s Snapshot) Balance() uint64 {
	if s.account.Account.SumType != "Account" {
		return 0
	}
	return uint64(s.account.Account.Account.Storage.Balance.Grams)
}

// Code returns the code of an active account or nil.
func (s Snapshot) Code() *boc.Cell {
	if s.account.Account.Status() != tlb.AccountActive {
		return nil
	}
	code := s.account.Account.Account.Storage.State.AccountActive.StateInit.Code
	if !code.Exists {
		return nil
	}
	return &code.Value.Value
}

// Libraries returns the libraries stored in the account's own StateInit.
func (s Snapshot) Libraries() map[ton.Bits256]*boc.Cell {
	libs := map[ton.Bits256]*boc.Cell{}
	if s.account.Account.Status() != tlb.AccountActive {
		return libs
	}
	accountLibs := s.account.Account.Account.Storage.State.AccountActive.StateInit.Library
	for _, item := range accountLibs.Items() {
		libs[ton.Bits256(item.Key)] = &item.Value.Root
	}
	return libs
}
