package replay

import (
	"context"
	"fmt"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/tx-retracer/pkg/core"
	"log/slog"
)

// Environment holds emulation inputs shared by every transaction of one block.
type Environment struct {
	Config    *boc.Cell
	Libraries map[ton.Bits256]*boc.Cell
	RandSeed  ton.Bits256
}

type SiblingResult struct {
	Lt          uint64
	Hash        ton.Bits256
	Balance     uint64
	StateHashOk bool
}

type Result struct {
	// Snapshot is the account state right before the target transaction.
	Snapshot      core.Snapshot
	BalanceBefore uint64
	StateHashesOk bool
	Siblings      []SiblingResult
}

type Replayer struct {
	engine engine
}

func NewReplayer(engine engine) *Replayer {
	return &Replayer{engine: engine}
}

// Replay runs siblings one by one, each on top of the state produced by the previous one.
// The first replayed transaction gets a snapshot without last transaction linkage.
// Any engine failure aborts the replay. State hash mismatches are only reported.
func (r *Replayer) Replay(ctx context.Context, snapshot core.Snapshot, siblings []core.Transaction, env Environment) (Result, error) {
	result := Result{StateHashesOk: true}
	for i, tx := range siblings {
		if tx.InMessage == nil {
			return Result{}, fmt.Errorf("tx %v: %w", tx.Lt, core.ErrNoInMessage)
		}
		if i == 0 {
			snapshot = snapshot.WithoutLastTransaction()
		}
		res, err := r.engine.RunTransaction(ctx, core.EmulationParams{
			Config:       env.Config,
			Libraries:    env.Libraries,
			Account:      snapshot,
			Message:      *tx.InMessage,
			Now:          tx.Utime,
			Lt:           tx.Lt,
			RandSeed:     env.RandSeed,
			Verbosity:    core.VerbosityShort,
		})
		if err != nil {
			return Result{}, fmt.Errorf("tx %v: %w: %w", tx.Lt, core.ErrExecutionFailed, err)
		}
		if !res.Success {
			return Result{}, fmt.Errorf("tx %v: %w: %v", tx.Lt, core.ErrExecutionFailed, res.Error)
		}
		snapshot = res.Account
		hashOk := res.StateHashAfter == tx.StateHashAfter
		if !hashOk {
			slog.Warn("state hash mismatch after replay",
				"lt", tx.Lt,
				"hash", tx.Hash.Hex(),
				"expected", tx.StateHashAfter.Hex(),
				"got", res.StateHashAfter.Hex())
			result.StateHashesOk = false
		}
		result.Siblings = append(result.Siblings, SiblingResult{
			Lt:          tx.Lt,
			Hash:        tx.Hash,
			Balance:     snapshot.Balance(),
			StateHashOk: hashOk,
		})
	}
	result.Snapshot = snapshot
	result.BalanceBefore = snapshot.Balance()
	return result, nil
}
