package replay

import (
	"context"
	"fmt"
	"github.com/tonkeeper/tongo/boc"
	tongoCode "github.com/tonkeeper/tongo/code"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/tx-retracer/pkg/actions"
	"github.com/txsociety/tx-retracer/pkg/core"
	"github.com/txsociety/tx-retracer/pkg/vmlog"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"time"
)

// Retracer rebuilds the state preceding a transaction, emulates the transaction with a
// verbose VM log and turns the log into a Report.
type Retracer struct {
	blockchain blockchain
	engine     engine
	resolver   *Resolver
	replayer   *Replayer
	testnet    bool
}

func New(blockchain blockchain, engine engine, delay time.Duration, testnet bool) *Retracer {
	return &Retracer{
		blockchain: blockchain,
		engine:     engine,
		resolver:   NewResolver(blockchain, delay),
		replayer:   NewReplayer(engine),
		testnet:    testnet,
	}
}

func (r *Retracer) Retrace(ctx context.Context, location core.TxLocation) (Report, error) {
	rc, err := r.resolver.Resolve(ctx, location)
	if err != nil {
		return Report{}, err
	}
	target := rc.Target
	if target.InMessage == nil {
		return Report{}, core.ErrNoInMessage
	}

	var (
		initial tlb.ShardAccount
		version core.EngineVersion
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		initial, err = r.blockchain.GetAccountState(gCtx, rc.Block.McSeqno-1, target.Account)
		if err != nil {
			return fmt.Errorf("can not get account state: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		version, err = r.engine.Version(gCtx)
		if err != nil {
			return fmt.Errorf("can not get engine version: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	snapshot := core.NewSnapshot(initial)

	libs, err := r.collectLibraries(ctx, snapshot, *target.InMessage)
	if err != nil {
		return Report{}, err
	}
	env := Environment{
		Config:    rc.Block.Config,
		Libraries: libs,
		RandSeed:  rc.Block.RandSeed,
	}
	replayed, err := r.replayer.Replay(ctx, snapshot, rc.Siblings, env)
	if err != nil {
		return Report{}, err
	}
	account := replayed.Snapshot
	if len(rc.Siblings) == 0 {
		account = account.WithoutLastTransaction()
	}

	res, err := r.engine.RunTransaction(ctx, core.EmulationParams{
		Config:       env.Config,
		Libraries:    env.Libraries,
		Account:      account,
		Message:      *target.InMessage,
		Now:          target.Utime,
		Lt:           target.Lt,
		RandSeed:     env.RandSeed,
		Verbosity:    core.VerbosityFullLocationStackVerbose,
		DebugEnabled: true,
	})
	if err != nil {
		return Report{}, fmt.Errorf("target tx: %w: %w", core.ErrExecutionFailed, err)
	}
	if !res.Success {
		return Report{}, fmt.Errorf("target tx: %w: %v", core.ErrExecutionFailed, res.Error)
	}
	if res.Transaction == nil {
		return Report{}, fmt.Errorf("target tx: %w: no transaction in result", core.ErrExecutionFailed)
	}

	trace := vmlog.Parse(res.VmLog)
	for _, d := range trace.Diagnostics {
		slog.Debug("vm log anomaly", "tx", location.String(), "line", d.Line, "message", d.Message)
	}
	c5 := trace.FinalC5
	if c5 == "" {
		c5 = res.Actions
	}
	outActions, err := actions.Decode(c5)
	if err != nil {
		return Report{}, fmt.Errorf("can not decode actions: %w", err)
	}
	compute, err := computeInfo(*res.Transaction)
	if err != nil {
		return Report{}, err
	}
	emulatedIn := res.Transaction.Msgs.InMsg
	if !emulatedIn.Exists {
		return Report{}, fmt.Errorf("emulated tx: %w", core.ErrNoInMessage)
	}
	inMessage := core.ConvertMessage(emulatedIn.Value.Value)

	stateUpdateHashOk := res.StateHashAfter == target.StateHashAfter
	if !stateUpdateHashOk {
		slog.Warn("state update hash mismatch", "tx", location.String())
	}

	report := Report{
		Sender:               inMessage.Source,
		Contract:             target.Account,
		Utime:                res.Transaction.Now,
		Lt:                   res.Transaction.Lt,
		Hash:                 target.Hash,
		McSeqno:              rc.Block.McSeqno,
		ShardSeqno:           rc.Block.ShardSeqno,
		InMessage:            inMessage,
		Compute:              compute,
		Steps:                trace.Steps,
		Actions:              outActions,
		StateUpdateHashOk:    stateUpdateHashOk,
		SiblingStateHashesOk: replayed.StateHashesOk,
		TargetIsLast:         rc.TargetIsLast,
		Siblings:             replayed.Siblings,
		Logs:                 res.Logs,
		DebugLogs:            res.DebugLogs,
		EngineVersion:        version,
		Diagnostics:          trace.Diagnostics,
		Link:                 explorerLink(target.Hash, r.testnet),
		Money: Money{
			BalanceBefore: replayed.BalanceBefore,
			TotalFees:     uint64(res.Transaction.TotalFees.Grams),
			SentTotal:     sentTotal(*res.Transaction),
			BalanceAfter:  res.Account.Balance(),
		},
	}
	if inMessage.Type == "Int" {
		amount := inMessage.Value
		report.Amount = &amount
	}
	return report, nil
}

// collectLibraries gathers libraries of the account StateInit and public libraries referenced
// by the account code or by the code deployed with the in-message.
func (r *Retracer) collectLibraries(ctx context.Context, snapshot core.Snapshot, msg tlb.Message) (map[ton.Bits256]*boc.Cell, error) {
	libs := snapshot.Libraries()
	var codes []*boc.Cell
	if code := snapshot.Code(); code != nil {
		codes = append(codes, code)
	}
	if msg.Init.Exists {
		stateInit := msg.Init.Value.Value
		if stateInit.Code.Exists {
			code := stateInit.Code.Value.Value
			codes = append(codes, &code)
		}
	}
	var missing []ton.Bits256
	for _, code := range codes {
		hashes, err := tongoCode.FindLibraries(code)
		if err != nil {
			return nil, fmt.Errorf("can not find libraries: %w", err)
		}
		for _, h := range hashes {
			if _, ok := libs[h]; !ok {
				missing = append(missing, h)
			}
		}
	}
	if len(missing) == 0 {
		return libs, nil
	}
	public, err := r.blockchain.GetLibraries(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("can not get libraries: %w", err)
	}
	for h, lib := range public {
		libs[h] = lib
	}
	return libs, nil
}
