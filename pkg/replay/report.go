package replay

import (
	"encoding/json"
	"fmt"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/tx-retracer/pkg/actions"
	"github.com/txsociety/tx-retracer/pkg/core"
	"github.com/txsociety/tx-retracer/pkg/vmlog"
	"math/big"
	"strconv"
)

type Money struct {
	BalanceBefore uint64
	TotalFees     uint64
	SentTotal     uint64
	BalanceAfter  uint64
}

type ComputeInfo struct {
	Skipped bool
	Success bool
	// ExitCode is the action phase result code when the compute phase exited with 0.
	ExitCode int32
	VmSteps  uint32
	GasUsed  uint64
	GasFees  uint64
}

// Report is the reconstruction of one transaction.
type Report struct {
	Sender               *ton.AccountID
	Contract             ton.AccountID
	Amount               *uint64
	Utime                uint32
	Lt                   uint64
	Hash                 ton.Bits256
	McSeqno              uint32
	ShardSeqno           uint32
	InMessage            core.Message
	Money                Money
	Compute              ComputeInfo
	Steps                []vmlog.Step
	Actions              []actions.Action
	StateUpdateHashOk    bool
	SiblingStateHashesOk bool
	TargetIsLast         bool
	Siblings             []SiblingResult
	Logs                 string
	DebugLogs            string
	EngineVersion        core.EngineVersion
	Diagnostics          []vmlog.Diagnostic
	Link                 string
}

type moneyPrintable struct {
	BalanceBefore string `json:"balance_before"`
	TotalFees     string `json:"total_fees"`
	SentTotal     string `json:"sent_total"`
	BalanceAfter  string `json:"balance_after"`
}

type computePrintable struct {
	Skipped  bool   `json:"skipped"`
	Success  bool   `json:"success"`
	ExitCode int32  `json:"exit_code"`
	VmSteps  uint32 `json:"vm_steps"`
	GasUsed  string `json:"gas_used"`
	GasFees  string `json:"gas_fees"`
}

type siblingPrintable struct {
	Lt          string `json:"lt"`
	Hash        string `json:"hash"`
	Balance     string `json:"balance"`
	StateHashOk bool   `json:"state_hash_ok"`
}

type reportPrintable struct {
	Sender               string                `json:"sender,omitempty"`
	Contract             string                `json:"contract"`
	Amount               string                `json:"amount,omitempty"`
	Utime                uint32                `json:"utime"`
	Lt                   string                `json:"lt"`
	Hash                 string                `json:"hash"`
	McSeqno              uint32                `json:"mc_seqno"`
	ShardSeqno           uint32                `json:"shard_seqno"`
	InMessage            core.MessagePrintable `json:"in_message"`
	Money                moneyPrintable        `json:"money"`
	Compute              computePrintable      `json:"compute"`
	Steps                []vmlog.Step          `json:"steps"`
	Actions              []actions.Action      `json:"actions"`
	StateUpdateHashOk    bool                  `json:"state_update_hash_ok"`
	SiblingStateHashesOk bool                  `json:"sibling_state_hashes_ok"`
	TargetIsLast         bool                  `json:"target_is_last"`
	Siblings             []siblingPrintable    `json:"siblings"`
	Logs                 string                `json:"executor_logs"`
	DebugLogs            string                `json:"debug_logs,omitempty"`
	EngineVersion        core.EngineVersion    `json:"engine_version"`
	Diagnostics          []vmlog.Diagnostic    `json:"diagnostics,omitempty"`
	Link                 string                `json:"link"`
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func (r Report) MarshalJSON() ([]byte, error) {
	res := reportPrintable{
		Contract:   r.Contract.ToRaw(),
		Utime:      r.Utime,
		Lt:         formatUint(r.Lt),
		Hash:       r.Hash.Hex(),
		McSeqno:    r.McSeqno,
		ShardSeqno: r.ShardSeqno,
		InMessage:  core.ConvertMessageToPrintable(r.InMessage),
		Money: moneyPrintable{
			BalanceBefore: formatUint(r.Money.BalanceBefore),
			TotalFees:     formatUint(r.Money.TotalFees),
			SentTotal:     formatUint(r.Money.SentTotal),
			BalanceAfter:  formatUint(r.Money.BalanceAfter),
		},
		Compute: computePrintable{
			Skipped:  r.Compute.Skipped,
			Success:  r.Compute.Success,
			ExitCode: r.Compute.ExitCode,
			VmSteps:  r.Compute.VmSteps,
			GasUsed:  formatUint(r.Compute.GasUsed),
			GasFees:  formatUint(r.Compute.GasFees),
		},
		Steps:                r.Steps,
		Actions:              r.Actions,
		StateUpdateHashOk:    r.StateUpdateHashOk,
		SiblingStateHashesOk: r.SiblingStateHashesOk,
		TargetIsLast:         r.TargetIsLast,
		Siblings:             []siblingPrintable{},
		Logs:                 r.Logs,
		DebugLogs:            r.DebugLogs,
		EngineVersion:        r.EngineVersion,
		Diagnostics:          r.Diagnostics,
		Link:                 r.Link,
	}
	if r.Sender != nil {
		res.Sender = r.Sender.ToRaw()
	}
	if r.Amount != nil {
		res.Amount = formatUint(*r.Amount)
	}
	if res.Steps == nil {
		res.Steps = []vmlog.Step{}
	}
	if res.Actions == nil {
		res.Actions = []actions.Action{}
	}
	for _, s := range r.Siblings {
		res.Siblings = append(res.Siblings, siblingPrintable{
			Lt:          formatUint(s.Lt),
			Hash:        s.Hash.Hex(),
			Balance:     formatUint(s.Balance),
			StateHashOk: s.StateHashOk,
		})
	}
	return json.Marshal(res)
}

// computeInfo requires an ordinary transaction.
func computeInfo(tx tlb.Transaction) (ComputeInfo, error) {
	if tx.Description.SumType != "TransOrd" {
		return ComputeInfo{}, fmt.Errorf("%w: %v", core.ErrUnsupportedTransaction, tx.Description.SumType)
	}
	description := tx.Description.TransOrd
	if description.ComputePh.SumType == "TrPhaseComputeSkipped" {
		return ComputeInfo{Skipped: true}, nil
	}
	vm := description.ComputePh.TrPhaseComputeVm
	gasUsed := big.Int(vm.Vm.GasUsed)
	info := ComputeInfo{
		Success:  vm.Success,
		ExitCode: vm.Vm.ExitCode,
		VmSteps:  vm.Vm.VmSteps,
		GasUsed:  gasUsed.Uint64(),
		GasFees:  uint64(vm.GasFees),
	}
	if info.ExitCode == 0 && description.Action.Exists {
		info.ExitCode = description.Action.Value.Value.ResultCode
	}
	return info, nil
}

func sentTotal(tx tlb.Transaction) uint64 {
	var total uint64
	for _, m := range tx.Msgs.OutMsgs.Values() {
		if m.Value.Info.SumType == "IntMsgInfo" {
			total += uint64(m.Value.Info.IntMsgInfo.Value.Grams)
		}
	}
	return total
}

func explorerLink(hash ton.Bits256, testnet bool) string {
	if testnet {
		return "https://testnet.tonviewer.com/transaction/" + hash.Hex()
	}
	return "https://tonviewer.com/transaction/" + hash.Hex()
}
