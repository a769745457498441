package core

import (
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

// Verbosity of the VM log produced by the emulator.
type Verbosity int

const (
	VerbosityShort Verbosity = iota
	VerbosityFull
	VerbosityFullLocation
	VerbosityFullLocationGas
	VerbosityFullLocationStack
	VerbosityFullLocationStackVerbose
)

type EmulationParams struct {
	Config       *boc.Cell
	Libraries    map[ton.Bits256]*boc.Cell
	Account      Snapshot
	Message      tlb.Message
	Now          uint32
	Lt           uint64
	RandSeed     ton.Bits256
	Verbosity    Verbosity
	IgnoreChksig bool
	DebugEnabled bool
}

type EmulationResult struct {
	Success    bool
	Error      string
	VmExitCode int
	Account    Snapshot
	// Transaction is nil when the emulator did not produce one.
	Transaction    *tlb.Transaction
	StateHashAfter ton.Bits256
	VmLog          string
	// Actions is the hex BoC of the final action cell, empty if not reported.
	Actions   string
	Logs      string
	DebugLogs string
}

type EngineVersion struct {
	CommitHash string `json:"commit_hash"`
	CommitDate string `json:"commit_date"`
}
