package vmlog

import (
	"fmt"
	"github.com/txsociety/tx-retracer/pkg/stack"
	"strconv"
	"strings"
)

const (
	executePrefix          = "execute "
	gasPrefix              = "gas remaining:"
	stackPrefix            = "stack:"
	handlingPrefix         = "handling exception code "
	defaultHandlerPrefix   = "default exception handler, terminating vm with exit code "
	finalC5Prefix          = "final c5:"
	unknownInstructionName = "unknown instruction"
)

type Step struct {
	Instruction string `json:"instruction"`
	// Price is the gas consumed since the previous step, nil when unknown.
	Price        *int64        `json:"price"`
	GasRemaining int64         `json:"gas_remaining"`
	StackAfter   []stack.Value `json:"stack_after"`
	Error        *StepError    `json:"error,omitempty"`
}

type StepError struct {
	ExitCode int    `json:"exit_code"`
	Text     string `json:"text"`
}

type Diagnostic struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type Trace struct {
	Steps []Step `json:"steps"`
	// FinalC5 is the hex BoC of the action cell printed at the end of the log.
	FinalC5     string       `json:"final_c5,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

type state int

const (
	awaitingInstruction state = iota
	awaitingGas
	ready
)

type parser struct {
	trace       Trace
	state       state
	instruction string
	gas         int64
	gasPending  bool
	lastGas     int64
	line        int
}

// Parse builds execution steps from a VM log. It never fails: anomalies of the log
// end up in Trace.Diagnostics. Parsing stops at the first exception line.
func Parse(log string) Trace {
	p := parser{trace: Trace{Steps: []Step{}}}
	for i, line := range strings.Split(log, "\n") {
		p.line = i + 1
		if p.consume(strings.TrimRight(line, "\r")) {
			break
		}
	}
	if p.state != awaitingInstruction {
		p.warn("no stack for instruction %v", p.instruction)
	}
	return p.trace
}

func (p *parser) warn(format string, args ...any) {
	p.trace.Diagnostics = append(p.trace.Diagnostics, Diagnostic{Line: p.line, Message: fmt.Sprintf(format, args...)})
}

// consume returns true when parsing must stop.
func (p *parser) consume(line string) bool {
	switch {
	case strings.HasPrefix(line, executePrefix):
		p.execute(strings.TrimPrefix(line, executePrefix))
	case strings.HasPrefix(line, gasPrefix):
		p.gasRemaining(strings.TrimSpace(strings.TrimPrefix(line, gasPrefix)))
	case strings.HasPrefix(line, stackPrefix):
		p.stack(line)
	case strings.HasPrefix(line, handlingPrefix):
		codeText, reason, _ := strings.Cut(strings.TrimPrefix(line, handlingPrefix), ":")
		p.exception(codeText, strings.TrimSpace(reason))
		return true
	case strings.HasPrefix(line, defaultHandlerPrefix):
		p.exception(strings.TrimPrefix(line, defaultHandlerPrefix), line)
		return true
	case strings.HasPrefix(line, finalC5Prefix):
		payload := strings.TrimSpace(strings.TrimPrefix(line, finalC5Prefix))
		payload = strings.TrimSuffix(strings.TrimPrefix(payload, "C{"), "}")
		p.trace.FinalC5 = payload
	}
	return false
}

func (p *parser) execute(instruction string) {
	if p.state != awaitingInstruction {
		p.warn("no stack for instruction %v", p.instruction)
		p.gasPending = false
	}
	p.instruction = instruction
	p.state = awaitingGas
}

func (p *parser) gasRemaining(value string) {
	gas, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		p.warn("invalid gas remaining %q: %v", value, err)
		return
	}
	switch p.state {
	case awaitingInstruction:
		p.warn("gas remaining without instruction")
	case ready:
		p.warn("unexpected gas remaining for instruction %v", p.instruction)
	default:
		p.state = ready
	}
	p.gas = gas
	p.gasPending = true
}

func (p *parser) stack(line string) {
	values, warnings := stack.Tokenize(line)
	for _, w := range warnings {
		p.warn("%v", w)
	}
	gas := p.lastGas
	var price *int64
	if p.gasPending {
		gas = p.gas
		// gas limit changes make the difference negative, such price is unknown
		if diff := p.lastGas - gas; diff >= 0 {
			price = &diff
		}
	} else if p.state != awaitingInstruction {
		p.warn("no gas remaining for instruction %v", p.instruction)
	}

	switch {
	case p.state != awaitingInstruction:
		p.trace.Steps = append(p.trace.Steps, Step{
			Instruction:  p.instruction,
			Price:        price,
			GasRemaining: gas,
			StackAfter:   values,
		})
	case len(p.trace.Steps) > 0:
		p.warn("no instruction for stack")
		p.trace.Steps = append(p.trace.Steps, Step{
			Instruction:  unknownInstructionName,
			Price:        price,
			GasRemaining: gas,
			StackAfter:   values,
		})
	}
	// initial stack before the first instruction is skipped

	p.instruction = ""
	p.lastGas = gas
	p.gasPending = false
	p.state = awaitingInstruction
}

func (p *parser) exception(codeText, text string) {
	code, err := strconv.Atoi(strings.TrimSpace(codeText))
	if err != nil {
		p.warn("invalid exit code %q: %v", codeText, err)
	}
	gas := p.lastGas
	if p.gasPending {
		gas = p.gas
	}
	p.trace.Steps = append(p.trace.Steps, Step{
		Instruction:  p.instruction,
		GasRemaining: gas,
		StackAfter:   []stack.Value{},
		Error:        &StepError{ExitCode: code, Text: text},
	})
	p.instruction = ""
	p.gasPending = false
	p.state = awaitingInstruction
}
