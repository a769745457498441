package vmlog

import (
	"strings"
	"testing"

	"github.com/txsociety/tx-retracer/pkg/stack"
)

const normalLog = `code cell hash: 1F4A... offset: 0
stack: [ 100 ]
execute SETCP 0
gas remaining: 999
stack: [ 100 ]
execute PUSHINT 2
gas remaining: 981
stack: [ 100 2 ]
execute ADD
gas remaining: 963
stack: [ 102 ]
execute ACCEPT
gas remaining: 9963
stack: [ 102 ]
final c5: C{B5EE9C72410101010002000000D6D4E0AC}`

func expectPrice(t *testing.T, step Step, want int64) {
	t.Helper()
	if step.Price == nil {
		t.Fatalf("%v: expected price %v, got unknown", step.Instruction, want)
	}
	if *step.Price != want {
		t.Fatalf("%v: expected price %v, got %v", step.Instruction, want, *step.Price)
	}
}

func TestParse_Steps(t *testing.T) {
	trace := Parse(normalLog)
	if len(trace.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", trace.Diagnostics)
	}
	if len(trace.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %v", len(trace.Steps))
	}
	wantInstructions := []string{"SETCP 0", "PUSHINT 2", "ADD", "ACCEPT"}
	wantGas := []int64{999, 981, 963, 9963}
	for i, step := range trace.Steps {
		if step.Instruction != wantInstructions[i] {
			t.Errorf("step %v: expected %v, got %v", i, wantInstructions[i], step.Instruction)
		}
		if step.GasRemaining != wantGas[i] {
			t.Errorf("step %v: expected gas %v, got %v", i, wantGas[i], step.GasRemaining)
		}
		if step.Error != nil {
			t.Errorf("step %v: unexpected error %v", i, step.Error)
		}
	}
	if trace.Steps[0].Price != nil {
		t.Errorf("first step price must be unknown, got %v", *trace.Steps[0].Price)
	}
	expectPrice(t, trace.Steps[1], 18)
	expectPrice(t, trace.Steps[2], 18)
	if trace.Steps[3].Price != nil {
		t.Errorf("price after gas limit change must be unknown, got %v", *trace.Steps[3].Price)
	}
	if len(trace.Steps[1].StackAfter) != 2 {
		t.Fatalf("expected 2 stack values, got %v", trace.Steps[1].StackAfter)
	}
	if v, ok := trace.Steps[1].StackAfter[1].(stack.Int); !ok || v.Value.Int64() != 2 {
		t.Errorf("expected top of stack 2, got %v", trace.Steps[1].StackAfter[1])
	}
	if trace.FinalC5 != "B5EE9C72410101010002000000D6D4E0AC" {
		t.Errorf("unexpected final c5 %v", trace.FinalC5)
	}
}

func TestParse_HandlingException(t *testing.T) {
	log := strings.Join([]string{
		"execute PUSHINT 1",
		"gas remaining: 500",
		"stack: [ 1 ]",
		"execute CTOS",
		"handling exception code 7: type check error",
		"execute PUSHINT 3",
		"gas remaining: 400",
		"stack: [ 3 ]",
	}, "\n")
	trace := Parse(log)
	if len(trace.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %v", len(trace.Steps))
	}
	last := trace.Steps[1]
	if last.Error == nil {
		t.Fatalf("expected error step")
	}
	if last.Error.ExitCode != 7 || last.Error.Text != "type check error" {
		t.Errorf("unexpected error %+v", last.Error)
	}
	if last.Instruction != "CTOS" {
		t.Errorf("expected CTOS, got %v", last.Instruction)
	}
	if last.Price != nil {
		t.Errorf("error step must have unknown price")
	}
	if last.GasRemaining != 500 {
		t.Errorf("expected last known gas 500, got %v", last.GasRemaining)
	}
	if last.StackAfter == nil || len(last.StackAfter) != 0 {
		t.Errorf("expected empty stack, got %v", last.StackAfter)
	}
}

func TestParse_DefaultHandler(t *testing.T) {
	line := "default exception handler, terminating vm with exit code 35"
	trace := Parse("execute THROWIF 35\ngas remaining: 120\n" + line)
	if len(trace.Steps) != 1 {
		t.Fatalf("expected 1 step, got %v", len(trace.Steps))
	}
	step := trace.Steps[0]
	if step.Error == nil || step.Error.ExitCode != 35 || step.Error.Text != line {
		t.Fatalf("unexpected error %+v", step.Error)
	}
	if step.GasRemaining != 120 {
		t.Errorf("expected pending gas 120, got %v", step.GasRemaining)
	}
	if len(trace.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", trace.Diagnostics)
	}
}

func TestParse_Diagnostics(t *testing.T) {
	log := strings.Join([]string{
		"execute PUSHINT 1",
		"execute PUSHINT 2",
		"gas remaining: 90",
		"gas remaining: 80",
		"stack: [ 2 ]",
		"stack: [ 2 x ]",
		"execute NOP",
		"stack: [ 2 ]",
	}, "\n")
	trace := Parse(log)
	if len(trace.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %v", len(trace.Steps))
	}
	if trace.Steps[0].Instruction != "PUSHINT 2" || trace.Steps[0].GasRemaining != 80 {
		t.Errorf("unexpected first step %+v", trace.Steps[0])
	}
	unknown := trace.Steps[1]
	if unknown.Instruction != unknownInstructionName {
		t.Errorf("expected unknown instruction, got %v", unknown.Instruction)
	}
	if unknown.GasRemaining != 80 || unknown.Price != nil {
		t.Errorf("stack without gas must keep last gas with unknown price, got %+v", unknown)
	}
	if _, ok := unknown.StackAfter[1].(stack.Raw); !ok {
		t.Errorf("expected raw value, got %T", unknown.StackAfter[1])
	}
	nop := trace.Steps[2]
	if nop.GasRemaining != 80 || nop.Price != nil {
		t.Errorf("step without gas must keep last gas with unknown price, got %+v", nop)
	}
	wantLines := []int{2, 4, 6, 6, 8}
	if len(trace.Diagnostics) != len(wantLines) {
		t.Fatalf("expected %v diagnostics, got %v", len(wantLines), trace.Diagnostics)
	}
	for i, d := range trace.Diagnostics {
		if d.Line != wantLines[i] {
			t.Errorf("diagnostic %v: expected line %v, got %v (%v)", i, wantLines[i], d.Line, d.Message)
		}
	}
}

func TestParse_DanglingInstruction(t *testing.T) {
	trace := Parse("execute PUSHINT 1\ngas remaining: 10\nstack: [ 1 ]\nexecute RET\n")
	if len(trace.Steps) != 1 {
		t.Fatalf("expected 1 step, got %v", len(trace.Steps))
	}
	if len(trace.Diagnostics) != 1 {
		t.Fatalf("expected lost stack diagnostic, got %v", trace.Diagnostics)
	}
}
