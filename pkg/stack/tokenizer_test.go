package stack

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

func expectInt(t *testing.T, v Value, want int64) {
	t.Helper()
	i, ok := v.(Int)
	if !ok {
		t.Fatalf("expected int %v, got %T", want, v)
	}
	if !i.Value.IsInt64() || i.Value.Int64() != want {
		t.Fatalf("expected int %v, got %v", want, i.Value)
	}
}

func cellHex(t *testing.T, c *boc.Cell) string {
	t.Helper()
	b, err := c.ToBoc()
	if err != nil {
		t.Fatalf("serialize cell: %v", err)
	}
	return strings.ToUpper(hex.EncodeToString(b))
}

func TestTokenize_Order(t *testing.T) {
	for _, line := range []string{"stack: 5 10 ()", "stack: [ 5 10 () ] "} {
		values, warnings := Tokenize(line)
		if len(warnings) != 0 {
			t.Fatalf("unexpected warnings: %v", warnings)
		}
		if len(values) != 3 {
			t.Fatalf("expected 3 values, got %v", len(values))
		}
		expectInt(t, values[0], 5)
		expectInt(t, values[1], 10)
		if _, ok := values[2].(Null); !ok {
			t.Errorf("expected null, got %T", values[2])
		}
	}
}

func TestTokenize_Tuples(t *testing.T) {
	values, warnings := Tokenize("stack: [1 2] 3")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 values, got %v", len(values))
	}
	tuple, ok := values[0].(Tuple)
	if !ok || len(tuple) != 2 {
		t.Fatalf("expected tuple of 2, got %#v", values[0])
	}
	expectInt(t, tuple[0], 1)
	expectInt(t, tuple[1], 2)
	expectInt(t, values[1], 3)

	values, warnings = Tokenize("stack: [ [[1 -2] 3] [] (7) -115792089237316195423570985008687907853269984665640564039457584007913129639936 ]")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(values) != 4 {
		t.Fatalf("expected 4 values, got %v", len(values))
	}
	outer := values[0].(Tuple)
	if len(outer) != 2 {
		t.Fatalf("expected outer tuple of 2, got %v", len(outer))
	}
	inner := outer[0].(Tuple)
	expectInt(t, inner[0], 1)
	expectInt(t, inner[1], -2)
	expectInt(t, outer[1], 3)
	if empty := values[1].(Tuple); len(empty) != 0 {
		t.Errorf("expected empty tuple, got %v", empty)
	}
	single := values[2].(Tuple)
	if len(single) != 1 {
		t.Fatalf("expected tuple of one, got %v", single)
	}
	expectInt(t, single[0], 7)
	if i := values[3].(Int); i.Value.Sign() >= 0 || i.Value.BitLen() != 257 {
		t.Errorf("expected big negative int, got %v", i.Value)
	}
}

func TestTokenize_Unbalanced(t *testing.T) {
	values, warnings := Tokenize("stack: 1] [2 3")
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 values, got %v", len(values))
	}
	expectInt(t, values[0], 1)
	tuple := values[1].(Tuple)
	if len(tuple) != 2 {
		t.Fatalf("unclosed tuple must keep its items, got %v", tuple)
	}
}

func TestTokenize_CellRoundTrip(t *testing.T) {
	c := boc.NewCell()
	if err := c.WriteUint(0xdeadbeef, 32); err != nil {
		t.Fatal(err)
	}
	child := boc.NewCell()
	if err := child.WriteUint(7, 5); err != nil {
		t.Fatal(err)
	}
	if err := c.AddRef(child); err != nil {
		t.Fatal(err)
	}
	payload := cellHex(t, c)
	wantHash, err := c.Hash()
	if err != nil {
		t.Fatal(err)
	}

	values, warnings := Tokenize("stack: [ C{" + payload + "} BC{" + payload + "} CS{" + payload + "} ]")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %v", len(values))
	}
	cell, ok := values[0].(Cell)
	if !ok {
		t.Fatalf("expected cell, got %T", values[0])
	}
	if cell.Hex != payload {
		t.Errorf("cell hex must round trip: %v != %v", cell.Hex, payload)
	}
	hash, err := cell.Cell.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(hash, wantHash) {
		t.Errorf("decoded cell hash mismatch")
	}
	if _, ok := values[1].(Builder); !ok {
		t.Errorf("expected builder, got %T", values[1])
	}
	if _, ok := values[2].(Slice); !ok {
		t.Errorf("expected slice, got %T", values[2])
	}
}

func TestTokenize_AddressSlice(t *testing.T) {
	account := ton.MustParseAccountID("0:" + strings.Repeat("5a", 32))
	c := boc.NewCell()
	if err := tlb.Marshal(c, account.ToMsgAddress()); err != nil {
		t.Fatal(err)
	}
	if c.BitsAvailableForRead() != addrStdBits {
		t.Fatalf("expected %v bits, got %v", addrStdBits, c.BitsAvailableForRead())
	}
	values, warnings := Tokenize("stack: [ CS{" + cellHex(t, c) + "} ]")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	addr, ok := values[0].(Address)
	if !ok {
		t.Fatalf("expected address, got %T", values[0])
	}
	if addr.Account != account {
		t.Errorf("expected %v, got %v", account.ToRaw(), addr.Account.ToRaw())
	}
}

func TestTokenize_ExternalAddressSlice(t *testing.T) {
	c := boc.NewCell()
	steps := []error{
		c.WriteUint(1, 2),   // addr_extern
		c.WriteUint(256, 9), // len
	}
	for i := 0; i < 4; i++ {
		steps = append(steps, c.WriteUint(0x0123456789abcdef, 64))
	}
	for _, err := range steps {
		if err != nil {
			t.Fatal(err)
		}
	}
	if c.BitsAvailableForRead() != addrStdBits {
		t.Fatalf("expected %v bits, got %v", addrStdBits, c.BitsAvailableForRead())
	}
	values, warnings := Tokenize("stack: [ CS{" + cellHex(t, c) + "} ]")
	if _, ok := values[0].(Slice); !ok {
		t.Fatalf("expected slice, got %T", values[0])
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "not addr_std") {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestTokenize_Degraded(t *testing.T) {
	values, warnings := Tokenize("stack: [ C{ZZ} Cont{vmc_std} NaN 4 ]")
	if len(values) != 4 {
		t.Fatalf("expected 4 values, got %v", len(values))
	}
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %v", warnings)
	}
	for i, want := range []string{"C{ZZ}", "Cont{vmc_std}", "NaN"} {
		raw, ok := values[i].(Raw)
		if !ok {
			t.Fatalf("expected raw at %v, got %T", i, values[i])
		}
		if string(raw) != want {
			t.Errorf("expected %v, got %v", want, raw)
		}
	}
	expectInt(t, values[3], 4)
}

func TestValueJSON(t *testing.T) {
	values, _ := Tokenize("stack: [ 1 () [] [2 x] ]")
	b, err := json.Marshal(values)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"type":"int","value":"1"},{"type":"null"},{"type":"tuple","items":[]},{"type":"tuple","items":[{"type":"int","value":"2"},{"type":"raw","value":"x"}]}]`
	if string(b) != want {
		t.Errorf("unexpected json:\n%s\nwant:\n%s", b, want)
	}
}
