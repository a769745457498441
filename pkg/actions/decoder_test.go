package actions

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func writeGrams(t *testing.T, c *boc.Cell, amount uint64, size int) {
	t.Helper()
	must(t, c.WriteUint(uint64(size), 4))
	if size > 0 {
		must(t, c.WriteUint(amount, size*8))
	}
}

// internalMessage builds a MessageRelaxed with addr_none source and an empty inline body.
func internalMessage(t *testing.T, dest ton.AccountID, amount uint64) *boc.Cell {
	c := boc.NewCell()
	must(t, c.WriteUint(0, 1)) // int_msg_info$0
	must(t, c.WriteUint(1, 1)) // ihr_disabled
	must(t, c.WriteUint(1, 1)) // bounce
	must(t, c.WriteUint(0, 1)) // bounced
	must(t, c.WriteUint(0, 2)) // addr_none
	must(t, tlb.Marshal(c, dest.ToMsgAddress()))
	writeGrams(t, c, amount, 4)
	must(t, c.WriteUint(0, 1)) // no extra currencies
	writeGrams(t, c, 0, 0)     // ihr_fee
	writeGrams(t, c, 0, 0)     // fwd_fee
	must(t, c.WriteUint(0, 64))
	must(t, c.WriteUint(0, 32))
	must(t, c.WriteUint(0, 1)) // no init
	must(t, c.WriteUint(0, 1)) // inline body
	return c
}

func appendAction(t *testing.T, prev *boc.Cell, write func(c *boc.Cell)) *boc.Cell {
	c := boc.NewCell()
	must(t, c.AddRef(prev))
	write(c)
	return c
}

func toHex(t *testing.T, c *boc.Cell) string {
	b, err := c.ToBoc()
	must(t, err)
	return hex.EncodeToString(b)
}

func TestDecode_SendThenReserve(t *testing.T) {
	dest := ton.MustParseAccountID("0:" + strings.Repeat("11", 32))
	list := appendAction(t, boc.NewCell(), func(c *boc.Cell) {
		must(t, c.WriteUint(tagSendMsg, 32))
		must(t, c.WriteUint(3, 8))
		must(t, c.AddRef(internalMessage(t, dest, 1_000_000_000)))
	})
	list = appendAction(t, list, func(c *boc.Cell) {
		must(t, c.WriteUint(tagReserveCurrency, 32))
		must(t, c.WriteUint(2, 8))
		writeGrams(t, c, 500, 2)
		must(t, c.WriteUint(0, 1))
	})

	actions, err := Decode(toHex(t, list))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %v", len(actions))
	}
	send, ok := actions[0].(SendMsg)
	if !ok {
		t.Fatalf("expected send_msg first, got %T", actions[0])
	}
	if send.Mode != 3 {
		t.Errorf("expected mode 3, got %v", send.Mode)
	}
	if send.Message.Info.SumType != "IntMsgInfo" {
		t.Fatalf("expected internal message, got %v", send.Message.Info.SumType)
	}
	if v := uint64(send.Message.Info.IntMsgInfo.Value.Grams); v != 1_000_000_000 {
		t.Errorf("expected 1 TON, got %v", v)
	}
	to, err := ton.AccountIDFromTlb(send.Message.Info.IntMsgInfo.Dest)
	if err != nil || to == nil || *to != dest {
		t.Errorf("unexpected destination %v %v", to, err)
	}
	reserve, ok := actions[1].(ReserveCurrency)
	if !ok {
		t.Fatalf("expected reserve second, got %T", actions[1])
	}
	if reserve.Mode != 2 || uint64(reserve.Currency.Grams) != 500 {
		t.Errorf("unexpected reserve %+v", reserve)
	}

	b, err := json.Marshal(actions)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"type":"send_msg"`) || !strings.Contains(string(b), `"amount":"500"`) {
		t.Errorf("unexpected json %s", b)
	}
}

func TestDecode_CodeAndLibraries(t *testing.T) {
	code := boc.NewCell()
	must(t, code.WriteUint(0xff00, 16))
	var libHash tlb.Bits256
	libHash[0] = 0xab

	list := appendAction(t, boc.NewCell(), func(c *boc.Cell) {
		must(t, c.WriteUint(tagSetCode, 32))
		must(t, c.AddRef(code))
	})
	list = appendAction(t, list, func(c *boc.Cell) {
		must(t, c.WriteUint(tagChangeLibrary, 32))
		must(t, c.WriteUint(2, 7))
		must(t, c.WriteUint(0, 1))
		must(t, tlb.Marshal(c, libHash))
	})
	list = appendAction(t, list, func(c *boc.Cell) {
		must(t, c.WriteUint(tagChangeLibrary, 32))
		must(t, c.WriteUint(1, 7))
		must(t, c.WriteUint(1, 1))
		must(t, c.AddRef(code))
	})

	actions, err := DecodeCell(list)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %v", len(actions))
	}
	if _, ok := actions[0].(SetCode); !ok {
		t.Errorf("expected set_code, got %T", actions[0])
	}
	byHash := actions[1].(ChangeLibrary)
	if byHash.Mode != 2 || byHash.LibRef.Hash == nil || byHash.LibRef.Hash[0] != 0xab || byHash.LibRef.Cell != nil {
		t.Errorf("unexpected library by hash %+v", byHash)
	}
	byCell := actions[2].(ChangeLibrary)
	if byCell.Mode != 1 || byCell.LibRef.Cell == nil || byCell.LibRef.Hash != nil {
		t.Errorf("unexpected library by cell %+v", byCell)
	}
}

func TestDecode_Empty(t *testing.T) {
	actions, err := Decode("")
	if err != nil || len(actions) != 0 {
		t.Fatalf("expected empty list, got %v %v", actions, err)
	}
	actions, err = Decode(toHex(t, boc.NewCell()))
	if err != nil || len(actions) != 0 {
		t.Fatalf("expected empty list, got %v %v", actions, err)
	}
}

func TestDecode_UnknownTag(t *testing.T) {
	list := appendAction(t, boc.NewCell(), func(c *boc.Cell) {
		must(t, c.WriteUint(0xdeadbeef, 32))
	})
	_, err := DecodeCell(list)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected unknown action error, got %v", err)
	}
	if _, err := Decode("zz"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}
