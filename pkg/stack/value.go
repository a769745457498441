package stack

import (
	"encoding/json"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
	"math/big"
)

// Value is one TVM stack entry as printed in a VM log.
// The set of implementations is closed: Int, Null, Tuple, Cell, Slice, Builder,
// Continuation, Address and Raw.
type Value interface {
	Kind() Kind
	isValue()
}

type Kind string

const (
	KindInt          Kind = "int"
	KindNull         Kind = "null"
	KindTuple        Kind = "tuple"
	KindCell         Kind = "cell"
	KindSlice        Kind = "slice"
	KindBuilder      Kind = "builder"
	KindContinuation Kind = "continuation"
	KindAddress      Kind = "address"
	KindRaw          Kind = "raw"
)

type Int struct {
	Value *big.Int
}

type Null struct{}

type Tuple []Value

// CellData is the payload shared by every cell-like entry. Hex keeps the exact
// BoC text from the log.
type CellData struct {
	Cell *boc.Cell
	Hex  string
}

type Cell struct{ CellData }

// Slice is rendered as the cell it reads from.
type Slice struct{ CellData }

type Builder struct{ CellData }

type Continuation struct{ CellData }

// Address is a slice holding exactly one addr_std.
type Address struct {
	CellData
	Account ton.AccountID
}

// Raw is a token that could not be interpreted.
type Raw string

func (Int) Kind() Kind          { return KindInt }
func (Null) Kind() Kind         { return KindNull }
func (Tuple) Kind() Kind        { return KindTuple }
func (Cell) Kind() Kind         { return KindCell }
func (Slice) Kind() Kind        { return KindSlice }
func (Builder) Kind() Kind      { return KindBuilder }
func (Continuation) Kind() Kind { return KindContinuation }
func (Address) Kind() Kind      { return KindAddress }
func (Raw) Kind() Kind          { return KindRaw }

func (Int) isValue()          {}
func (Null) isValue()         {}
func (Tuple) isValue()        {}
func (Cell) isValue()         {}
func (Slice) isValue()        {}
func (Builder) isValue()      {}
func (Continuation) isValue() {}
func (Address) isValue()      {}
func (Raw) isValue()          {}

type printable struct {
	Type  Kind `json:"type"`
	Value any  `json:"value,omitempty"`
}

func (v Int) MarshalJSON() ([]byte, error) {
	return json.Marshal(printable{Type: KindInt, Value: v.Value.String()})
}

func (v Null) MarshalJSON() ([]byte, error) {
	return json.Marshal(printable{Type: KindNull})
}

func (v Tuple) MarshalJSON() ([]byte, error) {
	items := []Value(v)
	if items == nil {
		items = []Value{}
	}
	// items is always emitted so that an empty tuple differs from null
	return json.Marshal(struct {
		Type  Kind    `json:"type"`
		Items []Value `json:"items"`
	}{Type: KindTuple, Items: items})
}

func (v Cell) MarshalJSON() ([]byte, error) {
	return json.Marshal(printable{Type: KindCell, Value: v.Hex})
}

func (v Slice) MarshalJSON() ([]byte, error) {
	return json.Marshal(printable{Type: KindSlice, Value: v.Hex})
}

func (v Builder) MarshalJSON() ([]byte, error) {
	return json.Marshal(printable{Type: KindBuilder, Value: v.Hex})
}

func (v Continuation) MarshalJSON() ([]byte, error) {
	return json.Marshal(printable{Type: KindContinuation, Value: v.Hex})
}

func (v Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(printable{Type: KindAddress, Value: v.Account.ToRaw()})
}

func (v Raw) MarshalJSON() ([]byte, error) {
	return json.Marshal(printable{Type: KindRaw, Value: string(v)})
}
