package core

import (
	"fmt"
	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"math/big"
	"strings"
)

// Message is a flattened view of a tlb.Message used in reports.
type Message struct {
	Type             string
	Source           *ton.AccountID
	Destination      *ton.AccountID
	Value            uint64
	ExtraCurrencies  map[uint32]tlb.VarUInteger32
	Lt               uint64
	Hash             ton.Bits256
	BodyHash         ton.Bits256
	DecodedOperation string
	DecodedBody      any
}

type MessagePrintable struct {
	Type             string            `json:"type"`
	Source           string            `json:"source,omitempty"`
	Destination      string            `json:"destination,omitempty"`
	Value            string            `json:"value"`
	ExtraCurrencies  map[uint32]string `json:"extra_currencies,omitempty"`
	Lt               string            `json:"lt,omitempty"`
	Hash             string            `json:"hash"`
	BodyHash         string            `json:"body_hash,omitempty"`
	DecodedOperation string            `json:"decoded_operation,omitempty"`
	DecodedBody      any               `json:"decoded_body,omitempty"`
}

// ConvertMessage decodes addresses, value and the operation of a message body.
// ext_out messages keep only their source.
func ConvertMessage(m tlb.Message) Message {
	message := Message{
		Type:            strings.TrimSuffix(string(m.Info.SumType), "MsgInfo"),
		Hash:            ton.Bits256(m.Hash(true)),
		ExtraCurrencies: make(map[uint32]tlb.VarUInteger32),
	}
	switch m.Info.SumType {
	case "IntMsgInfo":
		a, _ := ton.AccountIDFromTlb(m.Info.IntMsgInfo.Src)
		message.Source = a
		a, _ = ton.AccountIDFromTlb(m.Info.IntMsgInfo.Dest)
		message.Destination = a
		message.Value = uint64(m.Info.IntMsgInfo.Value.Grams)
		for _, item := range m.Info.IntMsgInfo.Value.Other.Dict.Items() {
			message.ExtraCurrencies[uint32(item.Key)] = item.Value
		}
		message.Lt = m.Info.IntMsgInfo.CreatedLt
	case "ExtInMsgInfo":
		a, _ := ton.AccountIDFromTlb(m.Info.ExtInMsgInfo.Dest)
		message.Destination = a
	case "ExtOutMsgInfo":
		a, _ := ton.AccountIDFromTlb(m.Info.ExtOutMsgInfo.Src)
		message.Source = a
		message.Lt = m.Info.ExtOutMsgInfo.CreatedLt
	}
	if m.Info.SumType == "ExtOutMsgInfo" {
		return message
	}
	body := boc.Cell(m.Body.Value)
	if body.BitsAvailableForRead()+body.RefsAvailableForRead() == 0 {
		return message
	}
	b := body.CopyRemaining()
	h, err := b.Hash()
	if err != nil {
		return message
	}
	message.BodyHash = ton.Bits256(h)
	_, decodedOperation, decodedBody, _ := abi.InternalMessageDecoder(b, []abi.ContractInterface{abi.IUnknown})
	if decodedOperation != nil {
		message.DecodedOperation = *decodedOperation
		message.DecodedBody = decodedBody
	}
	return message
}

func ConvertMessageToPrintable(m Message) MessagePrintable {
	res := MessagePrintable{
		Type:             m.Type,
		Value:            fmt.Sprintf("%d", m.Value),
		Hash:             m.Hash.Hex(),
		DecodedOperation: m.DecodedOperation,
		DecodedBody:      m.DecodedBody,
	}
	if m.Source != nil {
		res.Source = m.Source.ToRaw()
	}
	if m.Destination != nil {
		res.Destination = m.Destination.ToRaw()
	}
	if m.Lt != 0 {
		res.Lt = fmt.Sprintf("%d", m.Lt)
	}
	if m.BodyHash != (ton.Bits256{}) {
		res.BodyHash = m.BodyHash.Hex()
	}
	if len(m.ExtraCurrencies) > 0 {
		res.ExtraCurrencies = make(map[uint32]string, len(m.ExtraCurrencies))
		for id, amount := range m.ExtraCurrencies {
			res.ExtraCurrencies[id] = (*big.Int)(&amount).String()
		}
	}
	return res
}
