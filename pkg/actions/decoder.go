package actions

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/tx-retracer/pkg/core"
	"github.com/txsociety/tx-retracer/pkg/stack"
	"slices"
)

var ErrUnknownAction = errors.New("unknown action")

const (
	maxActions = 255

	tagSendMsg         = 0x0ec3c86d
	tagSetCode         = 0xad4de08e
	tagReserveCurrency = 0x36e6b809
	tagChangeLibrary   = 0x26fa1dd4
)

// Action is one entry of an OutList. Implementations: SendMsg, SetCode,
// ReserveCurrency and ChangeLibrary.
type Action interface {
	Kind() Kind
	isAction()
}

type Kind string

const (
	KindSendMsg         Kind = "send_msg"
	KindSetCode         Kind = "set_code"
	KindReserveCurrency Kind = "reserve_currency"
	KindChangeLibrary   Kind = "change_library"
)

type SendMsg struct {
	Mode    uint8
	Message tlb.Message
}

type SetCode struct {
	NewCode *boc.Cell
}

type ReserveCurrency struct {
	Mode     uint8
	Currency tlb.CurrencyCollection
}

// LibRef references a library either by hash or by the library cell itself.
// Exactly one field is set.
type LibRef struct {
	Hash *ton.Bits256
	Cell *boc.Cell
}

type ChangeLibrary struct {
	Mode   uint8
	LibRef LibRef
}

func (SendMsg) Kind() Kind         { return KindSendMsg }
func (SetCode) Kind() Kind         { return KindSetCode }
func (ReserveCurrency) Kind() Kind { return KindReserveCurrency }
func (ChangeLibrary) Kind() Kind   { return KindChangeLibrary }

func (SendMsg) isAction()         {}
func (SetCode) isAction()         {}
func (ReserveCurrency) isAction() {}
func (ChangeLibrary) isAction()   {}

// Decode parses a hex BoC with an OutList. An empty string is an empty list.
func Decode(payload string) ([]Action, error) {
	if payload == "" {
		return []Action{}, nil
	}
	c, err := stack.DecodeCell(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid action cell: %w", err)
	}
	return DecodeCell(c)
}

// DecodeCell walks out_list$_ prev:^OutList action:OutAction down to out_list_empty
// and returns actions in emission order.
func DecodeCell(c *boc.Cell) ([]Action, error) {
	list := []Action{}
	for c.BitsAvailableForRead() > 0 || c.RefsAvailableForRead() > 0 {
		if len(list) == maxActions {
			return nil, fmt.Errorf("more than %d actions", maxActions)
		}
		prev, err := c.NextRef()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", len(list), err)
		}
		action, err := decodeAction(c)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", len(list), err)
		}
		list = append(list, action)
		c = prev
	}
	slices.Reverse(list)
	return list, nil
}

func decodeAction(c *boc.Cell) (Action, error) {
	tag, err := c.ReadUint(32)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagSendMsg:
		mode, err := c.ReadUint(8)
		if err != nil {
			return nil, err
		}
		ref, err := c.NextRef()
		if err != nil {
			return nil, err
		}
		ref.ResetCounters()
		var msg tlb.Message
		if err := tlb.Unmarshal(ref, &msg); err != nil {
			return nil, fmt.Errorf("invalid message: %w", err)
		}
		return SendMsg{Mode: uint8(mode), Message: msg}, nil
	case tagSetCode:
		ref, err := c.NextRef()
		if err != nil {
			return nil, err
		}
		return SetCode{NewCode: ref}, nil
	case tagReserveCurrency:
		mode, err := c.ReadUint(8)
		if err != nil {
			return nil, err
		}
		var currency tlb.CurrencyCollection
		if err := tlb.Unmarshal(c, &currency); err != nil {
			return nil, fmt.Errorf("invalid currency: %w", err)
		}
		return ReserveCurrency{Mode: uint8(mode), Currency: currency}, nil
	case tagChangeLibrary:
		mode, err := c.ReadUint(7)
		if err != nil {
			return nil, err
		}
		byRef, err := c.ReadBit()
		if err != nil {
			return nil, err
		}
		action := ChangeLibrary{Mode: uint8(mode)}
		if byRef {
			ref, err := c.NextRef()
			if err != nil {
				return nil, err
			}
			action.LibRef.Cell = ref
			return action, nil
		}
		var hash tlb.Bits256
		if err := tlb.Unmarshal(c, &hash); err != nil {
			return nil, fmt.Errorf("invalid library hash: %w", err)
		}
		h := ton.Bits256(hash)
		action.LibRef.Hash = &h
		return action, nil
	}
	return nil, fmt.Errorf("%w: tag 0x%08x", ErrUnknownAction, tag)
}

func cellHex(c *boc.Cell) string {
	b, err := c.ToBoc()
	if err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

func (a SendMsg) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    Kind                  `json:"type"`
		Mode    uint8                 `json:"mode"`
		Message core.MessagePrintable `json:"message"`
	}{KindSendMsg, a.Mode, core.ConvertMessageToPrintable(core.ConvertMessage(a.Message))})
}

func (a SetCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    Kind   `json:"type"`
		NewCode string `json:"new_code"`
	}{KindSetCode, cellHex(a.NewCode)})
}

func (a ReserveCurrency) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   Kind   `json:"type"`
		Mode   uint8  `json:"mode"`
		Amount string `json:"amount"`
	}{KindReserveCurrency, a.Mode, fmt.Sprintf("%d", a.Currency.Grams)})
}

func (a ChangeLibrary) MarshalJSON() ([]byte, error) {
	res := struct {
		Type Kind   `json:"type"`
		Mode uint8  `json:"mode"`
		Hash string `json:"hash,omitempty"`
		Cell string `json:"cell,omitempty"`
	}{Type: KindChangeLibrary, Mode: a.Mode}
	if a.LibRef.Hash != nil {
		res.Hash = a.LibRef.Hash.Hex()
	}
	if a.LibRef.Cell != nil {
		res.Cell = cellHex(a.LibRef.Cell)
	}
	return json.Marshal(res)
}
