package stack

import (
	"encoding/hex"
	"errors"
	"fmt"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"math/big"
	"strings"
)

const (
	linePrefix = "stack:"

	cellPrefix         = "C{"
	continuationPrefix = "Cont{"
	slicePrefix        = "CS{"
	builderPrefix      = "BC{"

	// addr_std$10 anycast:(Maybe Anycast) workchain_id:int8 address:bits256 without anycast
	addrStdBits = 267
)

// Tokenize converts one "stack:" line of a VM log into stack values.
//
// The whole stack is printed as "[ a b c ]" with spaces around the outer brackets, while
// nested tuples stick their brackets to the first and the last element: "[1 2]".
// Tokens that cannot be interpreted become Raw values and are reported in warnings,
// tokenization itself never fails.
func Tokenize(line string) ([]Value, []string) {
	var warnings []string
	line = strings.TrimPrefix(strings.TrimSpace(line), linePrefix)

	frames := [][]Value{{}}
	push := func(v Value) {
		frames[len(frames)-1] = append(frames[len(frames)-1], v)
	}
	for _, word := range strings.Fields(line) {
		if word == "[" || word == "]" {
			continue
		}
		for strings.HasPrefix(word, "[") {
			frames = append(frames, []Value{})
			word = word[1:]
		}
		closes := 0
		for strings.HasSuffix(word, "]") {
			closes++
			word = word[:len(word)-1]
		}
		if word != "" {
			v, err := parseElement(word)
			if err != nil {
				warnings = append(warnings, err.Error())
			}
			push(v)
		}
		for ; closes > 0; closes-- {
			if len(frames) == 1 {
				warnings = append(warnings, "unbalanced tuple end")
				continue
			}
			tuple := frames[len(frames)-1]
			frames = frames[:len(frames)-1]
			push(Tuple(tuple))
		}
	}
	for len(frames) > 1 {
		warnings = append(warnings, "unclosed tuple")
		tuple := frames[len(frames)-1]
		frames = frames[:len(frames)-1]
		push(Tuple(tuple))
	}
	return frames[0], warnings
}

// parseElement always returns a value. A non-nil error means the value is a Raw fallback
// or a less specific variant than the token asked for.
func parseElement(word string) (Value, error) {
	switch {
	case word == "()":
		return Null{}, nil
	case len(word) > 2 && strings.HasPrefix(word, "(") && strings.HasSuffix(word, ")"):
		v, err := parseElement(word[1 : len(word)-1])
		return Tuple{v}, err
	case strings.HasPrefix(word, cellPrefix):
		data, err := parseCellData(word, cellPrefix)
		if err != nil {
			return Raw(word), fmt.Errorf("parsing cell %v: %w", word, err)
		}
		return Cell{data}, nil
	case strings.HasPrefix(word, continuationPrefix):
		data, err := parseCellData(word, continuationPrefix)
		if err != nil {
			return Raw(word), fmt.Errorf("parsing continuation %v: %w", word, err)
		}
		return Continuation{data}, nil
	case strings.HasPrefix(word, slicePrefix):
		data, err := parseCellData(word, slicePrefix)
		if err != nil {
			return Raw(word), fmt.Errorf("parsing slice %v: %w", word, err)
		}
		if data.Cell.BitsAvailableForRead() == addrStdBits && data.Cell.RefsAvailableForRead() == 0 {
			account, err := parseAddress(data.Hex)
			if err != nil {
				return Slice{data}, fmt.Errorf("parsing address %v: %w", word, err)
			}
			return Address{CellData: data, Account: account}, nil
		}
		return Slice{data}, nil
	case strings.HasPrefix(word, builderPrefix):
		data, err := parseCellData(word, builderPrefix)
		if err != nil {
			return Raw(word), fmt.Errorf("parsing builder %v: %w", word, err)
		}
		return Builder{data}, nil
	}
	if i, ok := new(big.Int).SetString(word, 10); ok {
		return Int{Value: i}, nil
	}
	return Raw(word), fmt.Errorf("unknown stack element: %v", word)
}

func parseCellData(word, prefix string) (CellData, error) {
	if !strings.HasSuffix(word, "}") {
		return CellData{}, errors.New("no closing brace")
	}
	payload := word[len(prefix) : len(word)-1]
	c, err := DecodeCell(payload)
	if err != nil {
		return CellData{}, err
	}
	return CellData{Cell: c, Hex: payload}, nil
}

// DecodeCell decodes a hex BoC with a single root.
func DecodeCell(payload string) (*boc.Cell, error) {
	b, err := hex.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	roots, err := boc.DeserializeBoc(b)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, errors.New("boc without roots")
	}
	return roots[0], nil
}

func parseAddress(payload string) (ton.AccountID, error) {
	// separate copy: reading moves the cursor of the cell kept in the value
	c, err := DecodeCell(payload)
	if err != nil {
		return ton.AccountID{}, err
	}
	var addr tlb.MsgAddress
	if err := tlb.Unmarshal(c, &addr); err != nil {
		return ton.AccountID{}, err
	}
	if addr.SumType != "AddrStd" {
		return ton.AccountID{}, fmt.Errorf("not addr_std: %v", addr.SumType)
	}
	account, err := ton.AccountIDFromTlb(addr)
	if err != nil {
		return ton.AccountID{}, err
	}
	if account == nil {
		return ton.AccountID{}, errors.New("addr_none")
	}
	return *account, nil
}
