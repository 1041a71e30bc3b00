// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"errors"
	"math/big"
	"strings"

	"github.com/BoostyLabs/txengine/internal/numbers"
)

// DefaultSpacer separates words of the spaced rune name.
const DefaultSpacer = '•'

var (
	// ErrInvalidName defines rune name that can not be encoded.
	ErrInvalidName = errors.New("invalid rune name")
	// ErrReservedName defines rune name from the reserved range.
	ErrReservedName = errors.New("reserved rune name")
)

var base26 = big.NewInt(26)

// ReservedRunesStart is the value of AAAAAAAAAAAAAAAAAAAAAAAAAAA, names from it up are reserved.
var ReservedRunesStart, _ = new(big.Int).SetString("6402364363415443603228541259936211926", 10)

// Rune is the rune name encoded as bijective base-26 number: A is 0, Z is 25, AA is 26.
type Rune struct {
	value *big.Int
}

// NewRuneFromNumber returns Rune of the value.
func NewRuneFromNumber(value *big.Int) (*Rune, error) {
	if !numbers.IsUint128(value) {
		return nil, ErrInvalidName
	}
	if value.Cmp(ReservedRunesStart) >= 0 {
		return nil, ErrReservedName
	}

	return &Rune{value: new(big.Int).Set(value)}, nil
}

// NewRuneFromString parses name of A-Z letters.
func NewRuneFromString(name string) (*Rune, error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	value := new(big.Int)
	for i := 0; i < len(name); i++ {
		letter := name[i]
		if letter < 'A' || letter > 'Z' {
			return nil, ErrInvalidName
		}
		if i != 0 {
			value.Add(value, numbers.OneBigInt)
		}

		value.Mul(value, base26).Add(value, big.NewInt(int64(letter-'A')))
	}

	return NewRuneFromNumber(value)
}

// NewRuneFromStringWithSpacer parses spaced name and returns its spacers bit field,
// bit i set means spacer after letter i. DefaultSpacer is used unless spacer is given.
func NewRuneFromStringWithSpacer(name string, spacer ...rune) (*Rune, uint32, error) {
	separator := DefaultSpacer
	if len(spacer) != 0 {
		separator = spacer[0]
	}

	var (
		letters    strings.Builder
		spacers    uint32
		lastSpacer bool
	)
	for _, char := range name {
		if char != separator {
			letters.WriteRune(char)
			lastSpacer = false
			continue
		}

		position := letters.Len()
		if position == 0 || lastSpacer || position > 32 {
			return nil, 0, ErrInvalidName
		}

		spacers |= 1 << (position - 1)
		lastSpacer = true
	}
	if lastSpacer {
		return nil, 0, ErrInvalidName
	}

	r, err := NewRuneFromString(letters.String())
	if err != nil {
		return nil, 0, err
	}

	return r, spacers, nil
}

// Value returns copy of the rune number.
func (r *Rune) Value() *big.Int {
	return new(big.Int).Set(r.value)
}

// String returns the name without spacers.
func (r *Rune) String() string {
	var (
		n      = new(big.Int).Add(r.value, numbers.OneBigInt)
		letter = new(big.Int)
		name   []byte
	)
	for n.Sign() > 0 {
		n.Sub(n, numbers.OneBigInt)
		n.DivMod(n, base26, letter)
		name = append([]byte{byte('A' + letter.Int64())}, name...)
	}

	return string(name)
}

// Spaced returns the name with spacer inserted after every letter marked in spacers.
func (r *Rune) Spaced(spacers uint32, spacer ...rune) string {
	separator := DefaultSpacer
	if len(spacer) != 0 {
		separator = spacer[0]
	}

	name := r.String()

	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		sb.WriteByte(name[i])
		if i < len(name)-1 && i < 32 && spacers&(1<<i) != 0 {
			sb.WriteRune(separator)
		}
	}

	return sb.String()
}
