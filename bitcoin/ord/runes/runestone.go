// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"errors"
	"math/big"
	"slices"

	"github.com/aviate-labs/leb128"
	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/txengine/internal/numbers"
)

const (
	// MaxDivisibility defines maximum divisibility for runes.
	MaxDivisibility byte = 38
	// MaxSpacers defines max value for spacers.
	MaxSpacers uint32 = 0b00000111_11111111_11111111_11111111
)

// ErrInvalidRunestone defines runestone which fields violate protocol rules.
var ErrInvalidRunestone = errors.New("invalid runestone")

// maxPushSize defines maximum data push size in script.
const maxPushSize = txscript.MaxScriptElementSize

// Etching defines values to create new rune.
type Etching struct {
	Divisibility *byte
	Premine      *big.Int
	Rune         *Rune
	Spacers      *uint32
	Symbol       *rune
	Terms        *Terms
	Turbo        bool
}

// Terms defines open mint parameters of the Etching.
type Terms struct {
	Amount      *big.Int
	Cap         *big.Int
	HeightStart *uint64
	HeightEnd   *uint64
	OffsetStart *uint64
	OffsetEnd   *uint64
}

// Edict defines transfer values of the rune protocol.
type Edict struct {
	RuneID RuneID
	Amount *big.Int
	Output uint32
}

// Runestone defines rune protocol message carried by OP_RETURN output.
type Runestone struct {
	Edicts  []Edict
	Etching *Etching
	Mint    *RuneID
	Pointer *uint32
}

// field defines helping struct for ordering message fields.
type field struct {
	tag    Tag
	values []*big.Int
}

// Validate checks field bounds before encoding.
func (runestone *Runestone) Validate() error {
	if etching := runestone.Etching; etching != nil {
		switch {
		case etching.Divisibility != nil && *etching.Divisibility > MaxDivisibility:
			return errors.Join(ErrInvalidRunestone, errors.New("too large divisibility"))
		case etching.Spacers != nil && *etching.Spacers > MaxSpacers:
			return errors.Join(ErrInvalidRunestone, errors.New("too large spacers"))
		case etching.Premine != nil && !numbers.IsUint128(etching.Premine):
			return errors.Join(ErrInvalidRunestone, errors.New("premine overflows uint128"))
		}

		if terms := etching.Terms; terms != nil {
			if (terms.Amount != nil && !numbers.IsUint128(terms.Amount)) || (terms.Cap != nil && !numbers.IsUint128(terms.Cap)) {
				return errors.Join(ErrInvalidRunestone, errors.New("terms overflow uint128"))
			}
		}
	}

	if runestone.Mint != nil && runestone.Mint.Block == 0 && runestone.Mint.TxID != 0 {
		return errors.Join(ErrInvalidRunestone, errors.New("invalid mint id"))
	}

	for _, edict := range runestone.Edicts {
		if edict.Amount == nil || !numbers.IsUint128(edict.Amount) {
			return errors.Join(ErrInvalidRunestone, errors.New("invalid edict amount"))
		}
	}

	return nil
}

// Serialize returns Runestone as LEB128 encoded integer sequence.
func (runestone *Runestone) Serialize() ([]byte, error) {
	if err := runestone.Validate(); err != nil {
		return nil, err
	}

	payload := make([]byte, 0)
	for _, num := range runestone.intSeq() {
		encoded, err := leb128.EncodeUnsigned(num)
		if err != nil {
			return nil, err
		}

		payload = append(payload, encoded...)
	}

	return payload, nil
}

// IntoScript returns Runestone as OP_RETURN script bytes.
func (runestone *Runestone) IntoScript() ([]byte, error) {
	payload, err := runestone.Serialize()
	if err != nil {
		return nil, err
	}

	switch payloadSize := len(payload); {
	case payloadSize == 0:
		return []byte{txscript.OP_RETURN, txscript.OP_13}, nil
	case payloadSize <= txscript.OP_DATA_75:
		// OP_RETURN + OP_13 + OP_PUSH_<num> + payload.
		return append([]byte{txscript.OP_RETURN, txscript.OP_13, byte(payloadSize)}, payload...), nil
	}

	builder := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddOp(txscript.OP_13)
	for chunk := range slices.Chunk(payload, maxPushSize) {
		builder.AddFullData(chunk)
	}

	return builder.Script()
}

// intSeq returns runestone fields sorted by tag followed by delta encoded edicts.
func (runestone *Runestone) intSeq() []*big.Int {
	fields := make([]field, 0)
	add := func(tag Tag, values ...*big.Int) {
		fields = append(fields, field{tag: tag, values: values})
	}
	uint64Ptr := func(tag Tag, value *uint64) {
		if value != nil {
			add(tag, new(big.Int).SetUint64(*value))
		}
	}

	if etching := runestone.Etching; etching != nil {
		flags := FlagEtching
		if etching.Divisibility != nil {
			add(TagDivisibility, big.NewInt(int64(*etching.Divisibility)))
		}
		if etching.Premine != nil {
			add(TagPremine, etching.Premine)
		}
		if etching.Rune != nil {
			add(TagRune, etching.Rune.Value())
		}
		if etching.Spacers != nil {
			add(TagSpacers, big.NewInt(int64(*etching.Spacers)))
		}
		if etching.Symbol != nil {
			add(TagSymbol, big.NewInt(int64(*etching.Symbol)))
		}

		if terms := etching.Terms; terms != nil {
			flags |= FlagTerms
			if terms.Cap != nil {
				add(TagCap, terms.Cap)
			}
			if terms.Amount != nil {
				add(TagAmount, terms.Amount)
			}
			uint64Ptr(TagHeightStart, terms.HeightStart)
			uint64Ptr(TagHeightEnd, terms.HeightEnd)
			uint64Ptr(TagOffsetStart, terms.OffsetStart)
			uint64Ptr(TagOffsetEnd, terms.OffsetEnd)
		}

		if etching.Turbo {
			flags |= FlagTurbo
		}

		add(TagFlags, new(big.Int).SetUint64(uint64(flags)))
	}

	if runestone.Mint != nil {
		add(TagMint, runestone.Mint.ToIntSeq()...)
	}

	if runestone.Pointer != nil {
		add(TagPointer, big.NewInt(int64(*runestone.Pointer)))
	}

	slices.SortStableFunc(fields, func(a, b field) int {
		return int(a.tag) - int(b.tag)
	})

	sequence := make([]*big.Int, 0, len(fields)*2+len(runestone.Edicts)*4+1)
	for _, f := range fields {
		for _, val := range f.values {
			sequence = append(sequence, f.tag.BigInt(), val)
		}
	}

	if len(runestone.Edicts) > 0 {
		sequence = append(sequence, TagBody.BigInt())
		sequence = append(sequence, edictsIntSeq(runestone.Edicts)...)
	}

	return sequence
}

// edictsIntSeq returns edicts sorted by rune id with delta encoded ids.
func edictsIntSeq(edicts []Edict) []*big.Int {
	sorted := slices.Clone(edicts)
	slices.SortStableFunc(sorted, func(a, b Edict) int {
		if a.RuneID.Block != b.RuneID.Block {
			if a.RuneID.Block < b.RuneID.Block {
				return -1
			}

			return 1
		}

		return int(int64(a.RuneID.TxID) - int64(b.RuneID.TxID))
	})

	var previous RuneID
	sequence := make([]*big.Int, 0, len(sorted)*4)
	for _, edict := range sorted {
		delta := edict.RuneID.Delta(previous)
		sequence = append(sequence, delta.ToIntSeq()...)
		sequence = append(sequence, edict.Amount, big.NewInt(int64(edict.Output)))
		previous = edict.RuneID
	}

	return sequence
}
