// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"math/big"
)

// Tag is the field key of the runestone message. Even tags must be understood by
// indexers, unknown even tags make a cenotaph.
type Tag byte

// Runestone field tags.
const (
	// TagBody ends fields, edicts follow it.
	TagBody         Tag = 0
	TagDivisibility Tag = 1
	TagFlags        Tag = 2
	TagSpacers      Tag = 3
	TagRune         Tag = 4
	TagSymbol       Tag = 5
	TagPremine      Tag = 6
	TagCap          Tag = 8
	// TagAmount is the amount of a single mint.
	TagAmount      Tag = 10
	TagHeightStart Tag = 12
	TagHeightEnd   Tag = 14
	TagOffsetStart Tag = 16
	TagOffsetEnd   Tag = 18
	TagMint        Tag = 20
	// TagPointer selects the output receiving unallocated runes.
	TagPointer Tag = 22
)

// BigInt returns Tag as big.Int.
func (t Tag) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(t))
}

// Flag is a bit of the TagFlags field.
type Flag uint64

const (
	FlagEtching Flag = 1 << iota
	// FlagTerms marks etching with open mint terms.
	FlagTerms
	FlagTurbo
)
