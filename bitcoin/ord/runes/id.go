// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// RuneID defined the id of the rune.
type RuneID struct {
	Block uint64
	TxID  uint32
}

// NewRuneIDFromString returns RuneID parsed from "block:tx" string.
func NewRuneIDFromString(s string) (RuneID, error) {
	data := strings.Split(s, ":")
	if len(data) != 2 {
		return RuneID{}, fmt.Errorf("invalid rune id format: %s", s)
	}

	block, err := strconv.ParseUint(data[0], 10, 64)
	if err != nil {
		return RuneID{}, err
	}

	txID, err := strconv.ParseUint(data[1], 10, 32)
	if err != nil {
		return RuneID{}, err
	}

	return RuneID{Block: block, TxID: uint32(txID)}, nil
}

// Delta returns id relative to the previous one as used by edicts encoding.
func (id RuneID) Delta(previous RuneID) RuneID {
	if id.Block == previous.Block {
		return RuneID{TxID: id.TxID - previous.TxID}
	}

	return RuneID{Block: id.Block - previous.Block, TxID: id.TxID}
}

// String returns RuneID as string.
func (id RuneID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.TxID)
}

// ToIntSeq returns RuneID as integer sequence.
func (id RuneID) ToIntSeq() []*big.Int {
	return []*big.Int{new(big.Int).SetUint64(id.Block), new(big.Int).SetUint64(uint64(id.TxID))}
}
