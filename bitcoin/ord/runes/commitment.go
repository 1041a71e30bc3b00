// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package runes

import (
	"errors"

	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/txengine/internal/reverse"
)

// xOnlyPubKeyLen defines length of schnorr public key.
const xOnlyPubKeyLen = 32

// Commitment returns rune name value as little endian bytes with trailing zeros trimmed.
// The commitment must be revealed in a taproot script spend to etch the rune.
func (r *Rune) Commitment() []byte {
	return reverse.Bytes(r.value.Bytes())
}

// CommitmentScript returns tapscript leaf that commits to the rune name and is spendable by xOnlyPubKey:
//
//	<xOnlyPubKey> OP_CHECKSIG OP_0 OP_IF <commitment> OP_ENDIF
func CommitmentScript(xOnlyPubKey []byte, r *Rune) ([]byte, error) {
	if len(xOnlyPubKey) != xOnlyPubKeyLen {
		return nil, errors.New("invalid x-only public key length")
	}
	if r == nil {
		return nil, ErrInvalidName
	}

	commitment := r.Commitment()

	script := make([]byte, 0, 1+xOnlyPubKeyLen+3+1+len(commitment)+1)
	script = append(script, txscript.OP_DATA_32)
	script = append(script, xOnlyPubKey...)
	script = append(script, txscript.OP_CHECKSIG, txscript.OP_0, txscript.OP_IF)
	// commitment is pushed as raw data even when it is a single byte.
	script = append(script, byte(len(commitment)))
	script = append(script, commitment...)
	script = append(script, txscript.OP_ENDIF)

	return script, nil
}
