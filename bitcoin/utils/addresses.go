// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// NewTaprootAddressFromScripts generates taproot address with tree built from provided leaf scripts
// and committed by the internal key.
func NewTaprootAddressFromScripts(chainParams *chaincfg.Params, internalKey *btcec.PublicKey, leafScripts ...[]byte) (*btcutil.AddressTaproot, error) {
	tapScriptTree, err := TapScriptTree(leafScripts...)
	if err != nil {
		return nil, err
	}

	tapScriptRootHash := tapScriptTree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, tapScriptRootHash[:])

	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), chainParams)
}

// ParsePubKey parses hex encoded public key in compressed, uncompressed or x-only form.
func ParsePubKey(pubKeyHex string) (*btcec.PublicKey, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, err
	}

	if len(pubKey) == schnorr.PubKeyBytesLen {
		return schnorr.ParsePubKey(pubKey)
	}

	return btcec.ParsePubKey(pubKey)
}

// XOnlyPubKey returns 32 bytes x-only serialization of the public key.
func XOnlyPubKey(pubKey *btcec.PublicKey) []byte {
	return schnorr.SerializePubKey(pubKey)
}
