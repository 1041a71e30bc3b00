// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

// ErrEmptyLeafScript defines tapscript tree leaf without script.
var ErrEmptyLeafScript = errors.New("empty leaf script")

// TapScriptTree assembles tapscript tree of base version leaves in the given order.
func TapScriptTree(leafScripts ...[]byte) (*txscript.IndexedTapScriptTree, error) {
	if len(leafScripts) == 0 {
		return nil, errors.New("no leaf scripts")
	}

	leaves := make([]txscript.TapLeaf, 0, len(leafScripts))
	for _, script := range leafScripts {
		if len(script) == 0 {
			return nil, ErrEmptyLeafScript
		}

		leaves = append(leaves, txscript.NewBaseTapLeaf(script))
	}

	return txscript.AssembleTaprootScriptTree(leaves...), nil
}

// NewControlBlock returns serialized control block of the tree with leafScript as the only leaf.
// Together with the leaf script it forms the script path witness of the commit output.
func NewControlBlock(internalKey *btcec.PublicKey, leafScript []byte) ([]byte, error) {
	if internalKey == nil {
		return nil, errors.New("no internal key")
	}

	tree, err := TapScriptTree(leafScript)
	if err != nil {
		return nil, err
	}

	controlBlock := tree.LeafMerkleProofs[0].ToControlBlock(internalKey)

	return controlBlock.ToBytes()
}
