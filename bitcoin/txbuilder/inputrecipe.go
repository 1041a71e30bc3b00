// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/addresses"
	"github.com/BoostyLabs/txengine/bitcoin/txsize"
	"github.com/BoostyLabs/txengine/bitcoin/utils"
)

// ErrInputRecipe defines errors class for psbt input preparation.
var ErrInputRecipe = errors.New("prepare psbt input")

// signHashType define signature hash type for non-taproot input signing.
const signHashType = txscript.SigHashAll

// PrevTxFetcher provides raw previous transactions, legacy inputs commit to the whole transaction.
type PrevTxFetcher interface {
	TxHex(ctx context.Context, txID string) (string, error)
}

// prepareInput fills psbt input with data the signer needs for the utxo address type.
// Returns typed input for size estimation.
func (b *Builder) prepareInput(ctx context.Context, input *psbt.PInput, utxo bitcoin.UTXO) (_ txsize.Input, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrInputRecipe, fmt.Errorf("utxo %s: %w", utxo.OutPointString(), err))
		}
	}()

	addressType, err := addresses.Classify(utxo.Address)
	if err != nil {
		return txsize.Input{}, err
	}

	pkScript := utxo.Script
	if len(pkScript) == 0 {
		pkScript, err = addresses.PayToAddress(utxo.Address, b.params)
		if err != nil {
			return txsize.Input{}, err
		}
	}

	switch addressType {
	case bitcoin.AddressTypeLegacy:
		prevTx, err := b.prevTx(ctx, utxo)
		if err != nil {
			return txsize.Input{}, err
		}

		input.NonWitnessUtxo = prevTx
		input.SighashType = signHashType
	case bitcoin.AddressTypeNestedSegwit:
		pubKey, err := utils.ParsePubKey(b.account.NestedSegwit.PubKey)
		if err != nil {
			return txsize.Input{}, fmt.Errorf("nested segwit public key: %w", err)
		}

		redeemScript, err := addresses.NestedSegwitRedeemScript(pubKey)
		if err != nil {
			return txsize.Input{}, err
		}

		scriptHash, err := btcutil.NewAddressScriptHash(redeemScript, b.params)
		if err != nil {
			return txsize.Input{}, err
		}

		p2shScript, err := txscript.PayToAddrScript(scriptHash)
		if err != nil {
			return txsize.Input{}, err
		}
		if !bytes.Equal(p2shScript, pkScript) {
			return txsize.Input{}, errors.New("redeem script does not match output script")
		}

		input.RedeemScript = redeemScript
		input.WitnessUtxo = wire.NewTxOut(utxo.Amount, p2shScript)
		input.SighashType = signHashType
	case bitcoin.AddressTypeNativeSegwit:
		input.WitnessUtxo = wire.NewTxOut(utxo.Amount, pkScript)
		input.SighashType = signHashType
	case bitcoin.AddressTypeTaproot:
		input.WitnessUtxo = wire.NewTxOut(utxo.Amount, pkScript)
		if utxo.TapScript != nil {
			return b.prepareTapScriptInput(input, utxo.TapScript)
		}

		if b.account.Taproot.PubKey != "" {
			pubKey, err := utils.ParsePubKey(b.account.Taproot.PubKey)
			if err != nil {
				return txsize.Input{}, fmt.Errorf("taproot public key: %w", err)
			}

			input.TaprootInternalKey = utils.XOnlyPubKey(pubKey)
		}
	default:
		return txsize.Input{}, fmt.Errorf("%w: %s", bitcoin.ErrUnsupportedInputType, addressType)
	}

	return txsize.Input{Type: addressType}, nil
}

// prepareTapScriptInput fills taproot input spent through the single leaf script path.
func (b *Builder) prepareTapScriptInput(input *psbt.PInput, spend *bitcoin.TapScriptSpend) (txsize.Input, error) {
	if len(spend.LeafScript) == 0 || len(spend.ControlBlock) == 0 {
		return txsize.Input{}, errors.New("incomplete tapscript spend data")
	}

	input.TaprootInternalKey = spend.InternalKey
	input.TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
		ControlBlock: spend.ControlBlock,
		Script:       spend.LeafScript,
		LeafVersion:  txscript.BaseLeafVersion,
	}}

	return txsize.Input{
		Type: bitcoin.AddressTypeTaproot,
		ScriptPath: &txsize.ScriptPath{
			ControlBlockLen: len(spend.ControlBlock),
			ScriptLen:       len(spend.LeafScript),
		},
	}, nil
}

// prevTx returns previous transaction of the utxo, checking it is the one utxo points to.
func (b *Builder) prevTx(ctx context.Context, utxo bitcoin.UTXO) (*wire.MsgTx, error) {
	if b.prevTxs == nil {
		return nil, errors.New("previous transaction fetcher is not set")
	}

	txHex, err := b.prevTxs.TxHex(ctx, utxo.TxHash)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}

	tx := new(wire.MsgTx)
	if err = tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	if tx.TxHash().String() != utxo.TxHash {
		return nil, fmt.Errorf("previous transaction hash mismatch: %s", tx.TxHash())
	}
	if int(utxo.Index) >= len(tx.TxOut) {
		return nil, fmt.Errorf("previous transaction has no output %d", utxo.Index)
	}

	return tx, nil
}
