// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/addresses"
	"github.com/BoostyLabs/txengine/bitcoin/txbuilder"
)

// ErrSigner defines errors class for signer.
var ErrSigner = errors.New("signer")

// KeyRing holds private keys of the account addresses.
type KeyRing struct {
	Taproot      *btcec.PrivateKey
	NativeSegwit *btcec.PrivateKey
	NestedSegwit *btcec.PrivateKey
	Legacy       *btcec.PrivateKey
}

// ByAddressType returns key of the address type, nil if there is none.
func (k KeyRing) ByAddressType(addressType bitcoin.AddressType) *btcec.PrivateKey {
	switch addressType {
	case bitcoin.AddressTypeTaproot:
		return k.Taproot
	case bitcoin.AddressTypeNativeSegwit:
		return k.NativeSegwit
	case bitcoin.AddressTypeNestedSegwit:
		return k.NestedSegwit
	case bitcoin.AddressTypeLegacy:
		return k.Legacy
	default:
		return nil
	}
}

// Account returns account with addresses of all keys present in the ring and default spend strategy.
func (k KeyRing) Account(networkParams *chaincfg.Params) (*bitcoin.Account, error) {
	account := &bitcoin.Account{SpendStrategy: bitcoin.DefaultSpendStrategy()}
	for _, item := range []struct {
		addressType bitcoin.AddressType
		target      *bitcoin.KeyAddress
	}{
		{bitcoin.AddressTypeTaproot, &account.Taproot},
		{bitcoin.AddressTypeNativeSegwit, &account.NativeSegwit},
		{bitcoin.AddressTypeNestedSegwit, &account.NestedSegwit},
		{bitcoin.AddressTypeLegacy, &account.Legacy},
	} {
		privateKey := k.ByAddressType(item.addressType)
		if privateKey == nil {
			continue
		}

		address, err := addresses.FromPublicKey(privateKey.PubKey(), item.addressType, networkParams)
		if err != nil {
			return nil, err
		}

		item.target.Address = address.EncodeAddress()
		item.target.PubKey = hex.EncodeToString(privateKey.PubKey().SerializeCompressed())
	}

	return account, nil
}

// Signer provides transaction signing related logic.
type Signer struct {
	networkParams *chaincfg.Params
	keys          KeyRing
}

// NewSigner is a constructor for Signer.
func NewSigner(networkParams *chaincfg.Params, keys KeyRing) *Signer {
	return &Signer{
		networkParams: networkParams,
		keys:          keys,
	}
}

// Account returns account of the signer keys.
func (signer *Signer) Account() (*bitcoin.Account, error) {
	return signer.keys.Account(signer.networkParams)
}

// SignPSBT signs all inputs of the serialized psbt, returns updated serialized psbt.
func (signer *Signer) SignPSBT(ctx context.Context, serializedPSBT []byte, finalize bool) ([]byte, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(serializedPSBT), false)
	if err != nil {
		return nil, errors.Join(ErrSigner, err)
	}

	if err = signer.SignAllInputs(ctx, packet, finalize); err != nil {
		return nil, err
	}

	w := bytes.NewBuffer(nil)
	if err = packet.Serialize(w); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// SignAllInputs signs every input of the packet with the key of its address type.
// Input types are taken from the helping keys and inferred from input fields when missing.
// If finalize is true inputs are finalized after signing.
func (signer *Signer) SignAllInputs(ctx context.Context, packet *psbt.Packet, finalize bool) (err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrSigner, err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	inputTypes, err := inputTypes(packet)
	if err != nil {
		return err
	}

	prevOutputFetcher, err := prevOutputFetcher(packet)
	if err != nil {
		return err
	}
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, prevOutputFetcher)

	for idx := range packet.Inputs {
		if err = signer.signInput(packet, idx, inputTypes[idx], sigHashes, prevOutputFetcher); err != nil {
			return fmt.Errorf("input %d: %w", idx, err)
		}
	}

	if !finalize {
		return nil
	}

	return psbt.MaybeFinalizeAll(packet)
}

// signInput signs input with the recipe of its address type.
func (signer *Signer) signInput(packet *psbt.Packet, idx int, addressType bitcoin.AddressType, sigHashes *txscript.TxSigHashes,
	fetcher txscript.PrevOutputFetcher) error {
	var (
		tx      = packet.UnsignedTx
		input   = &packet.Inputs[idx]
		prevOut = fetcher.FetchPrevOutput(tx.TxIn[idx].PreviousOutPoint)
	)

	if len(input.TaprootLeafScript) != 0 {
		return signer.signTapScriptInput(packet, idx, sigHashes, prevOut)
	}

	privateKey := signer.keys.ByAddressType(addressType)
	if privateKey == nil {
		return fmt.Errorf("no %s key", addressType)
	}
	pubKey := privateKey.PubKey().SerializeCompressed()

	switch addressType {
	case bitcoin.AddressTypeLegacy:
		sig, err := txscript.RawTxInSignature(tx, idx, prevOut.PkScript, sigHashType(input, false), privateKey)
		if err != nil {
			return err
		}

		input.PartialSigs = append(input.PartialSigs, &psbt.PartialSig{PubKey: pubKey, Signature: sig})
	case bitcoin.AddressTypeNestedSegwit, bitcoin.AddressTypeNativeSegwit:
		subScript := prevOut.PkScript
		if addressType == bitcoin.AddressTypeNestedSegwit {
			subScript = input.RedeemScript
		}
		if !bytes.Contains(subScript, btcutil.Hash160(pubKey)) {
			return errors.New("key does not match input script")
		}

		sig, err := txscript.RawTxInWitnessSignature(tx, sigHashes, idx, prevOut.Value, subScript, sigHashType(input, false), privateKey)
		if err != nil {
			return err
		}

		input.PartialSigs = append(input.PartialSigs, &psbt.PartialSig{PubKey: pubKey, Signature: sig})
	case bitcoin.AddressTypeTaproot:
		witness, err := txscript.TaprootWitnessSignature(tx, sigHashes, idx, prevOut.Value, prevOut.PkScript,
			sigHashType(input, true), privateKey)
		if err != nil {
			return err
		}

		input.TaprootKeySpendSig = witness[0]
	default:
		return fmt.Errorf("%w: %s", bitcoin.ErrUnsupportedInputType, addressType)
	}

	return nil
}

// signTapScriptInput signs single leaf script path input with the ring key the leaf script commits to.
func (signer *Signer) signTapScriptInput(packet *psbt.Packet, idx int, sigHashes *txscript.TxSigHashes, prevOut *wire.TxOut) error {
	var (
		input   = &packet.Inputs[idx]
		leaf    = input.TaprootLeafScript[0]
		tapLeaf = txscript.NewTapLeaf(leaf.LeafVersion, leaf.Script)
	)

	privateKey := signer.scriptKey(leaf.Script)
	if privateKey == nil {
		return errors.New("no key for leaf script")
	}

	sig, err := txscript.RawTxInTapscriptSignature(packet.UnsignedTx, sigHashes, idx, prevOut.Value, prevOut.PkScript,
		tapLeaf, sigHashType(input, true), privateKey)
	if err != nil {
		return err
	}

	leafHash := tapLeaf.TapHash()
	input.TaprootScriptSpendSig = []*psbt.TaprootScriptSpendSig{{
		XOnlyPubKey: schnorr.SerializePubKey(privateKey.PubKey()),
		LeafHash:    leafHash.CloneBytes(),
		Signature:   sig[:schnorr.SignatureSize],
		SigHash:     sigHashType(input, true),
	}}

	return nil
}

// scriptKey returns ring key which x-only public key is pushed by the script.
func (signer *Signer) scriptKey(script []byte) *btcec.PrivateKey {
	for _, privateKey := range []*btcec.PrivateKey{
		signer.keys.Taproot, signer.keys.NativeSegwit, signer.keys.NestedSegwit, signer.keys.Legacy,
	} {
		if privateKey == nil {
			continue
		}

		if bytes.Contains(script, schnorr.SerializePubKey(privateKey.PubKey())) {
			return privateKey
		}
	}

	return nil
}

// inputTypes returns address type of every packet input.
func inputTypes(packet *psbt.Packet) ([]bitcoin.AddressType, error) {
	types := make([]bitcoin.AddressType, len(packet.Inputs))
	for key, indexes := range txbuilder.InputIndexes(packet) {
		addressType, err := key.AddressType()
		if err != nil {
			return nil, err
		}

		for _, idx := range indexes {
			if idx >= len(types) {
				return nil, fmt.Errorf("helping key index %d is out of range", idx)
			}

			types[idx] = addressType
		}
	}

	for idx := range types {
		if types[idx] != 0 {
			continue
		}

		in, err := txbuilder.InferInput(packet, idx)
		if err != nil {
			return nil, err
		}

		types[idx] = in.Type
	}

	return types, nil
}

// prevOutputFetcher returns fetcher of all previous outputs of the packet.
func prevOutputFetcher(packet *psbt.Packet) (*txscript.MultiPrevOutFetcher, error) {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(packet.Inputs))
	for idx, input := range packet.Inputs {
		outPoint := packet.UnsignedTx.TxIn[idx].PreviousOutPoint
		switch {
		case input.WitnessUtxo != nil:
			prevOuts[outPoint] = input.WitnessUtxo
		case input.NonWitnessUtxo != nil:
			if int(outPoint.Index) >= len(input.NonWitnessUtxo.TxOut) {
				return nil, fmt.Errorf("input %d: previous output is out of range", idx)
			}

			prevOuts[outPoint] = input.NonWitnessUtxo.TxOut[outPoint.Index]
		default:
			return nil, fmt.Errorf("input %d: no previous output", idx)
		}
	}

	return txscript.NewMultiPrevOutFetcher(prevOuts), nil
}

// sigHashType returns input signature hash type. Unset type is SigHashDefault for taproot inputs
// and SigHashAll for the rest.
func sigHashType(input *psbt.PInput, taproot bool) txscript.SigHashType {
	if input.SighashType == 0 && !taproot {
		return txscript.SigHashAll
	}

	return input.SighashType
}
