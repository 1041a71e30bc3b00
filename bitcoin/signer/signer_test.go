// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/addresses"
	"github.com/BoostyLabs/txengine/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/txengine/bitcoin/signer"
	"github.com/BoostyLabs/txengine/bitcoin/txbuilder"
	"github.com/BoostyLabs/txengine/bitcoin/utils"
)

var params = &chaincfg.RegressionNetParams

type mockPrevTxs map[string]*wire.MsgTx

func (m mockPrevTxs) TxHex(_ context.Context, txID string) (string, error) {
	tx, ok := m[txID]
	if !ok {
		return "", errors.New("not found")
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf.Bytes()), nil
}

func newKey(seed string) *btcec.PrivateKey {
	hash := sha256.Sum256([]byte(seed))
	privateKey, _ := btcec.PrivKeyFromBytes(hash[:])

	return privateKey
}

func newKeyRing() signer.KeyRing {
	return signer.KeyRing{
		Taproot:      newKey("taproot"),
		NativeSegwit: newKey("native"),
		NestedSegwit: newKey("nested"),
		Legacy:       newKey("legacy"),
	}
}

// fund returns utxo paying amount to the address in a fresh previous transaction.
func fund(t *testing.T, prevTxs mockPrevTxs, address string, amount int64) bitcoin.UTXO {
	t.Helper()

	pkScript, err := addresses.PayToAddress(address, params)
	require.NoError(t, err)

	prevTx := wire.NewMsgTx(2)
	prevTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{byte(len(prevTxs) + 1)}, 0), nil, nil))
	prevTx.AddTxOut(wire.NewTxOut(amount, pkScript))
	prevTxs[prevTx.TxHash().String()] = prevTx

	return bitcoin.UTXO{
		TxHash:        prevTx.TxHash().String(),
		Amount:        amount,
		Script:        pkScript,
		Address:       address,
		Confirmations: 1,
		Indexed:       true,
	}
}

// verify executes scripts of every input of the signed transaction.
func verify(t *testing.T, tx *wire.MsgTx, utxos []bitcoin.UTXO) {
	t.Helper()

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(utxos))
	for i, utxo := range utxos {
		prevOuts[tx.TxIn[i].PreviousOutPoint] = wire.NewTxOut(utxo.Amount, utxo.Script)
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, utxo := range utxos {
		vm, err := txscript.NewEngine(utxo.Script, tx, i, txscript.StandardVerifyFlags, nil, sigHashes, utxo.Amount, fetcher)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

func TestSignAllInputs(t *testing.T) {
	ctx := context.Background()
	keys := newKeyRing()
	s := signer.NewSigner(params, keys)

	account, err := s.Account()
	require.NoError(t, err)

	prevTxs := make(mockPrevTxs)
	utxos := []bitcoin.UTXO{
		fund(t, prevTxs, account.Legacy.Address, 20_000),
		fund(t, prevTxs, account.NestedSegwit.Address, 20_000),
		fund(t, prevTxs, account.NativeSegwit.Address, 20_000),
		fund(t, prevTxs, account.Taproot.Address, 20_000),
	}

	draft, err := txbuilder.NewBuilder(params, account, prevTxs).Build(ctx, txbuilder.BuildParams{
		UTXOs:   utxos,
		Outputs: []bitcoin.OutputSpec{{Address: account.Taproot.Address, Amount: 50_000}},
		FeeRate: 3,
	})
	require.NoError(t, err)

	raw, err := draft.Serialize()
	require.NoError(t, err)

	signedRaw, err := s.SignPSBT(ctx, raw, true)
	require.NoError(t, err)

	signed, err := psbt.NewFromRawBytes(bytes.NewReader(signedRaw), false)
	require.NoError(t, err)
	require.True(t, signed.IsComplete())

	tx, err := psbt.Extract(signed)
	require.NoError(t, err)
	verify(t, tx, utxos)
}

func TestSignWithoutFinalize(t *testing.T) {
	ctx := context.Background()
	s := signer.NewSigner(params, newKeyRing())
	account, err := s.Account()
	require.NoError(t, err)

	prevTxs := make(mockPrevTxs)
	utxo := fund(t, prevTxs, account.NativeSegwit.Address, 10_000)

	draft, err := txbuilder.NewBuilder(params, account, prevTxs).Build(ctx, txbuilder.BuildParams{
		UTXOs:   []bitcoin.UTXO{utxo},
		Outputs: []bitcoin.OutputSpec{{Address: account.Taproot.Address, Amount: 5_000}},
		FeeRate: 1,
	})
	require.NoError(t, err)

	require.NoError(t, s.SignAllInputs(ctx, draft.Packet, false))
	require.False(t, draft.Packet.IsComplete())
	require.Len(t, draft.Packet.Inputs[0].PartialSigs, 1)

	require.NoError(t, psbt.MaybeFinalizeAll(draft.Packet))
	tx, err := psbt.Extract(draft.Packet)
	require.NoError(t, err)
	verify(t, tx, []bitcoin.UTXO{utxo})

	t.Run("missing key", func(t *testing.T) {
		draft, err := txbuilder.NewBuilder(params, account, prevTxs).Build(ctx, txbuilder.BuildParams{
			UTXOs:   []bitcoin.UTXO{utxo},
			Outputs: []bitcoin.OutputSpec{{Address: account.Taproot.Address, Amount: 5_000}},
			FeeRate: 1,
		})
		require.NoError(t, err)

		err = signer.NewSigner(params, signer.KeyRing{Taproot: newKey("taproot")}).SignAllInputs(ctx, draft.Packet, true)
		require.ErrorIs(t, err, signer.ErrSigner)
	})
}

func TestSignTapScript(t *testing.T) {
	ctx := context.Background()
	keys := newKeyRing()
	s := signer.NewSigner(params, keys)
	account, err := s.Account()
	require.NoError(t, err)

	internalKey := keys.Taproot.PubKey()
	inscription := inscriptions.Inscription{
		Protocol:    inscriptions.ProtocolOrd,
		ContentType: "text/plain",
		Body:        []byte("hello"),
	}

	leafScript, err := inscription.IntoScriptForWitness(utils.XOnlyPubKey(internalKey))
	require.NoError(t, err)

	commitAddress, err := inscription.IntoAddress(internalKey, params)
	require.NoError(t, err)

	controlBlock, err := utils.NewControlBlock(internalKey, leafScript)
	require.NoError(t, err)

	prevTxs := make(mockPrevTxs)
	utxo := fund(t, prevTxs, commitAddress.EncodeAddress(), 10_000)
	utxo.TapScript = &bitcoin.TapScriptSpend{
		LeafScript:   leafScript,
		ControlBlock: controlBlock,
		InternalKey:  utils.XOnlyPubKey(internalKey),
	}

	draft, err := txbuilder.NewBuilder(params, account, prevTxs).Build(ctx, txbuilder.BuildParams{
		UTXOs:   []bitcoin.UTXO{utxo},
		Outputs: []bitcoin.OutputSpec{{Address: account.Taproot.Address, Amount: 546}},
		FeeRate: 2,
	})
	require.NoError(t, err)

	require.NoError(t, s.SignAllInputs(ctx, draft.Packet, true))

	tx, err := psbt.Extract(draft.Packet)
	require.NoError(t, err)
	require.Len(t, tx.TxIn[0].Witness, 3)
	require.Equal(t, leafScript, []byte(tx.TxIn[0].Witness[1]))
	require.Equal(t, controlBlock, []byte(tx.TxIn[0].Witness[2]))
	verify(t, tx, []bitcoin.UTXO{utxo})

	t.Run("foreign leaf key", func(t *testing.T) {
		draft, err := txbuilder.NewBuilder(params, account, prevTxs).Build(ctx, txbuilder.BuildParams{
			UTXOs:   []bitcoin.UTXO{utxo},
			Outputs: []bitcoin.OutputSpec{{Address: account.Taproot.Address, Amount: 546}},
			FeeRate: 2,
		})
		require.NoError(t, err)

		other := signer.NewSigner(params, signer.KeyRing{Taproot: newKey("other")})
		require.ErrorIs(t, other.SignAllInputs(ctx, draft.Packet, true), signer.ErrSigner)
	})
}
