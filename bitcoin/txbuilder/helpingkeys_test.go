// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder_test

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/txbuilder"
)

func TestInputsHelpingKey(t *testing.T) {
	t.Run("InputsHelpingKeyFromBytes", func(t *testing.T) {
		tests := []struct {
			bytes []byte
			key   txbuilder.InputsHelpingKey
			err   error
		}{
			{[]byte{txbuilder.TaprootInputsHelpingKey.Byte()}, txbuilder.TaprootInputsHelpingKey, nil},
			{[]byte{txbuilder.PaymentInputsHelpingKey.Byte()}, txbuilder.PaymentInputsHelpingKey, nil},
			{[]byte{txbuilder.NestedSegwitInputsHelpingKey.Byte()}, txbuilder.NestedSegwitInputsHelpingKey, nil},
			{[]byte{txbuilder.LegacyInputsHelpingKey.Byte()}, txbuilder.LegacyInputsHelpingKey, nil},
			{[]byte{}, 0, txbuilder.ErrUnknownInputsHelpingKey},
			{[]byte{0x50}, 0, txbuilder.ErrUnknownInputsHelpingKey},
			{[]byte{0x01, 0x02}, 0, txbuilder.ErrUnknownInputsHelpingKey},
		}
		for _, test := range tests {
			key, err := txbuilder.InputsHelpingKeyFromBytes(test.bytes)
			require.Equal(t, test.err, err)
			require.Equal(t, test.key, key)
		}
	})

	t.Run("InputsHelpingKeyFromAddressType", func(t *testing.T) {
		key, err := txbuilder.InputsHelpingKeyFromAddressType(bitcoin.AddressTypeNestedSegwit)
		require.NoError(t, err)
		require.Equal(t, txbuilder.NestedSegwitInputsHelpingKey, key)

		_, err = txbuilder.InputsHelpingKeyFromAddressType(bitcoin.AddressType(0))
		require.ErrorIs(t, err, txbuilder.ErrUnknownInputsHelpingKey)
	})

	t.Run("Byte&Bytes", func(t *testing.T) {
		tests := []struct {
			key   txbuilder.InputsHelpingKey
			byte  byte
			bytes []byte
		}{
			{txbuilder.TaprootInputsHelpingKey, 0x10, []byte{0x10}},
			{txbuilder.PaymentInputsHelpingKey, 0x20, []byte{0x20}},
			{txbuilder.LegacyInputsHelpingKey, 0x40, []byte{0x40}},
		}
		for _, test := range tests {
			require.Equal(t, test.byte, test.key.Byte())
			require.Equal(t, test.bytes, test.key.Bytes())
		}
	})
}

func TestSetInputsHelpingKeys(t *testing.T) {
	tx := wire.NewMsgTx(2)
	for i := 0; i < 4; i++ {
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{byte(i + 1)}, 0), nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(1_000, []byte{0x51}))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)

	foreign := &psbt.Unknown{Key: []byte{0x70, 0x01}, Value: []byte{0xff}}
	packet.Unknowns = []*psbt.Unknown{foreign, {Key: txbuilder.TaprootInputsHelpingKey.Bytes(), Value: []byte{7}}}

	err = txbuilder.SetInputsHelpingKeys(packet, []bitcoin.AddressType{
		bitcoin.AddressTypeTaproot,
		bitcoin.AddressTypeNativeSegwit,
		bitcoin.AddressTypeTaproot,
		bitcoin.AddressTypeLegacy,
	})
	require.NoError(t, err)

	expected := map[txbuilder.InputsHelpingKey][]int{
		txbuilder.TaprootInputsHelpingKey: {0, 2},
		txbuilder.PaymentInputsHelpingKey: {1},
		txbuilder.LegacyInputsHelpingKey:  {3},
	}
	require.Equal(t, expected, txbuilder.InputIndexes(packet))
	require.Equal(t, foreign, packet.Unknowns[0])
	require.Len(t, packet.Unknowns, 4)

	var buf bytes.Buffer
	require.NoError(t, packet.Serialize(&buf))

	indexes, err := txbuilder.ExtractAddressTypeInputIndexesFromPSBT(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, expected, indexes)

	t.Run("too many inputs", func(t *testing.T) {
		inputTypes := make([]bitcoin.AddressType, txbuilder.MaxHelpingKeysInputs+1)
		for i := range inputTypes {
			inputTypes[i] = bitcoin.AddressTypeNativeSegwit
		}

		require.NoError(t, txbuilder.SetInputsHelpingKeys(packet, inputTypes))
		require.Empty(t, txbuilder.InputIndexes(packet))
		require.Equal(t, []*psbt.Unknown{foreign}, packet.Unknowns)
	})

	t.Run("unknown address type", func(t *testing.T) {
		err := txbuilder.SetInputsHelpingKeys(packet, []bitcoin.AddressType{0})
		require.ErrorIs(t, err, txbuilder.ErrUnknownInputsHelpingKey)
	})
}
