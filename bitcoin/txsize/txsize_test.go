// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txsize_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/txsize"
)

func TestVSize(t *testing.T) {
	taprootIn := txsize.Input{Type: bitcoin.AddressTypeTaproot}
	taprootOut := txsize.Output{Type: bitcoin.AddressTypeTaproot}

	tests := []struct {
		name     string
		inputs   []txsize.Input
		outputs  []txsize.Output
		expected int64
	}{
		{
			// 8 + 1 + 1 + 1 + 2*(41+16.25) + 2*43 = 211.5.
			name:     "2 taproot inputs 2 taproot outputs",
			inputs:   []txsize.Input{taprootIn, taprootIn},
			outputs:  []txsize.Output{taprootOut, taprootOut},
			expected: 212,
		},
		{
			// 8 + 1 + 1 + 148 + 34 = 192, no segwit marker.
			name:     "legacy only",
			inputs:   []txsize.Input{{Type: bitcoin.AddressTypeLegacy}},
			outputs:  []txsize.Output{{Type: bitcoin.AddressTypeLegacy}},
			expected: 192,
		},
		{
			// 8 + 1 + 1 + 1 + 41 + 26.5 + 31 + 31 = 140.5.
			name:     "native segwit with change",
			inputs:   []txsize.Input{{Type: bitcoin.AddressTypeNativeSegwit}},
			outputs:  []txsize.Output{{Type: bitcoin.AddressTypeNativeSegwit}, {Type: bitcoin.AddressTypeNativeSegwit}},
			expected: 141,
		},
		{
			// 8 + 1 + 1 + 1 + 63 + 27.75 + 32 = 133.75.
			name:     "nested segwit",
			inputs:   []txsize.Input{{Type: bitcoin.AddressTypeNestedSegwit}},
			outputs:  []txsize.Output{{Type: bitcoin.AddressTypeNestedSegwit}},
			expected: 134,
		},
		{
			// 8 + 1 + 1 + 1 + 41 + 16.25 + ceil(33/4)=9 + ceil(70/4)=18 + 43 + (9+20) = 167.25.
			name: "script path reveal with data output",
			inputs: []txsize.Input{{
				Type:       bitcoin.AddressTypeTaproot,
				ScriptPath: &txsize.ScriptPath{ControlBlockLen: 33, ScriptLen: 70},
			}},
			outputs:  []txsize.Output{taprootOut, txsize.NewDataOutput(20)},
			expected: 167,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			vsize, err := txsize.VSize(test.inputs, test.outputs)
			require.NoError(t, err)
			require.Equal(t, test.expected, vsize)

			// reproducible for the same typed lists.
			again, err := txsize.VSize(test.inputs, test.outputs)
			require.NoError(t, err)
			require.Equal(t, vsize, again)
		})
	}
}

func TestWeightTaprootLiteral(t *testing.T) {
	weight, err := txsize.Weight(
		[]txsize.Input{{Type: bitcoin.AddressTypeTaproot}, {Type: bitcoin.AddressTypeTaproot}},
		[]txsize.Output{{Type: bitcoin.AddressTypeTaproot}, {Type: bitcoin.AddressTypeTaproot}},
	)
	require.NoError(t, err)
	require.EqualValues(t, 846, weight)
	require.EqualValues(t, 212, txsize.WeightToVSize(weight))
}

func TestUnsupportedInput(t *testing.T) {
	_, err := txsize.VSize([]txsize.Input{{Type: 0}}, nil)
	require.ErrorIs(t, err, bitcoin.ErrUnsupportedInputType)
}

func TestOutputFromScript(t *testing.T) {
	tests := []struct {
		name     string
		script   []byte
		expected int64
	}{
		{"p2pkh", append(append([]byte{0x76, 0xa9, 0x14}, make([]byte, 20)...), 0x88, 0xac), txsize.P2PKHOutputWeight},
		{"p2sh", append(append([]byte{0xa9, 0x14}, make([]byte, 20)...), 0x87), txsize.NestedP2WPKHOutputWeight},
		{"p2wpkh", append([]byte{0x00, 0x14}, make([]byte, 20)...), txsize.P2WPKHOutputWeight},
		{"p2tr", append([]byte{0x51, 0x20}, make([]byte, 32)...), txsize.P2TROutputWeight},
		{"op_return", []byte{0x6a, 0x5d, 0x02, 0x01, 0x02}, (9 + 5) * 4},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, txsize.OutputWeight(txsize.OutputFromScript(test.script)))
		})
	}
}
