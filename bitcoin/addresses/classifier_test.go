// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package addresses_test

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/addresses"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		expected bitcoin.AddressType
		err      error
	}{
		{"mainnet p2pkh", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", bitcoin.AddressTypeLegacy, nil},
		{"testnet p2pkh", "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn", bitcoin.AddressTypeLegacy, nil},
		{"mainnet p2sh", "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", bitcoin.AddressTypeNestedSegwit, nil},
		{"testnet p2sh", "2MzQwSSnBHWHqSAqtTVQ6v47XtaisrJa1Vc", bitcoin.AddressTypeNestedSegwit, nil},
		{"mainnet p2wpkh", "bc1qw508d6qejxtdg4y7r3zarvary0c5xw7kv8f3t4", bitcoin.AddressTypeNativeSegwit, nil},
		{"mainnet p2wpkh upper case", "BC1QW508D6QEJXTDG4Y7R3ZARVARY0C5XW7KV8F3T4", bitcoin.AddressTypeNativeSegwit, nil},
		{"testnet p2wpkh", "tb1qw508d6qejxtdg4y7r3zarvary0c5xw7kxpjzsx", bitcoin.AddressTypeNativeSegwit, nil},
		{"mainnet p2tr", "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr", bitcoin.AddressTypeTaproot, nil},
		{"p2wsh is not supported", "bc1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3qccfmv3", 0, bitcoin.ErrInvalidAddress},
		{"empty", "", 0, bitcoin.ErrInvalidAddress},
		{"garbage", "not-an-address", 0, bitcoin.ErrInvalidAddress},
		{"truncated bech32", "bc1qw508d6qejxtdg4y7r3zar", 0, bitcoin.ErrInvalidAddress},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			addressType, err := addresses.Classify(test.address)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)

				var invalid *bitcoin.InvalidAddressError
				require.True(t, errors.As(err, &invalid))
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expected, addressType)
		})
	}
}

func TestClassifyDerivedAddresses(t *testing.T) {
	privateKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	types := []bitcoin.AddressType{
		bitcoin.AddressTypeLegacy,
		bitcoin.AddressTypeNestedSegwit,
		bitcoin.AddressTypeNativeSegwit,
		bitcoin.AddressTypeTaproot,
	}
	networks := []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.TestNet3Params, &chaincfg.RegressionNetParams}

	for _, params := range networks {
		for _, addressType := range types {
			t.Run(params.Name+" "+addressType.String(), func(t *testing.T) {
				address, err := addresses.FromPublicKey(privateKey.PubKey(), addressType, params)
				require.NoError(t, err)

				classified, err := addresses.Classify(address.EncodeAddress())
				require.NoError(t, err)
				require.Equal(t, addressType, classified)

				// classification is recomputed on every call.
				again, err := addresses.Classify(address.EncodeAddress())
				require.NoError(t, err)
				require.Equal(t, classified, again)

				_, err = addresses.Decode(address.EncodeAddress(), params)
				require.NoError(t, err)
			})
		}
	}
}

func TestDecodeWrongNetwork(t *testing.T) {
	_, err := addresses.Decode("bc1qw508d6qejxtdg4y7r3zarvary0c5xw7kv8f3t4", &chaincfg.TestNet3Params)
	require.ErrorIs(t, err, bitcoin.ErrInvalidAddress)
}
