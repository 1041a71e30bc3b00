// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package addresses

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/txengine/bitcoin"
)

// Decode decodes address for the network and checks it belongs to it.
func Decode(address string, params *chaincfg.Params) (btcutil.Address, error) {
	decoded, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, &bitcoin.InvalidAddressError{Address: address}
	}

	if !decoded.IsForNet(params) {
		return nil, &bitcoin.InvalidAddressError{Address: address}
	}

	return decoded, nil
}

// PayToAddress returns scriptPubKey paying to the address.
func PayToAddress(address string, params *chaincfg.Params) ([]byte, error) {
	decoded, err := Decode(address, params)
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(decoded)
}

// NestedSegwitRedeemScript returns P2WPKH program wrapped by P2SH: OP_0 <hash160(pubKey)>.
func NestedSegwitRedeemScript(pubKey *btcec.PublicKey) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubKey.SerializeCompressed())).
		Script()
}

// FromPublicKey returns address of provided type for the public key.
// Taproot address commits to the key with BIP-86 tweak (no script tree).
func FromPublicKey(pubKey *btcec.PublicKey, addressType bitcoin.AddressType, params *chaincfg.Params) (btcutil.Address, error) {
	switch addressType {
	case bitcoin.AddressTypeLegacy:
		return btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), params)
	case bitcoin.AddressTypeNestedSegwit:
		redeemScript, err := NestedSegwitRedeemScript(pubKey)
		if err != nil {
			return nil, err
		}

		return btcutil.NewAddressScriptHash(redeemScript, params)
	case bitcoin.AddressTypeNativeSegwit:
		return btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), params)
	case bitcoin.AddressTypeTaproot:
		outputKey := txscript.ComputeTaprootKeyNoScript(pubKey)
		return btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), params)
	default:
		return nil, fmt.Errorf("%w: %s", bitcoin.ErrUnsupportedInputType, addressType)
	}
}
