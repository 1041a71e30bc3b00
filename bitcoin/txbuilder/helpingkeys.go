// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"errors"
	"math"

	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/BoostyLabs/txengine/bitcoin"
)

// ErrUnknownInputsHelpingKey defines that inputs help keys is unknown.
var ErrUnknownInputsHelpingKey = errors.New("unknown inputs help keys")

// InputsHelpingKey defines type for additional data in PSBT Unknowns field
// to distinguish input types and their indexes.
type InputsHelpingKey byte

const (
	// TaprootInputsHelpingKey defines key for taproot inputs.
	TaprootInputsHelpingKey InputsHelpingKey = 0x10
	// PaymentInputsHelpingKey defines key for native segwit payment inputs.
	PaymentInputsHelpingKey InputsHelpingKey = 0x20
	// NestedSegwitInputsHelpingKey defines key for nested segwit inputs.
	NestedSegwitInputsHelpingKey InputsHelpingKey = 0x30
	// LegacyInputsHelpingKey defines key for legacy inputs.
	LegacyInputsHelpingKey InputsHelpingKey = 0x40
)

// MaxHelpingKeysInputs is the number of inputs addressable by one byte index.
const MaxHelpingKeysInputs = math.MaxUint8 + 1

// InputsHelpingKeyFromAddressType returns helping key of the address type inputs.
func InputsHelpingKeyFromAddressType(addressType bitcoin.AddressType) (InputsHelpingKey, error) {
	switch addressType {
	case bitcoin.AddressTypeTaproot:
		return TaprootInputsHelpingKey, nil
	case bitcoin.AddressTypeNativeSegwit:
		return PaymentInputsHelpingKey, nil
	case bitcoin.AddressTypeNestedSegwit:
		return NestedSegwitInputsHelpingKey, nil
	case bitcoin.AddressTypeLegacy:
		return LegacyInputsHelpingKey, nil
	}

	return 0, ErrUnknownInputsHelpingKey
}

// InputsHelpingKeyFromBytes parses bytes array into InputsHelpingKey if any.
func InputsHelpingKeyFromBytes(b []byte) (InputsHelpingKey, error) {
	if len(b) != 1 {
		return 0, ErrUnknownInputsHelpingKey
	}

	switch key := InputsHelpingKey(b[0]); key {
	case TaprootInputsHelpingKey, PaymentInputsHelpingKey, NestedSegwitInputsHelpingKey, LegacyInputsHelpingKey:
		return key, nil
	}

	return 0, ErrUnknownInputsHelpingKey
}

// AddressType returns address type of inputs marked by the key.
func (k InputsHelpingKey) AddressType() (bitcoin.AddressType, error) {
	switch k {
	case TaprootInputsHelpingKey:
		return bitcoin.AddressTypeTaproot, nil
	case PaymentInputsHelpingKey:
		return bitcoin.AddressTypeNativeSegwit, nil
	case NestedSegwitInputsHelpingKey:
		return bitcoin.AddressTypeNestedSegwit, nil
	case LegacyInputsHelpingKey:
		return bitcoin.AddressTypeLegacy, nil
	}

	return 0, ErrUnknownInputsHelpingKey
}

// Byte returns InputsHelpingKey as byte.
func (k InputsHelpingKey) Byte() byte {
	return byte(k)
}

// Bytes returns InputsHelpingKey as bytes array.
func (k InputsHelpingKey) Bytes() []byte {
	return []byte{byte(k)}
}

// SetInputsHelpingKeys stores input indexes grouped by address type in the packet unknowns.
// Each index is kept as a single byte, so packets with more inputs get no helping keys and
// signers infer input types from the psbt fields.
func SetInputsHelpingKeys(packet *psbt.Packet, inputTypes []bitcoin.AddressType) error {
	if len(inputTypes) > MaxHelpingKeysInputs {
		packet.Unknowns = foreignUnknowns(packet.Unknowns, 0)
		return nil
	}

	indexes := make(map[InputsHelpingKey][]byte)
	order := make([]InputsHelpingKey, 0, 4)
	for idx, addressType := range inputTypes {
		key, err := InputsHelpingKeyFromAddressType(addressType)
		if err != nil {
			return err
		}

		if _, ok := indexes[key]; !ok {
			order = append(order, key)
		}
		indexes[key] = append(indexes[key], byte(idx))
	}

	unknowns := foreignUnknowns(packet.Unknowns, len(order))
	for _, key := range order {
		unknowns = append(unknowns, &psbt.Unknown{Key: key.Bytes(), Value: indexes[key]})
	}

	packet.Unknowns = unknowns

	return nil
}

// foreignUnknowns returns unknowns which are not helping keys.
func foreignUnknowns(unknowns []*psbt.Unknown, extra int) []*psbt.Unknown {
	result := make([]*psbt.Unknown, 0, len(unknowns)+extra)
	for _, unknown := range unknowns {
		if _, err := InputsHelpingKeyFromBytes(unknown.Key); err != nil {
			result = append(result, unknown)
		}
	}

	return result
}

// ExtractAddressTypeInputIndexesFromPSBT returns map with address types and indexes to sign.
func ExtractAddressTypeInputIndexesFromPSBT(data []byte) (map[InputsHelpingKey][]int, error) {
	p, err := psbt.NewFromRawBytes(bytes.NewReader(data), false)
	if err != nil {
		return nil, err
	}

	return InputIndexes(p), nil
}

// InputIndexes returns input indexes grouped by helping keys of the packet, other unknowns are skipped.
func InputIndexes(p *psbt.Packet) map[InputsHelpingKey][]int {
	var result = make(map[InputsHelpingKey][]int, 2)
	for _, unknown := range p.Unknowns {
		key, err := InputsHelpingKeyFromBytes(unknown.Key)
		if err != nil {
			continue
		}

		result[key] = make([]int, len(unknown.Value))
		for idx, val := range unknown.Value {
			result[key][idx] = int(val)
		}
	}

	return result
}
