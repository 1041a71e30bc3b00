// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package txsize estimates transaction virtual size from typed inputs and outputs.
//
// All sizes are kept in weight units (Weight = 4 * BaseSize + WitnessSize) so that
// fractional witness contributions stay exact until the final rounding.
package txsize

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/internal/numbers"
)

// witnessScaleFactor determines the discount witness data receives compared to base data.
const witnessScaleFactor = 4

const (
	// OverheadWeight is version (4 bytes) + locktime (4 bytes) of the base data.
	OverheadWeight = (4 + 4) * witnessScaleFactor

	// SegwitMarkerWeight is the segwit marker and flag, counted as one full vbyte
	// whenever any witness input is present.
	SegwitMarkerWeight = 1 * witnessScaleFactor

	// P2PKHInputWeight 148 vbytes, no witness.
	//	- outpoint: 36 bytes
	//	- script length: 1 byte
	//	- signature script: 107 bytes
	//	- sequence: 4 bytes
	P2PKHInputWeight = 148 * witnessScaleFactor

	// NestedP2WPKHInputWeight 63 vbytes base + 111 witness weight units (27.75 vbytes).
	//	- outpoint, sequence, script length: 41 bytes
	//	- redeem script push: 22 bytes
	NestedP2WPKHInputWeight = 63*witnessScaleFactor + 111

	// P2WPKHInputWeight 41 vbytes base + 106 witness weight units (26.5 vbytes).
	//	- outpoint, sequence, empty script: 41 bytes
	//	- witness: items count, signature push, public key push
	P2WPKHInputWeight = 41*witnessScaleFactor + 106

	// TaprootKeyPathInputWeight 41 vbytes base + 65 witness weight units (16.25 vbytes).
	//	- outpoint, sequence, empty script: 41 bytes
	//	- witness: schnorr signature 64 bytes + length byte
	TaprootKeyPathInputWeight = 41*witnessScaleFactor + 65

	// ControlBlockBaseSize is the size of control block of a single leaf tree:
	// leaf version with parity (1 byte) + internal key (32 bytes).
	ControlBlockBaseSize = 1 + 32

	// P2PKHOutputWeight 34 vbytes: value 8 + script length 1 + script 25.
	P2PKHOutputWeight = 34 * witnessScaleFactor
	// NestedP2WPKHOutputWeight 32 vbytes: value 8 + script length 1 + script 23.
	NestedP2WPKHOutputWeight = 32 * witnessScaleFactor
	// P2WPKHOutputWeight 31 vbytes: value 8 + script length 1 + script 22.
	P2WPKHOutputWeight = 31 * witnessScaleFactor
	// P2TROutputWeight 43 vbytes: value 8 + script length 1 + script 34.
	P2TROutputWeight = 43 * witnessScaleFactor

	// dataOutputOverhead is value 8 + script length 1 bytes of any raw script output.
	dataOutputOverhead = 9
)

// ScriptPath describes taproot input spent through the script path.
type ScriptPath struct {
	ControlBlockLen int
	ScriptLen       int
}

// Input defines typed transaction input.
type Input struct {
	Type       bitcoin.AddressType
	ScriptPath *ScriptPath // taproot only.
}

// Output defines typed transaction output.
type Output struct {
	Type    bitcoin.AddressType
	DataLen int // script length of raw script outputs, Type is zero for them.
}

// NewDataOutput returns Output for raw script (e.g. OP_RETURN) of provided length.
func NewDataOutput(scriptLen int) Output {
	return Output{DataLen: scriptLen}
}

// OutputFromScript returns typed Output for scriptPubKey.
func OutputFromScript(pkScript []byte) Output {
	switch {
	case len(pkScript) > 0 && pkScript[0] == txscript.OP_RETURN:
		return NewDataOutput(len(pkScript))
	case txscript.IsPayToPubKeyHash(pkScript):
		return Output{Type: bitcoin.AddressTypeLegacy}
	case txscript.IsPayToScriptHash(pkScript):
		return Output{Type: bitcoin.AddressTypeNestedSegwit}
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return Output{Type: bitcoin.AddressTypeNativeSegwit}
	case txscript.IsPayToTaproot(pkScript):
		return Output{Type: bitcoin.AddressTypeTaproot}
	default:
		return NewDataOutput(len(pkScript))
	}
}

// InputWeight returns weight of the input.
func InputWeight(in Input) (int64, error) {
	switch in.Type {
	case bitcoin.AddressTypeLegacy:
		return P2PKHInputWeight, nil
	case bitcoin.AddressTypeNestedSegwit:
		return NestedP2WPKHInputWeight, nil
	case bitcoin.AddressTypeNativeSegwit:
		return P2WPKHInputWeight, nil
	case bitcoin.AddressTypeTaproot:
		if in.ScriptPath == nil {
			return TaprootKeyPathInputWeight, nil
		}

		extra := in.ScriptPath.ControlBlockLen - ControlBlockBaseSize
		if extra < 0 {
			extra = 0
		}

		weight := int64(TaprootKeyPathInputWeight)
		weight += numbers.CeilDiv(int64(ControlBlockBaseSize+extra), witnessScaleFactor) * witnessScaleFactor
		weight += numbers.CeilDiv(int64(in.ScriptPath.ScriptLen), witnessScaleFactor) * witnessScaleFactor

		return weight, nil
	default:
		return 0, fmt.Errorf("%w: %s", bitcoin.ErrUnsupportedInputType, in.Type)
	}
}

// OutputWeight returns weight of the output.
func OutputWeight(out Output) int64 {
	switch out.Type {
	case bitcoin.AddressTypeLegacy:
		return P2PKHOutputWeight
	case bitcoin.AddressTypeNestedSegwit:
		return NestedP2WPKHOutputWeight
	case bitcoin.AddressTypeNativeSegwit:
		return P2WPKHOutputWeight
	case bitcoin.AddressTypeTaproot:
		return P2TROutputWeight
	default:
		return int64(dataOutputOverhead+out.DataLen) * witnessScaleFactor
	}
}

// Weight returns estimated transaction weight.
func Weight(inputs []Input, outputs []Output) (int64, error) {
	weight := int64(OverheadWeight)
	weight += int64(varIntSize(uint64(len(inputs)))) * witnessScaleFactor
	weight += int64(varIntSize(uint64(len(outputs)))) * witnessScaleFactor

	var hasWitness bool
	for _, in := range inputs {
		inWeight, err := InputWeight(in)
		if err != nil {
			return 0, err
		}

		weight += inWeight
		hasWitness = hasWitness || in.Type.IsWitness()
	}

	if hasWitness {
		weight += SegwitMarkerWeight
	}

	for _, out := range outputs {
		weight += OutputWeight(out)
	}

	return weight, nil
}

// VSize returns estimated transaction virtual size in vbytes rounded to the nearest integer.
func VSize(inputs []Input, outputs []Output) (int64, error) {
	weight, err := Weight(inputs, outputs)
	if err != nil {
		return 0, err
	}

	return WeightToVSize(weight), nil
}

// WeightToVSize converts weight units to vbytes, halves are rounded up.
func WeightToVSize(weight int64) int64 {
	return (weight + witnessScaleFactor/2) / witnessScaleFactor
}

// varIntSize returns serialized size of the compact size uint.
func varIntSize(n uint64) int {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
