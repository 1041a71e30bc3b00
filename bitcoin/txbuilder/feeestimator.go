// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/txsize"
	"github.com/BoostyLabs/txengine/internal/numbers"
)

// scriptPubKey lengths of the supported output types.
const (
	p2trScriptLen   = 34
	p2wpkhScriptLen = 22
	p2shScriptLen   = 23
	p2pkhScriptLen  = 25
)

// Estimate returns fee quote of the packet for the fee rate in sat/vB.
// Input types are inferred from the populated psbt fields only, so a packet restored
// from its serialized form is estimated exactly as the one it was serialized from.
func Estimate(packet *psbt.Packet, feeRate float64) (bitcoin.FeeQuote, error) {
	if feeRate < 0 {
		return bitcoin.FeeQuote{}, errors.New("negative fee rate")
	}

	vSize, err := EstimateVSize(packet)
	if err != nil {
		return bitcoin.FeeQuote{}, err
	}

	return bitcoin.FeeQuote{
		FeeRate: feeRate,
		Fee:     numbers.CeilMul(vSize, feeRate),
		VSize:   vSize,
	}, nil
}

// EstimateVSize returns estimated virtual size of the packet once all inputs are signed.
func EstimateVSize(packet *psbt.Packet) (int64, error) {
	if packet == nil || packet.UnsignedTx == nil {
		return 0, errors.New("empty packet")
	}
	if len(packet.Inputs) != len(packet.UnsignedTx.TxIn) {
		return 0, errors.New("packet inputs mismatch")
	}

	inputs := make([]txsize.Input, len(packet.Inputs))
	for i := range packet.Inputs {
		in, err := InferInput(packet, i)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}

		inputs[i] = in
	}

	outputs := make([]txsize.Output, len(packet.UnsignedTx.TxOut))
	for i, out := range packet.UnsignedTx.TxOut {
		outputs[i] = txsize.OutputFromScript(out.PkScript)
	}

	return txsize.VSize(inputs, outputs)
}

// InferInput detects spending type of the input by its psbt fields.
func InferInput(packet *psbt.Packet, idx int) (txsize.Input, error) {
	input := packet.Inputs[idx]

	switch {
	case len(input.TaprootLeafScript) != 0:
		leaf := input.TaprootLeafScript[0]
		return txsize.Input{
			Type: bitcoin.AddressTypeTaproot,
			ScriptPath: &txsize.ScriptPath{
				ControlBlockLen: len(leaf.ControlBlock),
				ScriptLen:       len(leaf.Script),
			},
		}, nil
	case len(input.TaprootInternalKey) != 0, len(input.TaprootKeySpendSig) != 0:
		return txsize.Input{Type: bitcoin.AddressTypeTaproot}, nil
	case len(input.RedeemScript) != 0:
		return txsize.Input{Type: bitcoin.AddressTypeNestedSegwit}, nil
	case input.WitnessUtxo != nil:
		return inputFromScript(input.WitnessUtxo.PkScript)
	case input.NonWitnessUtxo != nil:
		outPoint := packet.UnsignedTx.TxIn[idx].PreviousOutPoint
		if int(outPoint.Index) >= len(input.NonWitnessUtxo.TxOut) {
			return txsize.Input{}, errors.New("previous output is out of range")
		}

		return inputFromScript(input.NonWitnessUtxo.TxOut[outPoint.Index].PkScript)
	default:
		return txsize.Input{}, fmt.Errorf("%w: no previous output data", bitcoin.ErrUnsupportedInputType)
	}
}

// inputFromScript returns typed input by previous output script length.
func inputFromScript(pkScript []byte) (txsize.Input, error) {
	switch len(pkScript) {
	case p2trScriptLen:
		return txsize.Input{Type: bitcoin.AddressTypeTaproot}, nil
	case p2wpkhScriptLen:
		return txsize.Input{Type: bitcoin.AddressTypeNativeSegwit}, nil
	case p2shScriptLen:
		return txsize.Input{Type: bitcoin.AddressTypeNestedSegwit}, nil
	case p2pkhScriptLen:
		return txsize.Input{Type: bitcoin.AddressTypeLegacy}, nil
	default:
		return txsize.Input{}, fmt.Errorf("%w: %d bytes previous output script", bitcoin.ErrUnsupportedInputType, len(pkScript))
	}
}
