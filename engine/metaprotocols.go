// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package engine

import (
	"context"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/commitreveal"
	"github.com/BoostyLabs/txengine/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/txengine/bitcoin/ord/runes"
	"github.com/BoostyLabs/txengine/bitcoin/utils"
)

// etchingPointer defines reveal output receiving premine, the runestone is output 0.
const etchingPointer uint32 = 1

// BRC20TransferParams describes brc-20 transfer inscription.
type BRC20TransferParams struct {
	Tick   string
	Amount string
	// Receiver of the inscription, account taproot address when empty.
	Receiver string
	FeeRate  float64
}

// InscribeBRC20Transfer inscribes brc-20 transfer operation to the receiver.
func (e *Engine) InscribeBRC20Transfer(ctx context.Context, params BRC20TransferParams) (_ *commitreveal.Result, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrEngine, err)
		}
	}()

	inscription, err := inscriptions.NewBRC20Transfer(params.Tick, params.Amount)
	if err != nil {
		return nil, err
	}

	return e.inscribe(ctx, inscription, nil, params.Receiver, params.FeeRate)
}

// EtchParams describes new rune.
type EtchParams struct {
	// Name is the rune name, spacers are allowed.
	Name          string
	Divisibility  byte
	Symbol        rune
	Premine       *big.Int
	Cap           *big.Int
	PerMintAmount *big.Int
	Turbo         bool
	// Receiver of the premine, account taproot address when empty.
	Receiver string
	FeeRate  float64
}

// EtchRune reveals the rune name commitment with the etching runestone.
func (e *Engine) EtchRune(ctx context.Context, params EtchParams) (_ *commitreveal.Result, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrEngine, err)
		}
	}()

	name, spacers, err := runes.NewRuneFromStringWithSpacer(params.Name)
	if err != nil {
		return nil, err
	}

	etching := &runes.Etching{
		Divisibility: &params.Divisibility,
		Premine:      params.Premine,
		Rune:         name,
		Turbo:        params.Turbo,
	}
	if spacers != 0 {
		etching.Spacers = &spacers
	}
	if params.Symbol != 0 {
		etching.Symbol = &params.Symbol
	}
	if params.Cap != nil || params.PerMintAmount != nil {
		etching.Terms = &runes.Terms{Amount: params.PerMintAmount, Cap: params.Cap}
	}

	pointer := etchingPointer
	runestone, err := (&runes.Runestone{Etching: etching, Pointer: &pointer}).IntoScript()
	if err != nil {
		return nil, err
	}

	internalKey, err := e.internalKey()
	if err != nil {
		return nil, err
	}

	lockingScript, err := runes.CommitmentScript(utils.XOnlyPubKey(internalKey), name)
	if err != nil {
		return nil, err
	}

	receiver, err := e.receiver(params.Receiver)
	if err != nil {
		return nil, err
	}

	outputs := []bitcoin.OutputSpec{
		{Script: runestone},
		{Address: receiver, Amount: e.config.Postage},
	}

	e.log.Debug("etching rune", "rune", name.Spaced(spacers), "receiver", receiver)

	return e.reveal(ctx, lockingScript, internalKey, outputs, receiver, e.FeeRate(ctx, params.FeeRate))
}

// DeployParams describes alkanes contract deployment.
type DeployParams struct {
	// Payload is the contract binary carried by the envelope.
	Payload []byte
	// Protostone is OP_RETURN script with the deploy cellpack.
	Protostone []byte
	Receiver   string
	FeeRate    float64
}

// DeployContract reveals alkanes contract envelope together with the protostone.
func (e *Engine) DeployContract(ctx context.Context, params DeployParams) (_ *commitreveal.Result, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrEngine, err)
		}
	}()

	if len(params.Protostone) == 0 || params.Protostone[0] != txscript.OP_RETURN {
		return nil, errors.New("protostone must be OP_RETURN script")
	}

	envelope, err := inscriptions.NewAlkanesEnvelope(params.Payload)
	if err != nil {
		return nil, err
	}

	return e.inscribe(ctx, envelope, []bitcoin.OutputSpec{{Script: params.Protostone}}, params.Receiver, params.FeeRate)
}

// inscribe reveals the envelope to the receiver postage output followed by extra outputs.
func (e *Engine) inscribe(ctx context.Context, inscription *inscriptions.Inscription, extra []bitcoin.OutputSpec,
	receiver string, feeRate float64) (*commitreveal.Result, error) {
	internalKey, err := e.internalKey()
	if err != nil {
		return nil, err
	}

	lockingScript, err := inscription.IntoScriptForWitness(utils.XOnlyPubKey(internalKey))
	if err != nil {
		return nil, err
	}

	receiver, err = e.receiver(receiver)
	if err != nil {
		return nil, err
	}

	outputs := append([]bitcoin.OutputSpec{{Address: receiver, Amount: e.config.Postage}}, extra...)

	return e.reveal(ctx, lockingScript, internalKey, outputs, receiver, e.FeeRate(ctx, feeRate))
}
