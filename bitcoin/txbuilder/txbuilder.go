// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/addresses"
	"github.com/BoostyLabs/txengine/bitcoin/txsize"
	"github.com/BoostyLabs/txengine/internal/numbers"
)

// txVersion defines transaction version for this builder.
const txVersion int32 = 2

const (
	// DefaultMinRelayFee defines fee floor in satoshi of any built transaction.
	DefaultMinRelayFee int64 = 250
	// DefaultPlaceholderFee defines fee of the first sizing pass.
	DefaultPlaceholderFee int64 = 250
	// DefaultDustThreshold defines minimal change output value, smaller change is left to miners.
	DefaultDustThreshold int64 = 546
)

// noChange defines ChangeIndex of drafts without change output.
const noChange = -1

// Option configures Builder.
type Option func(*Builder)

// WithMinRelayFee sets fee floor.
func WithMinRelayFee(fee int64) Option {
	return func(b *Builder) { b.minRelayFee = fee }
}

// WithPlaceholderFee sets fee of the first sizing pass.
func WithPlaceholderFee(fee int64) Option {
	return func(b *Builder) { b.placeholderFee = fee }
}

// WithDustThreshold sets minimal change output value.
func WithDustThreshold(threshold int64) Option {
	return func(b *Builder) { b.dustThreshold = threshold }
}

// WithLogger sets logger.
func WithLogger(log hclog.Logger) Option {
	return func(b *Builder) { b.log = log }
}

// Builder assembles psbt drafts spending account utxos.
type Builder struct {
	params         *chaincfg.Params
	account        *bitcoin.Account
	prevTxs        PrevTxFetcher
	minRelayFee    int64
	placeholderFee int64
	dustThreshold  int64
	log            hclog.Logger
}

// NewBuilder is a constructor for Builder. prevTxs is required only for legacy inputs.
func NewBuilder(params *chaincfg.Params, account *bitcoin.Account, prevTxs PrevTxFetcher, opts ...Option) *Builder {
	b := &Builder{
		params:         params,
		account:        account,
		prevTxs:        prevTxs,
		minRelayFee:    DefaultMinRelayFee,
		placeholderFee: DefaultPlaceholderFee,
		dustThreshold:  DefaultDustThreshold,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.account == nil {
		b.account = new(bitcoin.Account)
	}
	if b.log == nil {
		b.log = hclog.NewNullLogger()
	}

	return b
}

// BuildParams describes transaction to build.
type BuildParams struct {
	// UTXOs are spent in the given order.
	UTXOs   []bitcoin.UTXO
	Outputs []bitcoin.OutputSpec
	// ChangeAddress receives change, account strategy change address is used when empty.
	ChangeAddress string
	// FeeRate in sat/vB, ignored when FixedFee is set.
	FeeRate float64
	// FixedFee bypasses fee convergence when positive.
	FixedFee int64
}

// TxDraft is a built, unsigned transaction with its fee quote.
type TxDraft struct {
	Packet      *psbt.Packet
	UTXOs       []bitcoin.UTXO
	Quote       bitcoin.FeeQuote
	Change      int64
	ChangeIndex int // -1 if there is no change output.
}

// paidFee returns difference between inputs and outputs of the draft.
func (d *TxDraft) paidFee() int64 {
	fee := numbers.Sum(d.UTXOs, func(utxo bitcoin.UTXO) int64 { return utxo.Amount })
	for _, out := range d.Packet.UnsignedTx.TxOut {
		fee -= out.Value
	}

	return fee
}

// Serialize returns draft as serialized psbt.
func (d *TxDraft) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Packet.Serialize(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Base64 returns draft as base64 encoded psbt.
func (d *TxDraft) Base64() (string, error) {
	raw, err := d.Serialize()
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

// Build assembles psbt spending params.UTXOs into params.Outputs with change.
//
// With fee rate the draft is built twice: first with the placeholder fee to get a complete
// transaction for sizing, then with the estimated fee. When the final change falls below dust the
// change output is dropped and the quote is taken from the final draft.
func (b *Builder) Build(ctx context.Context, params BuildParams) (*TxDraft, error) {
	if len(params.UTXOs) == 0 {
		return nil, bitcoin.NewInsufficientError(bitcoin.InsufficientErrorTypeBitcoin, numbers.Sum(params.Outputs, outputAmount), 0).
			SetCauser(bitcoin.CauserSelection)
	}

	changeScript, err := b.changeScript(params.ChangeAddress)
	if err != nil {
		return nil, err
	}

	if params.FixedFee > 0 {
		draft, err := b.draft(ctx, params, changeScript, params.FixedFee, true)
		if err != nil {
			return nil, err
		}

		vSize, err := EstimateVSize(draft.Packet)
		if err != nil {
			return nil, err
		}

		fee := draft.paidFee()
		draft.Quote = bitcoin.FeeQuote{FeeRate: float64(fee) / float64(vSize), Fee: fee, VSize: vSize}

		return draft, nil
	}

	sizing, err := b.draft(ctx, params, changeScript, numbers.AtLeast(b.placeholderFee, b.minRelayFee), false)
	if err != nil {
		return nil, err
	}

	quote, err := Estimate(sizing.Packet, params.FeeRate)
	if err != nil {
		return nil, err
	}
	quote.Fee = numbers.AtLeast(quote.Fee, b.minRelayFee)

	draft, err := b.draft(ctx, params, changeScript, quote.Fee, true)
	if err != nil {
		return nil, err
	}

	if draft.ChangeIndex == noChange {
		// sub-dust change is left to miners, the draft shrank since sizing.
		quote.VSize, err = EstimateVSize(draft.Packet)
		if err != nil {
			return nil, err
		}
		quote.Fee = draft.paidFee()
	}
	draft.Quote = quote

	b.log.Debug("transaction built", "inputs", len(params.UTXOs), "outputs", len(draft.Packet.UnsignedTx.TxOut),
		"vsize", quote.VSize, "fee", quote.Fee, "change", draft.Change)

	return draft, nil
}

// draft builds psbt with the fee. Sizing drafts tolerate negative change, the fee is not final for them.
func (b *Builder) draft(ctx context.Context, params BuildParams, changeScript []byte, fee int64, final bool) (*TxDraft, error) {
	tx := wire.NewMsgTx(txVersion)

	var totalIn int64
	for _, utxo := range params.UTXOs {
		outPoint, err := utxo.OutPoint()
		if err != nil {
			return nil, errors.Join(ErrInputRecipe, err)
		}

		tx.AddTxIn(wire.NewTxIn(outPoint, nil, nil))
		totalIn += utxo.Amount
	}

	var totalOut int64
	for _, output := range params.Outputs {
		pkScript, err := b.outputScript(output)
		if err != nil {
			return nil, err
		}

		tx.AddTxOut(wire.NewTxOut(output.Amount, pkScript))
		totalOut += output.Amount
	}

	change := totalIn - totalOut - fee
	if change < 0 && final {
		return nil, bitcoin.NewInsufficientError(bitcoin.InsufficientErrorTypeChange, totalOut+fee, totalIn).
			SetCauser(bitcoin.CauserFee)
	}

	changeIndex := noChange
	if change >= b.dustThreshold {
		changeIndex = len(tx.TxOut)
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}

	inputTypes := make([]bitcoin.AddressType, len(params.UTXOs))
	for i, utxo := range params.UTXOs {
		in, err := b.prepareInput(ctx, &packet.Inputs[i], utxo)
		if err != nil {
			return nil, err
		}

		inputTypes[i] = in.Type
	}

	if err = SetInputsHelpingKeys(packet, inputTypes); err != nil {
		return nil, err
	}

	if changeIndex == noChange {
		change = 0
	}

	return &TxDraft{
		Packet:      packet,
		UTXOs:       append([]bitcoin.UTXO(nil), params.UTXOs...),
		Change:      change,
		ChangeIndex: changeIndex,
	}, nil
}

// SelectionTarget returns amount utxos must cover to pay the outputs and the fee of the transaction
// spending them with a change output.
func (b *Builder) SelectionTarget(utxos []bitcoin.UTXO, outputs []bitcoin.OutputSpec, changeAddress string, feeRate float64) (int64, error) {
	inputs := make([]txsize.Input, 0, len(utxos))
	for _, utxo := range utxos {
		addressType, err := addresses.Classify(utxo.Address)
		if err != nil {
			return 0, err
		}

		in := txsize.Input{Type: addressType}
		if utxo.TapScript != nil {
			in.ScriptPath = &txsize.ScriptPath{
				ControlBlockLen: len(utxo.TapScript.ControlBlock),
				ScriptLen:       len(utxo.TapScript.LeafScript),
			}
		}

		inputs = append(inputs, in)
	}

	if changeAddress == "" {
		var err error
		changeAddress, err = b.ChangeAddress()
		if err != nil {
			return 0, err
		}
	}

	fee, err := b.EstimateFee(inputs, append(slices.Clip(outputs), bitcoin.OutputSpec{Address: changeAddress}), feeRate)
	if err != nil {
		return 0, err
	}

	return numbers.Sum(outputs, outputAmount) + fee, nil
}

// EstimateFee returns fee of the transaction with typed inputs paying the outputs, the min relay fee at least.
func (b *Builder) EstimateFee(inputs []txsize.Input, outputs []bitcoin.OutputSpec, feeRate float64) (int64, error) {
	typedOutputs := make([]txsize.Output, 0, len(outputs))
	for _, output := range outputs {
		pkScript, err := b.outputScript(output)
		if err != nil {
			return 0, err
		}

		typedOutputs = append(typedOutputs, txsize.OutputFromScript(pkScript))
	}

	vSize, err := txsize.VSize(inputs, typedOutputs)
	if err != nil {
		return 0, err
	}

	return numbers.AtLeast(numbers.CeilMul(vSize, feeRate), b.minRelayFee), nil
}

// ChangeAddress returns change address of the account strategy.
func (b *Builder) ChangeAddress() (string, error) {
	keyAddress, ok := b.account.ByKey(b.account.SpendStrategy.ChangeAddress)
	if !ok {
		return "", fmt.Errorf("account has no %q change address", b.account.SpendStrategy.ChangeAddress)
	}

	return keyAddress.Address, nil
}

// changeScript returns scriptPubKey of the change address.
func (b *Builder) changeScript(changeAddress string) ([]byte, error) {
	if changeAddress == "" {
		var err error
		changeAddress, err = b.ChangeAddress()
		if err != nil {
			return nil, err
		}
	}

	return addresses.PayToAddress(changeAddress, b.params)
}

// outputScript returns scriptPubKey of the output.
func (b *Builder) outputScript(output bitcoin.OutputSpec) ([]byte, error) {
	if len(output.Script) != 0 {
		return output.Script, nil
	}

	return addresses.PayToAddress(output.Address, b.params)
}

// outputAmount returns amount of the output.
func outputAmount(output bitcoin.OutputSpec) int64 {
	return output.Amount
}
