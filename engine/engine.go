// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package engine joins utxo loading, coin selection, psbt building, signing and broadcasting
// into account level operations: plain sends and commit/reveal backed metaprotocol operations.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/hashicorp/go-hclog"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/commitreveal"
	"github.com/BoostyLabs/txengine/bitcoin/txbuilder"
	"github.com/BoostyLabs/txengine/bitcoin/utils"
	"github.com/BoostyLabs/txengine/bitcoin/utxoset"
)

// ErrEngine defines errors class for engine.
var ErrEngine = errors.New("engine")

const (
	// DefaultConfirmationTarget defines fee estimates key used when fee rate is not set.
	DefaultConfirmationTarget = "1"
	// DefaultPostage defines value of the output receiving inscription or runes.
	DefaultPostage int64 = 546
	// defaultFallbackFeeRate defines fee rate in sat/vB used when estimates are unavailable.
	defaultFallbackFeeRate = 10
)

// maxSelectionRounds bounds re-selection when the fee of the gathered inputs exceeds the previous target.
const maxSelectionRounds = 5

// FeeSource provides fee rates in sat/vB keyed by confirmation target.
type FeeSource interface {
	FeeEstimates(ctx context.Context) (map[string]float64, error)
}

// Signer signs all inputs of the packet.
type Signer interface {
	SignAllInputs(ctx context.Context, packet *psbt.Packet, finalize bool) error
}

// PendingStore keeps pending reveals.
type PendingStore interface {
	commitreveal.Store
	Get(ctx context.Context, commitTxID string) (*commitreveal.Pending, error)
	List(ctx context.Context) ([]commitreveal.Pending, error)
}

// Config defines engine parameters.
type Config struct {
	FallbackFeeRate    float64
	ConfirmationTarget string
	Postage            int64
}

// Dependencies defines collaborators of the engine.
type Dependencies struct {
	Account     *bitcoin.Account
	Builder     *txbuilder.Builder
	Source      utxoset.AddressSource
	Selector    *utxoset.Selector
	Fees        FeeSource
	Signer      Signer
	Broadcaster commitreveal.Broadcaster
	Protocol    *commitreveal.Protocol
	// Store is optional, without it pending reveals can not be listed or resumed by id.
	Store PendingStore
}

// Engine runs account level transaction operations.
type Engine struct {
	config      Config
	account     *bitcoin.Account
	builder     *txbuilder.Builder
	source      utxoset.AddressSource
	selector    *utxoset.Selector
	fees        FeeSource
	signer      Signer
	broadcaster commitreveal.Broadcaster
	protocol    *commitreveal.Protocol
	store       PendingStore
	log         hclog.Logger
}

// New is a constructor for Engine.
func New(config Config, deps Dependencies, log hclog.Logger) (*Engine, error) {
	if deps.Account == nil || deps.Builder == nil || deps.Source == nil || deps.Selector == nil ||
		deps.Signer == nil || deps.Broadcaster == nil || deps.Protocol == nil {
		return nil, errors.Join(ErrEngine, errors.New("missing dependency"))
	}
	if err := deps.Account.SpendStrategy.Validate(); err != nil {
		return nil, errors.Join(ErrEngine, err)
	}

	if config.FallbackFeeRate <= 0 {
		config.FallbackFeeRate = defaultFallbackFeeRate
	}
	if config.ConfirmationTarget == "" {
		config.ConfirmationTarget = DefaultConfirmationTarget
	}
	if config.Postage <= 0 {
		config.Postage = DefaultPostage
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	return &Engine{
		config:      config,
		account:     deps.Account,
		builder:     deps.Builder,
		source:      deps.Source,
		selector:    deps.Selector,
		fees:        deps.Fees,
		signer:      deps.Signer,
		broadcaster: deps.Broadcaster,
		protocol:    deps.Protocol,
		store:       deps.Store,
		log:         log,
	}, nil
}

// Account returns engine account.
func (e *Engine) Account() *bitcoin.Account {
	return e.account
}

// SendParams describes plain payment.
type SendParams struct {
	Outputs []bitcoin.OutputSpec
	// FeeRate in sat/vB, estimated when zero.
	FeeRate float64
}

// CreateSendPsbt selects account utxos and returns unsigned draft paying the outputs.
func (e *Engine) CreateSendPsbt(ctx context.Context, params SendParams) (_ *txbuilder.TxDraft, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrEngine, err)
		}
	}()

	if len(params.Outputs) == 0 {
		return nil, errors.New("no outputs")
	}

	feeRate := e.FeeRate(ctx, params.FeeRate)

	utxos, err := e.gather(ctx, params.Outputs, feeRate)
	if err != nil {
		return nil, err
	}

	return e.builder.Build(ctx, txbuilder.BuildParams{
		UTXOs:   utxos,
		Outputs: params.Outputs,
		FeeRate: feeRate,
	})
}

// Send builds, signs and broadcasts plain payment.
func (e *Engine) Send(ctx context.Context, params SendParams) (*bitcoin.PushResult, error) {
	draft, err := e.CreateSendPsbt(ctx, params)
	if err != nil {
		return nil, err
	}

	if err = e.signer.SignAllInputs(ctx, draft.Packet, true); err != nil {
		return nil, errors.Join(ErrEngine, err)
	}

	pushed, err := e.broadcaster.Push(ctx, draft.Packet)
	if err != nil {
		return nil, errors.Join(ErrEngine, err)
	}

	e.log.Info("payment sent", "txid", pushed.TxID, "fee", pushed.Fee, "vsize", pushed.VSize)

	return pushed, nil
}

// FeeRate returns rate if it is positive, otherwise estimated rate of the confirmation target,
// otherwise configured fallback.
func (e *Engine) FeeRate(ctx context.Context, rate float64) float64 {
	if rate > 0 {
		return rate
	}

	if e.fees != nil {
		estimates, err := e.fees.FeeEstimates(ctx)
		if err != nil {
			e.log.Warn("fee estimates unavailable", "error", err)
		} else if estimated := estimates[e.config.ConfirmationTarget]; estimated > 0 {
			return estimated
		}
	}

	return e.config.FallbackFeeRate
}

// gather selects account utxos covering outputs and the fee of spending them. The fee grows with
// every selected input, so selection is repeated against the new target until it holds.
func (e *Engine) gather(ctx context.Context, outputs []bitcoin.OutputSpec, feeRate float64) ([]bitcoin.UTXO, error) {
	target, err := e.builder.SelectionTarget(nil, outputs, "", feeRate)
	if err != nil {
		return nil, err
	}

	var have int64
	for round := 0; round < maxSelectionRounds; round++ {
		result, err := e.selector.SelectAcrossAddresses(ctx, e.account, e.source, target, false)
		if err != nil {
			return nil, err
		}

		utxos := result.Gathered.UTXOs()
		need, err := e.builder.SelectionTarget(utxos, outputs, "", feeRate)
		if err != nil {
			return nil, err
		}

		have = result.Gathered.TotalAmount()
		if have >= need {
			e.log.Debug("utxos gathered", "count", len(utxos), "total", have, "need", need, "rounds", round+1)
			return utxos, nil
		}

		target = need
	}

	return nil, bitcoin.NewInsufficientError(bitcoin.InsufficientErrorTypeBitcoin, target, have).SetCauser(bitcoin.CauserFee)
}

// reveal commits the locking script with account funds and reveals it into outputs.
func (e *Engine) reveal(ctx context.Context, lockingScript []byte, internalKey *btcec.PublicKey,
	outputs []bitcoin.OutputSpec, receiver string, feeRate float64) (*commitreveal.Result, error) {
	req := commitreveal.Request{
		LockingScript: lockingScript,
		InternalKey:   internalKey,
		RevealOutputs: outputs,
		Receiver:      receiver,
		FeeRate:       feeRate,
	}

	pending, err := e.protocol.Prepare(req)
	if err != nil {
		return nil, err
	}

	req.Funding, err = e.gather(ctx, []bitcoin.OutputSpec{{Address: pending.CommitAddress, Amount: pending.CommitValue}}, feeRate)
	if err != nil {
		return nil, err
	}

	result, err := e.protocol.Run(ctx, req)
	if err != nil {
		return result, err
	}

	e.log.Info("revealed", "commit", result.CommitTxID, "reveal", result.RevealTxID)

	return result, nil
}

// internalKey returns account taproot public key.
func (e *Engine) internalKey() (*btcec.PublicKey, error) {
	if e.account.Taproot.PubKey == "" {
		return nil, errors.New("account has no taproot key")
	}

	return utils.ParsePubKey(e.account.Taproot.PubKey)
}

// receiver returns address or account taproot address when empty.
func (e *Engine) receiver(address string) (string, error) {
	if address != "" {
		return address, nil
	}
	if e.account.Taproot.Address == "" {
		return "", errors.New("no receiver address")
	}

	return e.account.Taproot.Address, nil
}

// ResumeReveal continues pending reveal of the commit transaction after a timeout.
func (e *Engine) ResumeReveal(ctx context.Context, commitTxID string) (*commitreveal.Result, error) {
	if e.store == nil {
		return nil, errors.Join(ErrEngine, errors.New("no pending store"))
	}

	pending, err := e.store.Get(ctx, commitTxID)
	if err != nil {
		return nil, errors.Join(ErrEngine, err)
	}

	result, err := e.protocol.Resume(ctx, *pending)
	if err != nil {
		return result, errors.Join(ErrEngine, err)
	}

	return result, nil
}

// PendingReveals returns commits which reveals were not broadcast yet.
func (e *Engine) PendingReveals(ctx context.Context) ([]commitreveal.Pending, error) {
	if e.store == nil {
		return nil, nil
	}

	pending, err := e.store.List(ctx)
	if err != nil {
		return nil, errors.Join(ErrEngine, fmt.Errorf("list pending reveals: %w", err))
	}

	return pending, nil
}
