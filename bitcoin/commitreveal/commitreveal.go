// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package commitreveal implements two transactions protocol: the commit transaction pays to taproot
// address committing to a locking script, the reveal transaction spends it through the script path.
package commitreveal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/hashicorp/go-hclog"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/txbuilder"
	"github.com/BoostyLabs/txengine/bitcoin/txsize"
	"github.com/BoostyLabs/txengine/bitcoin/utils"
	"github.com/BoostyLabs/txengine/internal/numbers"
)

// ErrCommitReveal defines errors class for commit/reveal protocol.
var ErrCommitReveal = errors.New("commit reveal")

const (
	// DefaultPollInterval defines interval between mempool presence checks of the commit transaction.
	DefaultPollInterval = 5 * time.Second
	// DefaultTimeout defines maximum wait for the commit transaction to appear in mempool.
	DefaultTimeout = 60 * time.Second
)

// commitOutputIndex defines index of the commit transaction output the reveal spends.
const commitOutputIndex = 0

// State defines protocol state.
type State string

const (
	// StateCommitting defines that commit transaction is being built and broadcast.
	StateCommitting State = "committing"
	// StateWaitingForAcceptance defines that commit transaction is broadcast and polled in mempool.
	StateWaitingForAcceptance State = "waiting_for_acceptance"
	// StateRevealing defines that reveal transaction is being built and broadcast.
	StateRevealing State = "revealing"
	// StateDone defines that both transactions are broadcast.
	StateDone State = "done"
	// StateFailed defines terminal failure.
	StateFailed State = "failed"
)

// Signer signs all inputs of the packet.
type Signer interface {
	SignAllInputs(ctx context.Context, packet *psbt.Packet, finalize bool) error
}

// Broadcaster pushes finalized packet transaction to the network.
type Broadcaster interface {
	Push(ctx context.Context, packet *psbt.Packet) (*bitcoin.PushResult, error)
}

// MempoolWatcher reports whether transaction is known to the mempool.
type MempoolWatcher interface {
	InMempool(ctx context.Context, txID string) (bool, error)
}

// Store keeps pending reveals so they could be resumed after a timeout.
type Store interface {
	Save(ctx context.Context, pending Pending) error
	Delete(ctx context.Context, commitTxID string) error
}

// Config defines configurable parameters of the protocol.
type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Request describes payload to commit and reveal.
type Request struct {
	// LockingScript is the only leaf of the commit address script tree.
	LockingScript []byte
	// InternalKey commits to the script tree, its key signs the reveal.
	InternalKey *btcec.PublicKey
	// Funding utxos are spent by the commit transaction in the given order.
	Funding []bitcoin.UTXO
	// RevealOutputs are created by the reveal transaction.
	RevealOutputs []bitcoin.OutputSpec
	// ChangeAddress receives commit change.
	ChangeAddress string
	// Receiver receives reveal change if any.
	Receiver string
	FeeRate  float64
}

// Result describes protocol run.
type Result struct {
	State      State
	CommitTxID string
	RevealTxID string
	CommitFee  int64
	RevealFee  int64
}

// Protocol runs commit/reveal transactions pairs.
type Protocol struct {
	config      Config
	params      *chaincfg.Params
	builder     *txbuilder.Builder
	signer      Signer
	broadcaster Broadcaster
	watcher     MempoolWatcher
	store       Store
	log         hclog.Logger
}

// NewProtocol is a constructor for Protocol. Store is optional.
func NewProtocol(config Config, params *chaincfg.Params, builder *txbuilder.Builder, signer Signer, broadcaster Broadcaster,
	watcher MempoolWatcher, store Store, log hclog.Logger) *Protocol {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	return &Protocol{
		config:      config,
		params:      params,
		builder:     builder,
		signer:      signer,
		broadcaster: broadcaster,
		watcher:     watcher,
		store:       store,
		log:         log,
	}
}

// Prepare returns pending reveal of the request with commit address and commit value
// covering reveal outputs and reveal fee. Commit transaction id is empty until broadcast.
func (p *Protocol) Prepare(req Request) (*Pending, error) {
	if len(req.LockingScript) == 0 {
		return nil, errors.New("empty locking script")
	}
	if req.InternalKey == nil {
		return nil, errors.New("no internal key")
	}
	if len(req.RevealOutputs) == 0 {
		return nil, errors.New("no reveal outputs")
	}

	commitAddress, err := utils.NewTaprootAddressFromScripts(p.params, req.InternalKey, req.LockingScript)
	if err != nil {
		return nil, err
	}

	controlBlock, err := utils.NewControlBlock(req.InternalKey, req.LockingScript)
	if err != nil {
		return nil, err
	}

	revealInput := txsize.Input{
		Type: bitcoin.AddressTypeTaproot,
		ScriptPath: &txsize.ScriptPath{
			ControlBlockLen: len(controlBlock),
			ScriptLen:       len(req.LockingScript),
		},
	}

	revealFee, err := p.builder.EstimateFee([]txsize.Input{revealInput}, req.RevealOutputs, req.FeeRate)
	if err != nil {
		return nil, err
	}

	return &Pending{
		CommitAddress: commitAddress.EncodeAddress(),
		CommitValue:   revealFee + numbers.Sum(req.RevealOutputs, outputAmount),
		LockingScript: req.LockingScript,
		ControlBlock:  controlBlock,
		InternalKey:   utils.XOnlyPubKey(req.InternalKey),
		RevealOutputs: req.RevealOutputs,
		RevealFee:     revealFee,
		Receiver:      req.Receiver,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Run commits, waits for the commit acceptance and reveals.
// On TimeoutError the pending reveal is kept in the store and can be continued with Resume.
func (p *Protocol) Run(ctx context.Context, req Request) (_ *Result, err error) {
	result := &Result{State: StateCommitting}
	defer func() {
		if err != nil {
			err = errors.Join(ErrCommitReveal, err)
			if !errors.Is(err, bitcoin.ErrTimeout) {
				p.transition(result, StateFailed)
			}
		}
	}()

	pending, err := p.Prepare(req)
	if err != nil {
		return result, err
	}

	commit, err := p.builder.Build(ctx, txbuilder.BuildParams{
		UTXOs:         req.Funding,
		Outputs:       []bitcoin.OutputSpec{{Address: pending.CommitAddress, Amount: pending.CommitValue}},
		ChangeAddress: req.ChangeAddress,
		FeeRate:       req.FeeRate,
	})
	if err != nil {
		return result, fmt.Errorf("build commit: %w", err)
	}

	pushed, err := p.signAndPush(ctx, commit.Packet)
	if err != nil {
		return result, fmt.Errorf("push commit: %w", err)
	}

	pending.CommitTxID = pushed.TxID
	result.CommitTxID = pushed.TxID
	result.CommitFee = pushed.Fee

	if p.store != nil {
		if err = p.store.Save(ctx, *pending); err != nil {
			p.log.Error("could not save pending reveal", "commit", pending.CommitTxID, "error", err)
		}
	}

	return p.continueReveal(ctx, pending, result)
}

// Resume continues stored pending reveal from the mempool wait.
func (p *Protocol) Resume(ctx context.Context, pending Pending) (_ *Result, err error) {
	result := &Result{State: StateWaitingForAcceptance, CommitTxID: pending.CommitTxID}
	defer func() {
		if err != nil {
			err = errors.Join(ErrCommitReveal, err)
			if !errors.Is(err, bitcoin.ErrTimeout) {
				p.transition(result, StateFailed)
			}
		}
	}()

	if pending.CommitTxID == "" {
		return result, errors.New("commit transaction is not broadcast")
	}

	return p.continueReveal(ctx, &pending, result)
}

// continueReveal waits for the commit in mempool and reveals it.
func (p *Protocol) continueReveal(ctx context.Context, pending *Pending, result *Result) (*Result, error) {
	p.transition(result, StateWaitingForAcceptance)
	if err := p.WaitForAcceptance(ctx, pending.CommitTxID); err != nil {
		return result, err
	}

	p.transition(result, StateRevealing)

	reveal, err := p.builder.Build(ctx, txbuilder.BuildParams{
		UTXOs:         []bitcoin.UTXO{pending.CommitUTXO()},
		Outputs:       pending.RevealOutputs,
		ChangeAddress: pending.Receiver,
		FixedFee:      pending.RevealFee,
	})
	if err != nil {
		return result, fmt.Errorf("build reveal: %w", err)
	}

	pushed, err := p.signAndPush(ctx, reveal.Packet)
	if err != nil {
		return result, fmt.Errorf("push reveal: %w", err)
	}

	result.RevealTxID = pushed.TxID
	result.RevealFee = pushed.Fee

	if p.store != nil {
		if err = p.store.Delete(ctx, pending.CommitTxID); err != nil {
			p.log.Error("could not delete pending reveal", "commit", pending.CommitTxID, "error", err)
		}
	}

	p.transition(result, StateDone)

	return result, nil
}

// WaitForAcceptance polls the mempool for the transaction until it is found or the timeout is exceeded.
// Watcher errors are logged and polling continues.
func (p *Protocol) WaitForAcceptance(ctx context.Context, txID string) error {
	timeout := time.NewTimer(p.config.Timeout)
	defer timeout.Stop()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		found, err := p.watcher.InMempool(ctx, txID)
		switch {
		case err != nil:
			p.log.Warn("mempool check failed", "tx", txID, "error", err)
		case found:
			return nil
		default:
			p.log.Trace("transaction is not in mempool yet", "tx", txID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return &bitcoin.TimeoutError{TxID: txID, Waited: p.config.Timeout}
		case <-ticker.C:
		}
	}
}

// signAndPush signs, finalizes and broadcasts the packet.
func (p *Protocol) signAndPush(ctx context.Context, packet *psbt.Packet) (*bitcoin.PushResult, error) {
	if err := p.signer.SignAllInputs(ctx, packet, true); err != nil {
		return nil, err
	}

	return p.broadcaster.Push(ctx, packet)
}

// transition moves result to the state.
func (p *Protocol) transition(result *Result, state State) {
	p.log.Info("commit reveal state", "from", result.State, "to", state, "commit", result.CommitTxID)
	result.State = state
}

// Pending describes commit transaction which output is not revealed yet.
type Pending struct {
	CommitTxID    string               `json:"commitTxId"`
	CommitAddress string               `json:"commitAddress"`
	CommitValue   int64                `json:"commitValue"`
	LockingScript []byte               `json:"lockingScript"`
	ControlBlock  []byte               `json:"controlBlock"`
	InternalKey   []byte               `json:"internalKey"` // x-only.
	RevealOutputs []bitcoin.OutputSpec `json:"revealOutputs"`
	RevealFee     int64                `json:"revealFee"`
	Receiver      string               `json:"receiver"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// CommitUTXO returns commit output spent by the reveal through the script path.
func (pending *Pending) CommitUTXO() bitcoin.UTXO {
	return bitcoin.UTXO{
		TxHash:  pending.CommitTxID,
		Index:   commitOutputIndex,
		Amount:  pending.CommitValue,
		Address: pending.CommitAddress,
		TapScript: &bitcoin.TapScriptSpend{
			LeafScript:   pending.LockingScript,
			ControlBlock: pending.ControlBlock,
			InternalKey:  pending.InternalKey,
		},
	}
}

// outputAmount returns amount of the output.
func outputAmount(output bitcoin.OutputSpec) int64 {
	return output.Amount
}
