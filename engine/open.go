// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package engine

import (
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/BoostyLabs/txengine/bitcoin/commitreveal"
	"github.com/BoostyLabs/txengine/bitcoin/provider"
	"github.com/BoostyLabs/txengine/bitcoin/signer"
	"github.com/BoostyLabs/txengine/bitcoin/txbuilder"
	"github.com/BoostyLabs/txengine/bitcoin/utxoset"
	"github.com/BoostyLabs/txengine/config"
	"github.com/BoostyLabs/txengine/internal/store"
)

// Open wires engine of the key ring account over the configured sandshrew endpoint, bitcoind node
// and pending reveals database. Returned close func releases the node connection and the database.
func Open(cfg *config.Config, keys signer.KeyRing, log hclog.Logger) (_ *Engine, closeFn func() error, err error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	params, err := cfg.ChainParams()
	if err != nil {
		return nil, nil, errors.Join(ErrEngine, err)
	}

	keySigner := signer.NewSigner(params, keys)
	account, err := keySigner.Account()
	if err != nil {
		return nil, nil, errors.Join(ErrEngine, err)
	}

	sandshrew, err := provider.NewSandshrew(cfg.Provider, params, log.Named("sandshrew"))
	if err != nil {
		return nil, nil, errors.Join(ErrEngine, err)
	}

	node, err := provider.NewBitcoind(cfg.Bitcoind, log.Named("bitcoind"))
	if err != nil {
		return nil, nil, errors.Join(ErrEngine, err)
	}

	pending, err := store.OpenBoltStore(cfg.CommitReveal.StorePath)
	if err != nil {
		node.Close()
		return nil, nil, errors.Join(ErrEngine, err)
	}

	closeFn = func() error {
		node.Close()
		return pending.Close()
	}

	builder := txbuilder.NewBuilder(params, account, sandshrew,
		txbuilder.WithMinRelayFee(cfg.Fees.MinRelayFee),
		txbuilder.WithPlaceholderFee(cfg.Fees.PlaceholderFee),
		txbuilder.WithDustThreshold(cfg.Fees.DustThreshold),
		txbuilder.WithLogger(log.Named("builder")),
	)

	loader := utxoset.NewLoader(sandshrew, sandshrew, cfg.UTXOSet.Concurrency, log.Named("loader"))
	selector := utxoset.NewSelector(utxoset.NewClassifier(cfg.UTXOSet.DustMarkers...), log.Named("selector"))
	protocol := commitreveal.NewProtocol(cfg.CommitReveal.Config, params, builder, keySigner, node, node, pending,
		log.Named("commitreveal"))

	engine, err := New(Config{
		FallbackFeeRate:    cfg.Fees.FallbackFeeRate,
		ConfirmationTarget: cfg.Fees.ConfirmationTarget,
		Postage:            cfg.CommitReveal.Postage,
	}, Dependencies{
		Account:     account,
		Builder:     builder,
		Source:      loader,
		Selector:    selector,
		Fees:        sandshrew,
		Signer:      keySigner,
		Broadcaster: node,
		Protocol:    protocol,
		Store:       pending,
	}, log)
	if err != nil {
		return nil, nil, errors.Join(err, closeFn())
	}

	return engine, closeFn, nil
}
