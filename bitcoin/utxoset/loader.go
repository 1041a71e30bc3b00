// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package utxoset

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/BoostyLabs/txengine/bitcoin"
)

// ErrLoader defines errors class for utxo metadata loading.
var ErrLoader = errors.New("load utxos")

// defaultConcurrency defines maximum simultaneous asset indexer requests.
const defaultConcurrency = 50

// OutputAssets defines assets linked to the output by the indexer.
type OutputAssets struct {
	Inscriptions []string
	Runes        []bitcoin.RuneUTXO
	Indexed      bool
}

// UTXOSource provides raw unspent outputs of an address.
type UTXOSource interface {
	ListUTXOs(ctx context.Context, address string) ([]bitcoin.UTXO, error)
}

// AssetIndexer provides asset metadata of outputs.
type AssetIndexer interface {
	// OutputAssets returns inscriptions and rune balances of the "txid:vout" output.
	OutputAssets(ctx context.Context, outpoint string) (*OutputAssets, error)
	// AlkaneBalances returns alkane balances of the address keyed by "txid:vout".
	AlkaneBalances(ctx context.Context, address string) (map[string][]bitcoin.AlkaneUTXO, error)
}

// Loader joins raw utxos with asset metadata. Nothing is cached between calls.
type Loader struct {
	source      UTXOSource
	indexer     AssetIndexer
	concurrency int
	log         hclog.Logger
}

// NewLoader is a constructor for Loader.
func NewLoader(source UTXOSource, indexer AssetIndexer, concurrency int, log hclog.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	return &Loader{source: source, indexer: indexer, concurrency: concurrency, log: log}
}

// AddressUTXOs returns utxos of the address with asset metadata filled.
func (l *Loader) AddressUTXOs(ctx context.Context, address string) (_ []bitcoin.UTXO, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrLoader, err)
		}
	}()

	utxos, err := l.source.ListUTXOs(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(utxos) == 0 {
		return utxos, nil
	}

	alkanes, err := l.indexer.AlkaneBalances(ctx, address)
	if err != nil {
		return nil, err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(l.concurrency)
	for i := range utxos {
		utxo := &utxos[i]
		utxo.Alkanes, utxo.AlkanesListed = alkanes[utxo.OutPointString()]
		if !utxo.IsConfirmed() {
			continue
		}

		group.Go(func() error {
			assets, err := l.indexer.OutputAssets(groupCtx, utxo.OutPointString())
			if err != nil {
				return err
			}

			utxo.Inscriptions = assets.Inscriptions
			utxo.Runes = assets.Runes
			utxo.Indexed = assets.Indexed

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return nil, err
	}

	l.log.Debug("utxos loaded", "address", address, "count", len(utxos))

	return utxos, nil
}

// Classified returns freshly loaded and classified utxos of the address.
func (l *Loader) Classified(ctx context.Context, address string, classifier *Classifier) (*Classified, error) {
	utxos, err := l.AddressUTXOs(ctx, address)
	if err != nil {
		return nil, err
	}

	return classifier.Classify(utxos), nil
}
