// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package utxoset

import (
	"context"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/addresses"
)

// AddressSource provides fresh utxo snapshots with asset metadata for an address.
type AddressSource interface {
	AddressUTXOs(ctx context.Context, address string) ([]bitcoin.UTXO, error)
}

// Selector selects utxos to fund transactions following account spend strategy.
type Selector struct {
	classifier *Classifier
	log        hclog.Logger
}

// NewSelector is a constructor for Selector.
func NewSelector(classifier *Classifier, log hclog.Logger) *Selector {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	return &Selector{classifier: classifier, log: log}
}

// Classifier returns underlying utxo classifier.
func (s *Selector) Classifier() *Classifier {
	return s.classifier
}

// Select returns the shortest prefix of spendable utxos, bucketed and ordered by strategy,
// which covers target amount. Utxos of address types absent in strategy are never selected.
// With allowPartial, everything eligible is returned with HasEnough unset instead of an error.
func (s *Selector) Select(classified *Classified, strategy bitcoin.SpendStrategy, target int64, allowPartial bool) (*bitcoin.GatheredUTXOs, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	gathered := new(bitcoin.GatheredUTXOs)
	if target <= 0 {
		gathered.HasEnough = true
		return gathered, nil
	}

	for _, u := range s.ordered(classified, strategy) {
		if gathered.TotalAmount() >= target {
			break
		}

		gathered.Append(u)
	}

	gathered.HasEnough = gathered.TotalAmount() >= target
	s.log.Debug("utxos selected", "count", gathered.Len(), "total", gathered.TotalAmount(),
		"target", target, "enough", gathered.HasEnough)

	if !gathered.HasEnough && !allowPartial {
		return nil, bitcoin.NewInsufficientError(bitcoin.InsufficientErrorTypeBitcoin, target, gathered.TotalAmount()).
			SetCauser(bitcoin.CauserSelection)
	}

	return gathered, nil
}

// ordered returns eligible utxos bucketed by address key and concatenated in strategy order.
func (s *Selector) ordered(classified *Classified, strategy bitcoin.SpendStrategy) []bitcoin.UTXO {
	buckets := make(map[bitcoin.AddressKey][]bitcoin.UTXO, len(strategy.AddressOrder))
	for _, u := range classified.Spendable {
		// spendable bucket may be assembled by the caller, eligibility is checked again.
		if !s.classifier.IsSpendable(u) {
			s.log.Warn("non spendable utxo skipped", "outpoint", u.OutPointString(), "amount", u.Amount)
			continue
		}

		addressType, err := addresses.Classify(u.Address)
		if err != nil {
			s.log.Debug("utxo with unknown address skipped", "outpoint", u.OutPointString(), "error", err)
			continue
		}

		key := addressType.Key()
		if !strategy.Has(key) {
			continue
		}

		buckets[key] = append(buckets[key], u)
	}

	ordered := make([]bitcoin.UTXO, 0, len(classified.Spendable))
	for _, key := range strategy.AddressOrder {
		bucket := buckets[key]
		// stable sort: equal amounts keep indexer order.
		sort.SliceStable(bucket, func(i, j int) bool {
			if strategy.SortGreatestToLeast {
				return bucket[i].Amount > bucket[j].Amount
			}

			return bucket[i].Amount < bucket[j].Amount
		})

		ordered = append(ordered, bucket...)
	}

	return ordered
}

// AcrossResult defines result of selection across account addresses.
type AcrossResult struct {
	Gathered *bitcoin.GatheredUTXOs
	// Errors holds *bitcoin.SelectionError for every address which could not be queried.
	Errors []error
}

// SelectAcrossAddresses tries account addresses one by one in strategy order, reducing
// the remaining target after each. An address which fails to load is logged, recorded
// and skipped. When the target is missed the swallowed errors are attached to the
// returned *bitcoin.InsufficientError.
func (s *Selector) SelectAcrossAddresses(ctx context.Context, account *bitcoin.Account, source AddressSource,
	target int64, allowPartial bool) (*AcrossResult, error) {
	strategy := account.SpendStrategy
	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	result := &AcrossResult{Gathered: new(bitcoin.GatheredUTXOs)}
	for _, key := range strategy.AddressOrder {
		if result.Gathered.TotalAmount() >= target {
			break
		}

		keyAddress, ok := account.ByKey(key)
		if !ok {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		part, err := s.selectFromAddress(ctx, source, keyAddress.Address, key, strategy.SortGreatestToLeast,
			target-result.Gathered.TotalAmount())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			s.log.Warn("address skipped during selection", "address", keyAddress.Address, "error", err)
			result.Errors = append(result.Errors, &bitcoin.SelectionError{Address: keyAddress.Address, Err: err})
			continue
		}

		result.Gathered.Append(part.UTXOs()...)
	}

	result.Gathered.HasEnough = result.Gathered.TotalAmount() >= target
	if !result.Gathered.HasEnough && !allowPartial {
		insufficient := bitcoin.NewInsufficientError(bitcoin.InsufficientErrorTypeBitcoin, target, result.Gathered.TotalAmount()).
			SetCauser(bitcoin.CauserSelection)
		insufficient.Causes = result.Errors

		return nil, insufficient
	}

	return result, nil
}

// selectFromAddress runs partial selection scoped to one address.
func (s *Selector) selectFromAddress(ctx context.Context, source AddressSource, address string, key bitcoin.AddressKey,
	greatestToLeast bool, target int64) (*bitcoin.GatheredUTXOs, error) {
	utxos, err := source.AddressUTXOs(ctx, address)
	if err != nil {
		return nil, err
	}

	strategy := bitcoin.SpendStrategy{
		AddressOrder:        []bitcoin.AddressKey{key},
		SortGreatestToLeast: greatestToLeast,
		ChangeAddress:       key,
	}

	return s.Select(s.classifier.Classify(utxos), strategy, target, true)
}
