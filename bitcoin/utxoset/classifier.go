// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package utxoset

import (
	"github.com/BoostyLabs/txengine/bitcoin"
)

const (
	// InscriptionDustMarker defines minimal output value used to carry inscriptions and runes.
	InscriptionDustMarker int64 = 546
	// AlkaneDustMarker defines minimal output value used to carry alkanes.
	AlkaneDustMarker int64 = 330
)

// Classified defines utxos partitioned into disjoint categories.
type Classified struct {
	Spendable    []bitcoin.UTXO
	AssetBearing []bitcoin.UTXO
	Pending      []bitcoin.UTXO
	Dust         []bitcoin.UTXO
	Unindexed    []bitcoin.UTXO // confirmed but not yet processed by asset indexer.
}

// SpendableAmount returns sum of spendable utxos amounts.
func (c *Classified) SpendableAmount() int64 {
	var total int64
	for _, u := range c.Spendable {
		total += u.Amount
	}

	return total
}

// PendingAmount returns sum of pending utxos amounts.
func (c *Classified) PendingAmount() int64 {
	var total int64
	for _, u := range c.Pending {
		total += u.Amount
	}

	return total
}

// Classifier partitions utxos by spendability.
type Classifier struct {
	dustMarkers []int64
}

// NewClassifier is a constructor for Classifier. Without markers provided
// the inscription and alkane dust markers are used.
func NewClassifier(dustMarkers ...int64) *Classifier {
	if len(dustMarkers) == 0 {
		dustMarkers = []int64{InscriptionDustMarker, AlkaneDustMarker}
	}

	return &Classifier{dustMarkers: dustMarkers}
}

// Classify partitions utxos. Pending outputs are separated first regardless of other attributes.
func (c *Classifier) Classify(utxos []bitcoin.UTXO) *Classified {
	classified := new(Classified)
	for _, u := range utxos {
		switch {
		case !u.IsConfirmed():
			classified.Pending = append(classified.Pending, u)
		case !u.Indexed:
			classified.Unindexed = append(classified.Unindexed, u)
		case u.HasAssets():
			classified.AssetBearing = append(classified.AssetBearing, u)
		case c.isDustMarker(u.Amount):
			classified.Dust = append(classified.Dust, u)
		default:
			classified.Spendable = append(classified.Spendable, u)
		}
	}

	return classified
}

// IsSpendable returns true if utxo may be spent as plain value without burning any asset.
func (c *Classifier) IsSpendable(u bitcoin.UTXO) bool {
	return u.IsConfirmed() && u.Indexed && !u.HasAssets() && !c.isDustMarker(u.Amount)
}

func (c *Classifier) isDustMarker(amount int64) bool {
	for _, marker := range c.dustMarkers {
		if amount == marker {
			return true
		}
	}

	return false
}
