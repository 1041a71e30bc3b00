// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/txengine/bitcoin/ord/runes"
)

// AddressType defines script type over which the address is built.
type AddressType int

const (
	// AddressTypeLegacy defines P2PKH address type.
	AddressTypeLegacy AddressType = iota + 1
	// AddressTypeNestedSegwit defines P2SH-P2WPKH address type.
	AddressTypeNestedSegwit
	// AddressTypeNativeSegwit defines P2WPKH address type.
	AddressTypeNativeSegwit
	// AddressTypeTaproot defines P2TR address type.
	AddressTypeTaproot
)

// String returns AddressType as string.
func (t AddressType) String() string {
	switch t {
	case AddressTypeLegacy:
		return "P2PKH"
	case AddressTypeNestedSegwit:
		return "P2SH-P2WPKH"
	case AddressTypeNativeSegwit:
		return "P2WPKH"
	case AddressTypeTaproot:
		return "P2TR"
	default:
		return fmt.Sprintf("AddressType(%d)", int(t))
	}
}

// IsWitness returns true if inputs of this type carry witness data.
func (t AddressType) IsWitness() bool {
	return t == AddressTypeNestedSegwit || t == AddressTypeNativeSegwit || t == AddressTypeTaproot
}

// Key returns AddressKey which is used by spend strategies for the AddressType.
func (t AddressType) Key() AddressKey {
	switch t {
	case AddressTypeLegacy:
		return AddressKeyLegacy
	case AddressTypeNestedSegwit:
		return AddressKeyNestedSegwit
	case AddressTypeNativeSegwit:
		return AddressKeyNativeSegwit
	case AddressTypeTaproot:
		return AddressKeyTaproot
	default:
		return ""
	}
}

// AddressKey defines name of the account address bucket.
type AddressKey string

const (
	// AddressKeyNativeSegwit defines native segwit account bucket.
	AddressKeyNativeSegwit AddressKey = "nativeSegwit"
	// AddressKeyNestedSegwit defines nested segwit account bucket.
	AddressKeyNestedSegwit AddressKey = "nestedSegwit"
	// AddressKeyTaproot defines taproot account bucket.
	AddressKeyTaproot AddressKey = "taproot"
	// AddressKeyLegacy defines legacy account bucket.
	AddressKeyLegacy AddressKey = "legacy"
)

// AddressType returns AddressType the key stands for.
func (k AddressKey) AddressType() (AddressType, bool) {
	switch k {
	case AddressKeyLegacy:
		return AddressTypeLegacy, true
	case AddressKeyNestedSegwit:
		return AddressTypeNestedSegwit, true
	case AddressKeyNativeSegwit:
		return AddressTypeNativeSegwit, true
	case AddressKeyTaproot:
		return AddressTypeTaproot, true
	}

	return 0, false
}

// UTXO describes unspent transaction output data.
type UTXO struct {
	TxHash        string
	Index         uint32 // output index in transaction outputs.
	Amount        int64  // in Satoshi.
	Script        []byte // ScriptPubKey.
	Address       string // output recipient address.
	Confirmations int64  // 0 for mempool outputs.
	Inscriptions  []string
	Runes         []RuneUTXO
	Alkanes       []AlkaneUTXO
	// AlkanesListed is true if the alkanes indexer reports the output, its balances may be empty.
	AlkanesListed bool
	Indexed       bool // true if the asset indexer has processed the output.

	// TapScript is set for outputs that are spent through the taproot script path.
	TapScript *TapScriptSpend
}

// TapScriptSpend describes data needed to spend taproot output through the script path.
type TapScriptSpend struct {
	LeafScript   []byte
	ControlBlock []byte
	InternalKey  []byte // x-only.
}

// RuneUTXO describes linked to UTXO runes balance.
type RuneUTXO struct {
	RuneID runes.RuneID
	Name   string   // spaced rune name, set when the indexer reports runes by name.
	Amount *big.Int // in rune units.
}

// AlkaneID defines alkane identifier.
type AlkaneID struct {
	Block uint64
	Tx    uint64
}

// String returns AlkaneID as string.
func (id AlkaneID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.Tx)
}

// AlkaneUTXO describes linked to UTXO alkane balance.
type AlkaneUTXO struct {
	ID     AlkaneID
	Amount *big.Int
}

// OutPoint returns UTXO reference as wire.OutPoint.
func (u *UTXO) OutPoint() (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(u.TxHash)
	if err != nil {
		return nil, err
	}

	return wire.NewOutPoint(hash, u.Index), nil
}

// OutPointString returns "txid:vout" representation.
func (u *UTXO) OutPointString() string {
	return fmt.Sprintf("%s:%d", u.TxHash, u.Index)
}

// IsConfirmed returns true if the output is mined.
func (u *UTXO) IsConfirmed() bool {
	return u.Confirmations > 0
}

// HasAssets returns true if any metaprotocol asset is linked to the output.
func (u *UTXO) HasAssets() bool {
	return len(u.Inscriptions) != 0 || len(u.Runes) != 0 || len(u.Alkanes) != 0 || u.AlkanesListed
}

// KeyAddress defines account address with the public key it was derived from.
type KeyAddress struct {
	Address string
	PubKey  string // hex, compressed for all types except taproot which may be x-only.
}

// Account defines multi-address-type wallet account.
type Account struct {
	Taproot       KeyAddress
	NativeSegwit  KeyAddress
	NestedSegwit  KeyAddress
	Legacy        KeyAddress
	SpendStrategy SpendStrategy
}

// ByKey returns account address for provided key.
func (a *Account) ByKey(key AddressKey) (KeyAddress, bool) {
	var ka KeyAddress
	switch key {
	case AddressKeyTaproot:
		ka = a.Taproot
	case AddressKeyNativeSegwit:
		ka = a.NativeSegwit
	case AddressKeyNestedSegwit:
		ka = a.NestedSegwit
	case AddressKeyLegacy:
		ka = a.Legacy
	default:
		return ka, false
	}

	return ka, ka.Address != ""
}

// SpendStrategy defines which account buckets are funding transactions, in which order, and where change goes.
type SpendStrategy struct {
	AddressOrder        []AddressKey
	SortGreatestToLeast bool
	ChangeAddress       AddressKey
}

// DefaultSpendStrategy returns strategy used by accounts created without explicit one.
func DefaultSpendStrategy() SpendStrategy {
	return SpendStrategy{
		AddressOrder: []AddressKey{
			AddressKeyNativeSegwit,
			AddressKeyNestedSegwit,
			AddressKeyTaproot,
			AddressKeyLegacy,
		},
		SortGreatestToLeast: true,
		ChangeAddress:       AddressKeyNativeSegwit,
	}
}

// Validate checks that address order keys are known and unique.
func (s SpendStrategy) Validate() error {
	seen := make(map[AddressKey]struct{}, len(s.AddressOrder))
	for _, key := range s.AddressOrder {
		if _, ok := key.AddressType(); !ok {
			return fmt.Errorf("unknown address key %q", key)
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicated address key %q", key)
		}
		seen[key] = struct{}{}
	}

	if _, ok := s.ChangeAddress.AddressType(); !ok {
		return fmt.Errorf("unknown change address key %q", s.ChangeAddress)
	}

	return nil
}

// Has returns true if the key participates in selection.
func (s SpendStrategy) Has(key AddressKey) bool {
	for _, k := range s.AddressOrder {
		if k == key {
			return true
		}
	}

	return false
}

// GatheredUTXOs defines ordered selection result. The order of utxos is the
// order of future transaction inputs and is never changed after append.
type GatheredUTXOs struct {
	utxos     []UTXO
	total     int64
	HasEnough bool
}

// Append adds utxo at the end of the set.
func (g *GatheredUTXOs) Append(utxos ...UTXO) {
	for _, u := range utxos {
		g.utxos = append(g.utxos, u)
		g.total += u.Amount
	}
}

// UTXOs returns copy of gathered utxos.
func (g *GatheredUTXOs) UTXOs() []UTXO {
	return append([]UTXO(nil), g.utxos...)
}

// Len returns number of gathered utxos.
func (g *GatheredUTXOs) Len() int {
	return len(g.utxos)
}

// TotalAmount returns sum of gathered utxos amounts in satoshi.
func (g *GatheredUTXOs) TotalAmount() int64 {
	return g.total
}

// OutputSpec defines transaction output to be created either by address or by raw script.
type OutputSpec struct {
	Address string
	Script  []byte
	Amount  int64
}

// FeeQuote defines estimated fee for the transaction draft.
type FeeQuote struct {
	FeeRate float64 // sat/vB.
	Fee     int64
	VSize   int64
}

// PushResult describes broadcast transaction.
type PushResult struct {
	TxID  string
	VSize int64
	Fee   int64
}
