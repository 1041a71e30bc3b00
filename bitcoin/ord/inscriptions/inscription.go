// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"encoding/binary"
	"errors"
	"math/big"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/txengine/bitcoin/ord/runes"
	"github.com/BoostyLabs/txengine/bitcoin/utils"
	"github.com/BoostyLabs/txengine/internal/reverse"
)

const (
	// ProtocolOrd defines ord tag to disambiguate inscriptions from other uses of envelopes.
	ProtocolOrd = "ord"
	// ProtocolAlkanes defines protocol tag of alkanes contract envelopes.
	ProtocolAlkanes = "BIN"
)

// maxBodyDataPushLen defines maximum size of the data push for bitcoin scripts.
const maxBodyDataPushLen = txscript.MaxScriptElementSize

// ErrEmptyInscription defines envelope without any field and body.
var ErrEmptyInscription = errors.New("inscription is empty")

// Inscription describes inscription type of the inscription protocol,
// which inscribe sats with arbitrary content, creating bitcoin-native digital artifacts.
type Inscription struct {
	// Protocol is the envelope protocol tag, ProtocolOrd is used when empty.
	Protocol        string
	Body            []byte
	ContentEncoding string
	ContentType     string
	Delegate        *ID
	Metadata        []byte
	Metaprotocol    []byte
	Parents         []ID
	Pointer         *big.Int
	Rune            *runes.Rune
}

// IntoScript returns Inscription envelope as a script:
//
//	OP_FALSE OP_IF <protocol> [<tag> <value>]... [OP_0 <body chunk>...] OP_ENDIF
func (i *Inscription) IntoScript() ([]byte, error) {
	protocol := i.Protocol
	if protocol == "" {
		protocol = ProtocolOrd
	}

	// inscription protocol start.
	script := []byte{txscript.OP_FALSE, txscript.OP_IF}
	script = appendPush(script, []byte(protocol))

	fields := 0
	field := func(tag Tag, value []byte) {
		script = append(script, tag.push()...)
		script = appendPush(script, value)
		fields++
	}

	if len(i.ContentType) != 0 {
		field(TagContentType, []byte(i.ContentType))
	}
	if i.Pointer != nil {
		field(TagPointer, reverse.Bytes(i.Pointer.Bytes()))
	}
	for _, parent := range i.Parents {
		field(TagParent, parent.Push())
	}
	for chunk := range slices.Chunk(i.Metadata, maxBodyDataPushLen) {
		field(TagMetadata, chunk)
	}
	if len(i.Metaprotocol) != 0 {
		field(TagMetaprotocol, i.Metaprotocol)
	}
	if len(i.ContentEncoding) != 0 {
		field(TagContentEncoding, []byte(i.ContentEncoding))
	}
	if i.Delegate != nil {
		field(TagDelegate, i.Delegate.Push())
	}
	if i.Rune != nil {
		field(TagRune, i.Rune.Commitment())
	}

	if len(i.Body) == 0 && fields == 0 {
		return nil, ErrEmptyInscription
	}

	if len(i.Body) != 0 {
		script = append(script, txscript.OP_0)
		for chunk := range slices.Chunk(i.Body, maxBodyDataPushLen) {
			script = appendPush(script, chunk)
		}
	}

	// inscription protocol end.
	return append(script, txscript.OP_ENDIF), nil
}

// IntoScriptForWitness returns Inscription as a tapscript leaf with x-only pubKey check at the beginning.
func (i *Inscription) IntoScriptForWitness(xOnlyPubKey []byte) ([]byte, error) {
	if len(xOnlyPubKey) != schnorr.PubKeyBytesLen {
		return nil, errors.New("invalid x-only public key length")
	}

	envelope, err := i.IntoScript()
	if err != nil {
		return nil, err
	}

	script := make([]byte, 0, len(xOnlyPubKey)+2+len(envelope))
	script = appendPush(script, xOnlyPubKey)
	script = append(script, txscript.OP_CHECKSIG)

	return append(script, envelope...), nil
}

// IntoAddress returns commit address of the inscription locked by the internal key.
func (i *Inscription) IntoAddress(internalKey *btcec.PublicKey, chainParams *chaincfg.Params) (*btcutil.AddressTaproot, error) {
	leafScript, err := i.IntoScriptForWitness(schnorr.SerializePubKey(internalKey))
	if err != nil {
		return nil, err
	}

	return utils.NewTaprootAddressFromScripts(chainParams, internalKey, leafScript)
}

// appendPush appends data push to the script. Unlike txscript.ScriptBuilder it never
// replaces single byte pushes with small integer opcodes, envelope parsers expect raw pushes.
func appendPush(script []byte, data []byte) []byte {
	switch length := len(data); {
	case length <= txscript.OP_DATA_75:
		script = append(script, byte(length))
	case length <= 0xff:
		script = append(script, txscript.OP_PUSHDATA1, byte(length))
	default:
		script = append(script, txscript.OP_PUSHDATA2)
		script = binary.LittleEndian.AppendUint16(script, uint16(length))
	}

	return append(script, data...)
}
