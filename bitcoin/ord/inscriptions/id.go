// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrInvalidID defines malformed inscription identifier.
var ErrInvalidID = errors.New("invalid inscription id")

// maxIDPushLen is the reveal txid followed by at most 4 bytes of the index.
const maxIDPushLen = chainhash.HashSize + 4

// ID identifies inscription as "<reveal txid>i<index>", where index is the position
// of the envelope among the envelopes of the reveal transaction.
type ID struct {
	TxID  chainhash.Hash
	Index uint32
}

// ParseID parses "<txid>i<index>" form.
func ParseID(value string) (ID, error) {
	txID, index, ok := strings.Cut(value, "i")
	if !ok || len(txID) != chainhash.MaxHashStringSize {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, value)
	}

	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return ID{}, errors.Join(ErrInvalidID, err)
	}

	n, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return ID{}, errors.Join(ErrInvalidID, err)
	}

	return ID{TxID: *hash, Index: uint32(n)}, nil
}

// IDFromPush decodes the envelope field value: txid bytes followed by the little-endian index
// with trailing zero bytes dropped.
func IDFromPush(data []byte) (ID, error) {
	if len(data) < chainhash.HashSize || len(data) > maxIDPushLen {
		return ID{}, fmt.Errorf("%w: %d bytes push", ErrInvalidID, len(data))
	}

	var id ID
	copy(id.TxID[:], data)

	var index [4]byte
	copy(index[:], data[chainhash.HashSize:])
	id.Index = binary.LittleEndian.Uint32(index[:])

	return id, nil
}

// Push encodes id as the envelope field value, reverse of IDFromPush.
func (id ID) Push() []byte {
	data := binary.LittleEndian.AppendUint32(append(make([]byte, 0, maxIDPushLen), id.TxID[:]...), id.Index)
	for len(data) > chainhash.HashSize && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}

	return data
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return id.TxID.String() + "i" + strconv.FormatUint(uint64(id.Index), 10)
}
