// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"github.com/btcsuite/btcd/txscript"
)

// Tag is the field key of the envelope, odd tags may be ignored by indexers.
type Tag byte

// Envelope field tags.
const (
	// TagContentType carries MIME type of the body.
	TagContentType Tag = 1
	// TagPointer selects the sat of the reveal outputs receiving the inscription.
	TagPointer Tag = 2
	// TagParent marks inscription as a child, repeated per parent.
	TagParent Tag = 3
	// TagMetadata carries CBOR metadata split into 520 byte pushes.
	TagMetadata        Tag = 5
	TagMetaprotocol    Tag = 7
	TagContentEncoding Tag = 9
	// TagDelegate makes the inscription serve the content of another one.
	TagDelegate Tag = 11
	TagRune     Tag = 13
)

// push returns tag as a one byte data push.
func (t Tag) push() []byte {
	return []byte{txscript.OP_DATA_1, byte(t)}
}
