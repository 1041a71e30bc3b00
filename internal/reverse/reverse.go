// Copyright (C) 2022 Creditor Corp. Group.
// See LICENSE for copying information.

package reverse

import (
	"encoding/hex"
)

// Bytes returns reversed copy of value, the argument is left untouched.
func Bytes(value []byte) []byte {
	reversed := make([]byte, len(value))
	for i, j := 0, len(value)-1; j >= 0; i, j = i+1, j-1 {
		reversed[i] = value[j]
	}

	return reversed
}

// Hex returns hex string with reversed byte order, used to switch between
// internal and display order of transaction hashes.
func Hex(value string) (string, error) {
	data, err := hex.DecodeString(value)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(Bytes(data)), nil
}
