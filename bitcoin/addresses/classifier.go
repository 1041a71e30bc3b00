// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package addresses

import (
	"regexp"
	"strings"

	"github.com/BoostyLabs/txengine/bitcoin"
)

// family binds address type to the patterns of all supported networks.
type family struct {
	addressType bitcoin.AddressType
	patterns    []*regexp.Regexp
}

// families are checked in order: P2SH goes before P2WPKH so that base58
// script-hash addresses are never taken for bech32 ones.
var families = []family{
	{
		addressType: bitcoin.AddressTypeLegacy,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^1[a-km-zA-HJ-NP-Z1-9]{25,34}$`),
			regexp.MustCompile(`^[mn][a-km-zA-HJ-NP-Z1-9]{25,34}$`),
		},
	},
	{
		addressType: bitcoin.AddressTypeTaproot,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^bc1p[02-9ac-hj-np-z]{58}$`),
			regexp.MustCompile(`^tb1p[02-9ac-hj-np-z]{58}$`),
			regexp.MustCompile(`^bcrt1p[02-9ac-hj-np-z]{58}$`),
		},
	},
	{
		addressType: bitcoin.AddressTypeNestedSegwit,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^3[a-km-zA-HJ-NP-Z1-9]{25,34}$`),
			regexp.MustCompile(`^2[a-km-zA-HJ-NP-Z1-9]{25,34}$`),
		},
	},
	{
		addressType: bitcoin.AddressTypeNativeSegwit,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^bc1q[02-9ac-hj-np-z]{38}$`),
			regexp.MustCompile(`^tb1q[02-9ac-hj-np-z]{38}$`),
			regexp.MustCompile(`^bcrt1q[02-9ac-hj-np-z]{38}$`),
		},
	},
}

// Classify returns address type of the provided address string.
// Classification is derived from the string only, nothing is cached.
func Classify(address string) (bitcoin.AddressType, error) {
	// bech32 addresses are valid in upper case as a whole.
	upper := strings.ToUpper(address)
	if upper == address && (strings.HasPrefix(upper, "BC1") || strings.HasPrefix(upper, "TB1") || strings.HasPrefix(upper, "BCRT1")) {
		address = strings.ToLower(address)
	}

	for _, f := range families {
		for _, pattern := range f.patterns {
			if pattern.MatchString(address) {
				return f.addressType, nil
			}
		}
	}

	return 0, &bitcoin.InvalidAddressError{Address: address}
}
