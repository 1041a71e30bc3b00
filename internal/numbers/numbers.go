// Copyright (C) 2022 Creditor Corp. Group.
// See LICENSE for copying information.

package numbers

import (
	"math"
	"math/big"
)

// OneBigInt defies 1 as *big.Int type.
var OneBigInt = big.NewInt(1)

// MaxUInt128Value defines maximum value of uint128 type.
var MaxUInt128Value = new(big.Int).Sub(new(big.Int).Lsh(OneBigInt, 128), OneBigInt)

// Integer defines signed integer types.
type Integer interface {
	~int | ~int32 | ~int64
}

// IsUint128 returns true if the number fits into uint128.
func IsUint128(num *big.Int) bool {
	return num.Sign() >= 0 && num.Cmp(MaxUInt128Value) <= 0
}

// CeilDiv returns division result with ceil function applied, divisor must be positive.
func CeilDiv[T Integer](divided, divisor T) T {
	quotient := divided / divisor
	if divided%divisor != 0 && divided > 0 {
		quotient++
	}

	return quotient
}

// CeilMul returns ceil(a * rate) as int64, rate is a fractional multiplier.
func CeilMul(a int64, rate float64) int64 {
	return int64(math.Ceil(float64(a) * rate))
}

// AtLeast returns value clamped from below by floor.
func AtLeast[T Integer](value, floor T) T {
	if value < floor {
		return floor
	}

	return value
}

// Sum returns sum of values selected from items.
func Sum[E any, T Integer](items []E, value func(E) T) T {
	var total T
	for _, item := range items {
		total += value(item)
	}

	return total
}
