// Copyright (C) 2022 Creditor Corp. Group.
// See LICENSE for copying information.

package numbers_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/txengine/internal/numbers"
)

func TestNumbers(t *testing.T) {
	t.Run("IsUint128", func(t *testing.T) {
		require.True(t, numbers.IsUint128(big.NewInt(0)))
		require.True(t, numbers.IsUint128(numbers.MaxUInt128Value))
		require.False(t, numbers.IsUint128(big.NewInt(-1)))
		require.False(t, numbers.IsUint128(new(big.Int).Add(numbers.MaxUInt128Value, numbers.OneBigInt)))
	})

	t.Run("CeilDiv", func(t *testing.T) {
		tests := []struct {
			divided, divisor, expected int64
		}{
			{0, 4, 0},
			{1, 4, 1},
			{4, 4, 1},
			{33, 4, 9},
			{70, 4, 18},
		}
		for _, test := range tests {
			require.Equal(t, test.expected, numbers.CeilDiv(test.divided, test.divisor))
		}
	})

	t.Run("CeilMul", func(t *testing.T) {
		require.EqualValues(t, 2120, numbers.CeilMul(212, 10))
		require.EqualValues(t, 320, numbers.CeilMul(213, 1.5))
		require.EqualValues(t, 213, numbers.CeilMul(212, 1.001))
	})

	t.Run("AtLeast", func(t *testing.T) {
		require.EqualValues(t, 250, numbers.AtLeast[int64](100, 250))
		require.EqualValues(t, 300, numbers.AtLeast[int64](300, 250))
	})

	t.Run("Sum", func(t *testing.T) {
		require.EqualValues(t, 6, numbers.Sum([]int64{1, 2, 3}, func(v int64) int64 { return v }))
		require.EqualValues(t, 0, numbers.Sum([]int64(nil), func(v int64) int64 { return v }))
	})
}
