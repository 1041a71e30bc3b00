// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package logger_test

import (
	"bytes"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/txengine/internal/logger"
)

func TestNewWithOutput(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := logger.NewWithOutput(logger.Config{Level: "debug", JSON: true}, &buf)
		require.NoError(t, err)

		log.Debug("selected utxos", "count", 2)

		var line map[string]any
		require.NoError(t, sonic.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
		require.Equal(t, "selected utxos", line["@message"])
		require.Equal(t, "debug", line["@level"])
		require.Equal(t, logger.DefaultName, line["@module"])
		require.EqualValues(t, 2, line["count"])
	})

	t.Run("level filter", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := logger.NewWithOutput(logger.Config{Level: "warn"}, &buf)
		require.NoError(t, err)

		log.Info("hidden")
		require.Zero(t, buf.Len())

		log.Warn("address skipped during selection", "address", "bcrt1q")
		require.Contains(t, buf.String(), "address skipped during selection")
	})

	t.Run("default level is info", func(t *testing.T) {
		log, err := logger.NewWithOutput(logger.Config{}, new(bytes.Buffer))
		require.NoError(t, err)
		require.True(t, log.IsInfo())
		require.False(t, log.IsDebug())
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := logger.NewWithOutput(logger.Config{Level: "verbose"}, new(bytes.Buffer))
		require.Error(t, err)
	})
}
