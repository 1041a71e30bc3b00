// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// DefaultName defines name of the root logger.
const DefaultName = "txengine"

// Config defines logger configuration.
type Config struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// New returns root logger writing to stderr.
func New(config Config) (hclog.Logger, error) {
	return NewWithOutput(config, os.Stderr)
}

// NewWithOutput returns root logger writing to output.
func NewWithOutput(config Config, output io.Writer) (hclog.Logger, error) {
	level := hclog.Info
	if config.Level != "" {
		level = hclog.LevelFromString(config.Level)
		if level == hclog.NoLevel {
			return nil, fmt.Errorf("unknown log level %q", config.Level)
		}
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       DefaultName,
		Level:      level,
		Output:     output,
		JSONFormat: config.JSON,
	}), nil
}
