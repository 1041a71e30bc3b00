// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"gopkg.in/yaml.v3"

	"github.com/BoostyLabs/txengine/bitcoin/commitreveal"
	"github.com/BoostyLabs/txengine/bitcoin/provider"
	"github.com/BoostyLabs/txengine/internal/logger"
)

// ErrConfig defines errors class for configuration.
var ErrConfig = errors.New("config")

// Supported networks.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkSignet  = "signet"
	NetworkRegtest = "regtest"
)

// Environment variables overriding credentials from the file.
const (
	EnvProjectID    = "TXENGINE_PROVIDER_PROJECT_ID"
	EnvBitcoindUser = "TXENGINE_BITCOIND_USER"
	EnvBitcoindPass = "TXENGINE_BITCOIND_PASS"
)

// Config defines engine configuration.
type Config struct {
	Network      string                  `yaml:"network"`
	Provider     provider.Config         `yaml:"provider"`
	Bitcoind     provider.BitcoindConfig `yaml:"bitcoind"`
	UTXOSet      UTXOSetConfig           `yaml:"utxoset"`
	Fees         FeesConfig              `yaml:"fees"`
	CommitReveal CommitRevealConfig      `yaml:"commit_reveal"`
	Log          logger.Config           `yaml:"log"`
}

// UTXOSetConfig defines utxo loading and classification parameters.
type UTXOSetConfig struct {
	// Concurrency limits simultaneous asset indexer requests.
	Concurrency int `yaml:"concurrency"`
	// DustMarkers are output amounts which mark asset carrying outputs.
	DustMarkers []int64 `yaml:"dust_markers"`
}

// FeesConfig defines fee policy in satoshi and sat/vB.
type FeesConfig struct {
	MinRelayFee        int64   `yaml:"min_relay_fee"`
	PlaceholderFee     int64   `yaml:"placeholder_fee"`
	DustThreshold      int64   `yaml:"dust_threshold"`
	FallbackFeeRate    float64 `yaml:"fallback_fee_rate"`
	ConfirmationTarget string  `yaml:"confirmation_target"`
}

// CommitRevealConfig defines commit/reveal protocol parameters.
type CommitRevealConfig struct {
	commitreveal.Config `yaml:",inline"`
	// Postage is the amount of the output receiving inscription or etched runes.
	Postage   int64  `yaml:"postage"`
	StorePath string `yaml:"store_path"`
}

// Default returns configuration with protocol defaults.
func Default() *Config {
	return &Config{
		Network: NetworkMainnet,
		Provider: provider.Config{
			Version:         provider.DefaultVersion,
			Timeout:         provider.DefaultTimeout,
			PrevTxCacheSize: provider.DefaultPrevTxCacheSize,
		},
		UTXOSet: UTXOSetConfig{
			Concurrency: 50,
			DustMarkers: []int64{546, 330},
		},
		Fees: FeesConfig{
			MinRelayFee:        250,
			PlaceholderFee:     250,
			DustThreshold:      546,
			FallbackFeeRate:    10,
			ConfirmationTarget: "1",
		},
		CommitReveal: CommitRevealConfig{
			Config: commitreveal.Config{
				PollInterval: commitreveal.DefaultPollInterval,
				Timeout:      commitreveal.DefaultTimeout,
			},
			Postage:   546,
			StorePath: "data/pending.db",
		},
		Log: logger.Config{Level: "info"},
	}
}

// Load reads configuration from the yaml file over defaults, applies environment
// overrides and validates the result. Empty path means defaults only.
func Load(path string) (_ *Config, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrConfig, err)
		}
	}()

	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err = yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if projectID := os.Getenv(EnvProjectID); projectID != "" {
		config.Provider.ProjectID = projectID
	}
	if user := os.Getenv(EnvBitcoindUser); user != "" {
		config.Bitcoind.User = user
	}
	if pass := os.Getenv(EnvBitcoindPass); pass != "" {
		config.Bitcoind.Pass = pass
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.ChainParams(); err != nil {
		errs = append(errs, err)
	}
	if c.Provider.URL == "" {
		errs = append(errs, errors.New("provider url is required"))
	}
	if c.Bitcoind.Host == "" {
		errs = append(errs, errors.New("bitcoind host is required"))
	}
	if len(c.UTXOSet.DustMarkers) == 0 {
		errs = append(errs, errors.New("at least one dust marker is required"))
	}
	if c.Fees.MinRelayFee <= 0 || c.Fees.PlaceholderFee <= 0 || c.Fees.DustThreshold <= 0 {
		errs = append(errs, errors.New("min relay fee, placeholder fee and dust threshold must be positive"))
	}
	if c.Fees.FallbackFeeRate <= 0 {
		errs = append(errs, errors.New("fallback fee rate must be positive"))
	}
	if c.CommitReveal.Postage < c.Fees.DustThreshold {
		errs = append(errs, fmt.Errorf("postage %d is below dust threshold %d", c.CommitReveal.Postage, c.Fees.DustThreshold))
	}
	if c.CommitReveal.PollInterval <= 0 || c.CommitReveal.Timeout < c.CommitReveal.PollInterval {
		errs = append(errs, errors.New("commit reveal timeout must be at least one poll interval"))
	}
	if c.CommitReveal.StorePath == "" {
		errs = append(errs, errors.New("commit reveal store path is required"))
	}

	return errors.Join(errs...)
}

// ChainParams returns network parameters of the configured network.
func (c *Config) ChainParams() (*chaincfg.Params, error) {
	switch c.Network {
	case NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case NetworkTestnet:
		return &chaincfg.TestNet3Params, nil
	case NetworkSignet:
		return &chaincfg.SigNetParams, nil
	case NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", c.Network)
	}
}
