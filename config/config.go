// Package config loads node configuration from a JSON file, with secrets
// and deployment overrides taken from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadEnv.
const (
	EnvPassword = "MARKET_PASSWORD"
	EnvRPCToken = "MARKET_RPC_TOKEN"
	EnvDataDir  = "MARKET_DATA_DIR"
	EnvDebug    = "MARKET_DEBUG"
)

// MarketGenesis is the construction input for the marketplace. Amounts are
// base units.
type MarketGenesis struct {
	RoyaltyRate      string   `json:"royalty_rate"`
	Beneficiary      string   `json:"beneficiary"`
	RelistFee        uint64   `json:"relist_fee"`
	SetupFeePerAsset uint64   `json:"setup_fee_per_asset"`
	Prices           []uint64 `json:"prices"`
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"` // pubkey hex → initial balance
	Market  MarketGenesis     `json:"market"`
}

// Config holds all node configuration.
type Config struct {
	NodeID          string        `json:"node_id"`
	DataDir         string        `json:"data_dir"`
	RPCPort         int           `json:"rpc_port"`
	MaxBlockTxs     int           `json:"max_block_txs"` // max transactions per block; 0 → 500
	BlockIntervalMS int           `json:"block_interval_ms"`
	LogFile         string        `json:"log_file"`
	Debug           bool          `json:"debug"`
	TLS             *TLSConfig    `json:"tls,omitempty"`
	Genesis         GenesisConfig `json:"genesis"`

	// RPCAuthToken guards every RPC request. It comes from the environment only.
	RPCAuthToken string `json:"-"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:          "market0",
		DataDir:         "./data",
		RPCPort:         8545,
		MaxBlockTxs:     500,
		BlockIntervalMS: 1000,
		LogFile:         "marketd.log",
		Genesis: GenesisConfig{
			ChainID: "tolmarket-dev",
			Alloc:   map[string]uint64{},
			Market:  MarketGenesis{RoyaltyRate: "0.01"},
		},
	}
}

// BlockInterval returns the block production period.
func (c *Config) BlockInterval() time.Duration {
	if c.BlockIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.BlockIntervalMS) * time.Millisecond
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadEnv loads envFile into the process environment if it exists and
// applies the MARKET_* overrides to cfg. Variables already set in the
// environment take precedence over the file.
func LoadEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if v, ok := os.LookupEnv(EnvDataDir); ok && v != "" {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv(EnvDebug); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	cfg.RPCAuthToken = os.Getenv(EnvRPCToken)
	return nil
}

// Password returns the keystore password from the environment.
func Password() string {
	return os.Getenv(EnvPassword)
}
