package config

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultEntryPointAddress is the canonical ERC-4337 v0.7 EntryPoint.
const DefaultEntryPointAddress = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"

type Config struct {
	// RPCHost/RPCPort is the JSON-RPC listen address of the validator API.
	RPCHost string
	RPCPort int
	// MetricsPort serves the prometheus handler; 0 disables it.
	MetricsPort int
	// DatabaseDir is the pebble directory for the persistent reputation
	// store; empty selects the in-memory store.
	DatabaseDir string
	// EntryPointAddress is the EntryPoint all simulated calls originate from.
	EntryPointAddress common.Address
	// ThrottleThreshold and BanThreshold are the reputation failure counts
	// at which an entity is throttled respectively banned.
	ThrottleThreshold uint64
	BanThreshold      uint64
	// MaxVerificationGas caps the gas limits an operation may declare.
	MaxVerificationGas uint64
	// RateLimit is the per-client requests-per-second budget of the API.
	RateLimit uint64
	// UserOpCacheTTL bounds how long a validated operation stays cached.
	UserOpCacheTTL time.Duration
	LogLevel       string
}

// SetDefaults fills in the zero-valued fields. The thresholds deliberately
// stay below the EIP-7562 recommended values; there is no decay.
func (c *Config) SetDefaults() {
	if c.RPCHost == "" {
		c.RPCHost = "localhost"
	}
	if c.RPCPort == 0 {
		c.RPCPort = 8545
	}
	if c.EntryPointAddress == (common.Address{}) {
		c.EntryPointAddress = common.HexToAddress(DefaultEntryPointAddress)
	}
	if c.ThrottleThreshold == 0 {
		c.ThrottleThreshold = 2
	}
	if c.BanThreshold == 0 {
		c.BanThreshold = 5
	}
	if c.MaxVerificationGas == 0 {
		c.MaxVerificationGas = 10_000_000
	}
	if c.RateLimit == 0 {
		c.RateLimit = 50
	}
	if c.UserOpCacheTTL == 0 {
		c.UserOpCacheTTL = 10 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
