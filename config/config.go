// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Network rules: fees, maturity and deposit terms, which must match the
//     network the wallet talks to
//   - Daemon settings: runtime configuration, can vary per installation
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Daemon Configuration (runtime settings)
// =============================================================================

// Config holds wallet daemon runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`
	// RulesFile overrides the built-in network rules with a JSON file.
	RulesFile string `conf:"rules"`

	// Node the wallet synchronizes from and broadcasts to
	Node NodeConfig

	// Wallet container
	Wallet WalletConfig

	// Wallet JSON-RPC server
	RPC RPCConfig

	// Metrics endpoint
	Metrics MetricsConfig

	// Logging
	Log LogConfig

	// Maintenance (not persisted in config file)
	ResetHeight int64
}

// NodeConfig holds the node RPC connection settings.
type NodeConfig struct {
	URL          string `conf:"node.url"`
	PollInterval int    `conf:"node.poll"`  // Seconds between polls
	BatchSize    uint32 `conf:"node.batch"` // Max blocks fetched per poll (0 = no cap)
}

// WalletConfig holds wallet container settings.
type WalletConfig struct {
	Name         string `conf:"wallet.name"`
	SaveLevel    string `conf:"wallet.savelevel"`    // keys, transactions or all
	SaveInterval int    `conf:"wallet.saveinterval"` // Seconds between automatic saves (0 = on exit only)

	// Argon2id parameters for new and re-encrypted containers
	KDFMemory      uint32 `conf:"wallet.kdf.memory"` // KiB
	KDFIterations  uint32 `conf:"wallet.kdf.iterations"`
	KDFParallelism uint8  `conf:"wallet.kdf.parallelism"`
}

// RPCConfig holds wallet JSON-RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `conf:"metrics.enabled"`
	Addr    string `conf:"metrics.addr"`
	Port    int    `conf:"metrics.port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-wallet
//	macOS:   ~/Library/Application Support/KlingnetWallet
//	Windows: %APPDATA%\KlingnetWallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-wallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetWallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetWallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetWallet")
	default:
		return filepath.Join(home, ".klingnet-wallet")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// ContainersDir returns the wallet container database directory.
func (c *Config) ContainersDir() string {
	return filepath.Join(c.NetworkDataDir(), "containers")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "walletd.conf")
}
