package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	Testnet bool
	DataDir string
	Config  string
	Rules   string

	// Node
	NodeURL   string
	Poll      int
	BatchSize uint

	// Wallet
	Wallet       string
	SaveLevel    string
	SaveInterval int
	ResetHeight  int64

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	// Metrics
	Metrics     bool
	MetricsAddr string
	MetricsPort int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args (the command and its operands)
	Args []string

	// Explicitly-set flags (for true/false and zero overrides).
	SetRPC          bool
	SetMetrics      bool
	SetLogJSON      bool
	SetSaveInterval bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

func parseFlags(args []string) (*Flags, error) {
	f := &Flags{ResetHeight: -1}
	fs := flag.NewFlagSet("walletd", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.BoolVar(&f.Testnet, "testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.Rules, "rules", "", "Network rules JSON file")

	// Node
	fs.StringVar(&f.NodeURL, "node", "", "Node RPC URL")
	fs.IntVar(&f.Poll, "poll", 0, "Seconds between node polls")
	fs.UintVar(&f.BatchSize, "batch", 0, "Max blocks fetched per poll")

	// Wallet
	fs.StringVar(&f.Wallet, "wallet", "", "Wallet container name")
	fs.StringVar(&f.SaveLevel, "save-level", "", "Save level: keys, transactions or all")
	fs.IntVar(&f.SaveInterval, "save-interval", 0, "Seconds between automatic saves (0 = on exit only)")
	fs.Int64Var(&f.ResetHeight, "reset-height", -1, "Rescan from this height on open")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable wallet RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// Metrics
	fs.BoolVar(&f.Metrics, "metrics", false, "Enable Prometheus metrics endpoint")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "Metrics listen address")
	fs.IntVar(&f.MetricsPort, "metrics-port", 0, "Metrics listen port")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	// Custom usage
	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Handle --testnet shorthand
	if f.Testnet {
		f.Network = string(Testnet)
	}
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetMetrics = isFlagSet(fs, "metrics")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.SetSaveInterval = isFlagSet(fs, "save-interval")

	f.Args = fs.Args()

	// Flags after the command are not parsed.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (flags must precede the command)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.Rules != "" {
		cfg.RulesFile = f.Rules
	}

	// Node
	if f.NodeURL != "" {
		cfg.Node.URL = f.NodeURL
	}
	if f.Poll != 0 {
		cfg.Node.PollInterval = f.Poll
	}
	if f.BatchSize != 0 {
		cfg.Node.BatchSize = uint32(f.BatchSize)
	}

	// Wallet
	if f.Wallet != "" {
		cfg.Wallet.Name = f.Wallet
	}
	if f.SaveLevel != "" {
		cfg.Wallet.SaveLevel = strings.ToLower(f.SaveLevel)
	}
	if f.SetSaveInterval {
		cfg.Wallet.SaveInterval = f.SaveInterval
	}
	if f.ResetHeight >= 0 {
		cfg.ResetHeight = f.ResetHeight
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	// Metrics
	if f.SetMetrics {
		cfg.Metrics.Enabled = f.Metrics
	}
	if f.MetricsAddr != "" {
		cfg.Metrics.Addr = f.MetricsAddr
	}
	if f.MetricsPort != 0 {
		cfg.Metrics.Port = f.MetricsPort
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `Klingnet Wallet Daemon - deposit-capable wallet for Klingnet nodes

Usage:
  walletd [options] <command>
  walletd --help

Commands:
  create          Create a new wallet and print its mnemonic
  restore         Restore a wallet from a mnemonic (read from the terminal)
  viewonly        Create a view-only wallet from a view secret key (hex)
  run             Open the wallet, keep it synchronized and serve RPC (default)
  password        Change the wallet password

Core Options:
  --help, -h      Show this help message
  --version, -v   Show version information
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.klingnet-wallet)
  --config, -c    Config file path (default: <datadir>/walletd.conf)
  --rules         Network rules JSON file (default: built-in rules)

Node Options:
  --node          Node RPC URL (mainnet: http://127.0.0.1:8545)
  --poll          Seconds between node polls (default: 5)
  --batch         Max blocks fetched per poll (default: 100)

Wallet Options:
  --wallet        Wallet container name (default: default)
  --save-level    Save level: keys, transactions or all (default: all)
  --save-interval Seconds between automatic saves (default: 300)
  --reset-height  Rescan from this height when opening

RPC Options:
  --rpc           Enable wallet RPC server (default: true)
  --rpc-addr      RPC listen address (default: 127.0.0.1)
  --rpc-port      RPC port (mainnet: 8070, testnet: 8170)
  --rpc-allowed   Allowed IPs for RPC (comma-separated)
  --rpc-cors      Allowed CORS origins for RPC (comma-separated)

Metrics Options:
  --metrics       Enable Prometheus metrics endpoint
  --metrics-addr  Metrics listen address (default: 127.0.0.1)
  --metrics-port  Metrics port (mainnet: 9545, testnet: 9645)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Create a wallet on testnet
  walletd --testnet create

  # Run against a remote node with metrics
  walletd --node=http://10.0.0.5:8545 --metrics run

  # Rescan from genesis
  walletd --reset-height=0 run

Note:
  Passwords are read from the terminal. Data directories are created
  automatically on first start.
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	// Handle help/version
	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("walletd version 0.1.0")
		os.Exit(0)
	}

	cfg, err := loadWith(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

func loadWith(flags *Flags) (*Config, error) {
	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.ToLower(flags.Network) == string(Testnet) {
		network = Testnet
	}

	// Start with defaults
	cfg := Default(network)

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// EnsureDataDirs creates the data directories and a default config file
// if they don't exist.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.ContainersDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}

// NetworkRules returns the rules selected by cfg: the rules file when set,
// otherwise the built-in rules of cfg.Network.
func NetworkRules(cfg *Config) (*Rules, error) {
	if cfg.RulesFile != "" {
		return LoadRules(cfg.RulesFile)
	}
	return RulesFor(cfg.Network), nil
}
