package config

// DefaultMainnet returns the default daemon configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network:     Mainnet,
		DataDir:     DefaultDataDir(),
		ResetHeight: -1,
		Node: NodeConfig{
			URL:          "http://127.0.0.1:8545",
			PollInterval: 5,
			BatchSize:    100,
		},
		Wallet: WalletConfig{
			Name:           "default",
			SaveLevel:      "all",
			SaveInterval:   300,
			KDFMemory:      64 * 1024, // 64 MB
			KDFIterations:  3,
			KDFParallelism: 4,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8070,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1",
			Port:    9545,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default daemon configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Node.URL = "http://127.0.0.1:8645"
	cfg.RPC.Port = 8170
	cfg.Metrics.Port = 9645
	return cfg
}

// Default returns the default daemon configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
