package config

import (
	"fmt"
	"net/url"

	"github.com/Klingon-tech/klingnet-wallet/internal/snapshot"
)

// Validate checks runtime daemon config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}

	u, err := url.Parse(cfg.Node.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("node.url must be an http(s) URL, got %q", cfg.Node.URL)
	}
	if cfg.Node.PollInterval <= 0 {
		return fmt.Errorf("node.poll must be positive")
	}

	if cfg.Wallet.Name == "" {
		return fmt.Errorf("wallet.name is required")
	}
	if _, err := snapshot.ParseLevel(cfg.Wallet.SaveLevel); err != nil {
		return fmt.Errorf("wallet.savelevel must be keys, transactions or all")
	}
	if cfg.Wallet.SaveInterval < 0 {
		return fmt.Errorf("wallet.saveinterval must not be negative")
	}
	if cfg.Wallet.KDFMemory < 8 || cfg.Wallet.KDFIterations == 0 || cfg.Wallet.KDFParallelism == 0 {
		return fmt.Errorf("wallet.kdf parameters must be positive (memory at least 8 KiB)")
	}

	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be in range [0, 65535]")
	}

	return nil
}
