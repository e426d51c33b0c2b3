package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	for _, n := range []NetworkType{Mainnet, Testnet} {
		if err := Validate(Default(n)); err != nil {
			t.Errorf("%s defaults should be valid: %v", n, err)
		}
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "missing.conf"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected no values, got %v", values)
	}
}

func TestLoadFile_Parse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletd.conf")
	content := `# comment
node.url = "http://10.0.0.5:8545"
wallet.name = 'savings'
log.json = yes

metrics.port=9000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.Node.URL != "http://10.0.0.5:8545" {
		t.Errorf("node.url: got %q", cfg.Node.URL)
	}
	if cfg.Wallet.Name != "savings" {
		t.Errorf("wallet.name: got %q", cfg.Wallet.Name)
	}
	if !cfg.Log.JSON {
		t.Error("log.json should be true")
	}
	if cfg.Metrics.Port != 9000 {
		t.Errorf("metrics.port: got %d", cfg.Metrics.Port)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletd.conf")
	if err := os.WriteFile(path, []byte("node.url\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for line without '='")
	}
}

func TestApplyFileConfig_BadNumber(t *testing.T) {
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, map[string]string{"node.batch": "many"}); err == nil {
		t.Error("expected error for non-numeric node.batch")
	}
	if err := ApplyFileConfig(cfg, map[string]string{"wallet.kdf.parallelism": "300"}); err == nil {
		t.Error("expected error for out of range parallelism")
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletd.conf")
	if err := WriteDefaultConfig(path, Testnet); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.Network != Testnet {
		t.Errorf("network: got %q", cfg.Network)
	}
	if cfg.Node.URL != "http://127.0.0.1:8645" {
		t.Errorf("node.url: got %q", cfg.Node.URL)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("written defaults should validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"network", func(c *Config) { c.Network = "devnet" }},
		{"node url scheme", func(c *Config) { c.Node.URL = "ftp://node" }},
		{"node url host", func(c *Config) { c.Node.URL = "http://" }},
		{"poll", func(c *Config) { c.Node.PollInterval = 0 }},
		{"wallet name", func(c *Config) { c.Wallet.Name = "" }},
		{"save level", func(c *Config) { c.Wallet.SaveLevel = "everything" }},
		{"save interval", func(c *Config) { c.Wallet.SaveInterval = -1 }},
		{"kdf", func(c *Config) { c.Wallet.KDFIterations = 0 }},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"--testnet", "--node=http://n:1", "--metrics=false", "--save-interval=0", "--reset-height=5", "run"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if f.Network != "testnet" {
		t.Errorf("network: got %q", f.Network)
	}
	if len(f.Args) != 1 || f.Args[0] != "run" {
		t.Errorf("args: got %v", f.Args)
	}

	cfg := DefaultTestnet()
	cfg.Metrics.Enabled = true
	ApplyFlags(cfg, f)
	if cfg.Node.URL != "http://n:1" {
		t.Errorf("node url: got %q", cfg.Node.URL)
	}
	if cfg.Metrics.Enabled {
		t.Error("explicit --metrics=false should disable metrics")
	}
	if cfg.Wallet.SaveInterval != 0 {
		t.Errorf("explicit --save-interval=0 should apply, got %d", cfg.Wallet.SaveInterval)
	}
	if cfg.ResetHeight != 5 {
		t.Errorf("reset height: got %d", cfg.ResetHeight)
	}
}

func TestParseFlags_FlagAfterCommand(t *testing.T) {
	if _, err := parseFlags([]string{"run", "--metrics"}); err == nil {
		t.Error("expected error for flag after command")
	}
}

func TestLoadWith_Precedence(t *testing.T) {
	dir := t.TempDir()
	f := &Flags{DataDir: dir, Network: "testnet", Wallet: "flagged", ResetHeight: -1}

	// First load writes the default config file.
	cfg, err := loadWith(f)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if _, err := os.Stat(cfg.ConfigFile()); err != nil {
		t.Errorf("default config not written: %v", err)
	}
	if _, err := os.Stat(cfg.ContainersDir()); err != nil {
		t.Errorf("containers dir not created: %v", err)
	}

	// File overrides defaults, flags override the file.
	conf := "network = testnet\nwallet.name = filed\nnode.poll = 9\n"
	if err := os.WriteFile(cfg.ConfigFile(), []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadWith(f)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Node.PollInterval != 9 {
		t.Errorf("node.poll from file: got %d", cfg.Node.PollInterval)
	}
	if cfg.Wallet.Name != "flagged" {
		t.Errorf("wallet name from flag: got %q", cfg.Wallet.Name)
	}
	if cfg.ResetHeight != -1 {
		t.Errorf("reset height should stay unset, got %d", cfg.ResetHeight)
	}
}

func TestNetworkRules(t *testing.T) {
	cfg := DefaultTestnet()
	r, err := NetworkRules(cfg)
	if err != nil {
		t.Fatalf("NetworkRules: %v", err)
	}
	if r.ChainID != TestnetRules().ChainID {
		t.Errorf("chain id: got %q", r.ChainID)
	}

	cfg.RulesFile = filepath.Join(t.TempDir(), "missing.json")
	if _, err := NetworkRules(cfg); err == nil {
		t.Error("expected error for missing rules file")
	}
}

func TestParseFlags_RPC(t *testing.T) {
	f, err := parseFlags([]string{"--rpc=false", "--rpc-port=9000", "--rpc-allowed=10.0.0.0/8, 127.0.0.1", "--rpc-cors=*"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	cfg := DefaultMainnet()
	ApplyFlags(cfg, f)
	if cfg.RPC.Enabled {
		t.Error("explicit --rpc=false should disable rpc")
	}
	if cfg.RPC.Port != 9000 {
		t.Errorf("rpc port: got %d", cfg.RPC.Port)
	}
	if cfg.RPC.Addr != "127.0.0.1" {
		t.Errorf("rpc addr should keep default, got %q", cfg.RPC.Addr)
	}
	if len(cfg.RPC.AllowedIPs) != 2 || cfg.RPC.AllowedIPs[1] != "127.0.0.1" {
		t.Errorf("rpc allowed: got %v", cfg.RPC.AllowedIPs)
	}
	if len(cfg.RPC.CORSOrigins) != 1 || cfg.RPC.CORSOrigins[0] != "*" {
		t.Errorf("rpc cors: got %v", cfg.RPC.CORSOrigins)
	}
}
