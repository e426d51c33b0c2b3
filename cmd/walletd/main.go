// Klingnet wallet daemon.
//
// Usage:
//
//	walletd [options] create     Create a new wallet
//	walletd [options] restore    Restore a wallet from its mnemonic
//	walletd [options] run        Keep the wallet synchronized
//	walletd --help               Show help
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/container"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/term"
)

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fatal("%v", err)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}

	rules, err := config.NetworkRules(cfg)
	if err != nil {
		fatal("%v", err)
	}
	rulesHash, err := rules.Hash()
	if err != nil {
		fatal("hashing rules: %v", err)
	}
	log.Wallet.Info().
		Str("network", string(cfg.Network)).
		Str("chain", rules.ChainID).
		Str("rules", rulesHash.String()).
		Msg("Network rules loaded")

	db, err := storage.NewBadger(cfg.ContainersDir())
	if err != nil {
		fatal("opening wallet database: %v", err)
	}
	defer db.Close()

	clk := clock.NewDefaultClock()
	node := rpcclient.New(cfg.Node.URL)
	store := container.NewStore(db, encryptionParams(cfg), clk)
	w := wallet.New(store, walletParams(rules), clk, node)
	defer w.Close()

	command := "run"
	if len(flags.Args) > 0 {
		command = flags.Args[0]
	}

	switch command {
	case "create":
		err = cmdCreate(cfg, w)
	case "restore":
		err = cmdRestore(cfg, w)
	case "viewonly":
		err = cmdViewOnly(cfg, w)
	case "password":
		err = cmdPassword(cfg, w)
	case "info":
		err = cmdInfo(cfg, w)
	case "run":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		err = run(ctx, cfg, rules, w, node)
		stop()
	default:
		err = fmt.Errorf("unknown command %q (see --help)", command)
	}
	if err != nil {
		w.Close()
		db.Close()
		fatal("%v", err)
	}
}

func cmdCreate(cfg *config.Config, w *wallet.Wallet) error {
	password, err := newPassword()
	if err != nil {
		return err
	}
	mnemonic, err := w.GenerateNewWallet(cfg.Wallet.Name, password)
	if err != nil {
		return err
	}
	addr, err := w.GetAddress(0)
	if err != nil {
		return err
	}

	fmt.Printf("Wallet %q created.\n\n", cfg.Wallet.Name)
	fmt.Printf("  Address:  %s\n\n", addr)
	fmt.Println("Write down this mnemonic. It is the only way to restore the wallet:")
	fmt.Printf("\n  %s\n\n", mnemonic)
	return w.Shutdown()
}

func cmdRestore(cfg *config.Config, w *wallet.Wallet) error {
	fmt.Fprint(os.Stderr, "Mnemonic: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading mnemonic: %w", err)
	}
	password, err := newPassword()
	if err != nil {
		return err
	}
	if err := w.InitializeFromMnemonic(cfg.Wallet.Name, password, strings.TrimSpace(line)); err != nil {
		return err
	}
	fmt.Printf("Wallet %q restored. Run walletd to rescan the chain.\n", cfg.Wallet.Name)
	return w.Shutdown()
}

func cmdViewOnly(cfg *config.Config, w *wallet.Wallet) error {
	secretHex, err := readPassword("View secret key (hex): ")
	if err != nil {
		return err
	}
	secret, err := hex.DecodeString(strings.TrimSpace(string(secretHex)))
	if err != nil {
		return fmt.Errorf("invalid view key: %w", err)
	}
	password, err := newPassword()
	if err != nil {
		return err
	}
	if err := w.InitializeWithViewKey(cfg.Wallet.Name, password, secret); err != nil {
		return err
	}
	fmt.Printf("View-only wallet %q created. Add tracked addresses by public spend key.\n", cfg.Wallet.Name)
	return w.Shutdown()
}

func cmdPassword(cfg *config.Config, w *wallet.Wallet) error {
	old, err := open(cfg, w)
	if err != nil {
		return err
	}
	password, err := newPassword()
	if err != nil {
		return err
	}
	if err := w.ChangePassword(old, password); err != nil {
		return err
	}
	fmt.Println("Password changed.")
	return w.Shutdown()
}

func cmdInfo(cfg *config.Config, w *wallet.Wallet) error {
	if _, err := open(cfg, w); err != nil {
		return err
	}
	addrs, err := w.GetAddresses()
	if err != nil {
		return err
	}
	bal, err := w.Balance()
	if err != nil {
		return err
	}
	height, err := w.GetBlockCount()
	if err != nil {
		return err
	}
	viewOnly, _ := w.IsViewOnly()

	fmt.Printf("Wallet:     %s\n", cfg.Wallet.Name)
	fmt.Printf("View-only:  %v\n", viewOnly)
	fmt.Printf("Height:     %d\n", height)
	fmt.Printf("Actual:     %s\n", formatAmount(bal.Actual))
	fmt.Printf("Pending:    %s\n", formatAmount(bal.Pending))
	fmt.Printf("Deposits:   %s locked, %s unlocked\n", formatAmount(bal.LockedDeposit), formatAmount(bal.UnlockedDeposit))
	fmt.Println("Addresses:")
	for _, a := range addrs {
		fmt.Printf("  %s\n", a)
	}
	return w.Shutdown()
}

// open loads the configured container and returns the password used.
func open(cfg *config.Config, w *wallet.Wallet) ([]byte, error) {
	password, err := readPassword(fmt.Sprintf("Password for %q: ", cfg.Wallet.Name))
	if err != nil {
		return nil, err
	}
	if _, err := w.Load(cfg.Wallet.Name, password); err != nil {
		return nil, err
	}
	return password, nil
}

// ── Password helpers ────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func newPassword() ([]byte, error) {
	password, err := readPassword("New password: ")
	if err != nil {
		return nil, err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	if string(password) != string(confirm) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return password, nil
}

// formatAmount renders base units as coins.
func formatAmount(v uint64) string {
	whole := v / config.Coin
	frac := v % config.Coin
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	s := strings.TrimRight(fmt.Sprintf("%0*d", config.Decimals, frac), "0")
	return fmt.Sprintf("%d.%s", whole, s)
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
