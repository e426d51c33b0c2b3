// derive_key.go prints the public keys and address for a hex-encoded spend
// secret and view secret, one per line in keyfile.
// Usage: go run scripts/derive_key.go <keyfile>
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <keyfile>")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(err)
	}
	lines := strings.Fields(string(data))
	if len(lines) != 2 {
		fail(fmt.Errorf("keyfile must hold a spend secret and a view secret"))
	}

	spend := mustKey(lines[0])
	view := mustKey(lines[1])
	addr := crypto.AddressFromKeys(spend.PublicKey(), view.PublicKey())
	fmt.Printf("spend_pubkey=%s\n", hex.EncodeToString(spend.PublicKey()))
	fmt.Printf("view_pubkey=%s\n", hex.EncodeToString(view.PublicKey()))
	fmt.Printf("address=%s\n", addr.String())
}

func mustKey(s string) *crypto.PrivateKey {
	b, err := hex.DecodeString(s)
	if err != nil {
		fail(err)
	}
	key, err := crypto.PrivateKeyFromBytes(b)
	if err != nil {
		fail(err)
	}
	return key
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
