// Command keytool encrypts the admin private key into the JSON file the
// engine reads at startup, and verifies existing key files.
//
// Encrypt a key (password and key come from the environment so neither lands
// in shell history):
//
//	MONARENA_CHAIN_PRIVATE_KEY=0x... MONARENA_CHAIN_KEY_PASSWORD=... keytool -out admin.key.json
//
// Verify a key file decrypts with a password:
//
//	MONARENA_CHAIN_KEY_PASSWORD=... keytool -verify admin.key.json
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/monarena/monarena/internal/chain"
)

func main() {
	out := flag.String("out", "", "write an encrypted key file to this path")
	verify := flag.String("verify", "", "verify the encrypted key file at this path")
	flag.Parse()

	if (*out == "") == (*verify == "") {
		fmt.Fprintln(os.Stderr, "usage: keytool -out <path> | -verify <path>")
		os.Exit(2)
	}

	password := os.Getenv("MONARENA_CHAIN_KEY_PASSWORD")
	if password == "" {
		fatal("MONARENA_CHAIN_KEY_PASSWORD must be set")
	}

	if *out != "" {
		encrypt(*out, password)
		return
	}
	check(*verify, password)
}

func encrypt(path, password string) {
	keyHex := os.Getenv("MONARENA_CHAIN_PRIVATE_KEY")
	if keyHex == "" {
		fatal("MONARENA_CHAIN_PRIVATE_KEY must be set")
	}

	blob, err := chain.EncryptKey(keyHex, password)
	if err != nil {
		fatal("encrypt: %v", err)
	}

	if err := os.WriteFile(path, blob, 0o600); err != nil {
		fatal("write %s: %v", path, err)
	}

	addr, err := signerAddress(keyHex)
	if err != nil {
		fatal("derive address: %v", err)
	}
	fmt.Printf("wrote %s (signer %s)\n", path, addr)
}

func check(path, password string) {
	blob, err := os.ReadFile(path)
	if err != nil {
		fatal("read %s: %v", path, err)
	}

	keyHex, err := chain.DecryptKey(blob, password)
	if err != nil {
		fatal("decrypt: %v", err)
	}

	addr, err := signerAddress(keyHex)
	if err != nil {
		fatal("derive address: %v", err)
	}
	fmt.Printf("%s ok (signer %s)\n", path, addr)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "keytool: "+format+"\n", args...)
	os.Exit(1)
}

// signerAddress derives the on-chain address controlled by the key, so the
// operator can confirm the right key was encrypted.
func signerAddress(keyHex string) (string, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}
