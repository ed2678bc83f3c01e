package main

import (
	"fmt"

	"colend/cmd/internal/passphrase"
	"colend/crypto"
)

const keystorePassEnv = "COLEND_KEYSTORE_PASS"

func generateKey(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: generate-key <file>")
	}
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(args[0], key, pass); err != nil {
		return fmt.Errorf("save keystore: %w", err)
	}
	fmt.Println("Keystore written to", args[0])
	fmt.Println("Address:", key.PubKey().Address().String())
	return nil
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore: %w", err)
	}
	return key, nil
}
