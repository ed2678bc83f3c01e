package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"colend/core/pricing"
)

// signPrice signs a price proof with a local keystore and optionally submits
// it to the daemon.
func signPrice(args []string) error {
	submit := false
	filtered := args[:0]
	for _, arg := range args {
		if arg == "--submit" {
			submit = true
			continue
		}
		filtered = append(filtered, arg)
	}
	args = filtered
	if len(args) < 4 {
		return fmt.Errorf("usage: sign-price <keyfile> <provider> <symbol> <price> [--submit]")
	}

	key, err := loadKey(args[0])
	if err != nil {
		return err
	}
	timestamp := time.Now().UTC().Unix()
	proof, err := pricing.NewPriceProof(pricing.PriceProofDomainV1, args[1], args[2], args[3], timestamp, nil)
	if err != nil {
		return err
	}
	digest, err := proof.Hash()
	if err != nil {
		return err
	}
	signature, err := key.Sign(digest)
	if err != nil {
		return fmt.Errorf("sign proof: %w", err)
	}

	fmt.Println("Signer:   ", key.PubKey().Address().String())
	fmt.Println("Timestamp:", timestamp)
	fmt.Println("Signature:", "0x"+hex.EncodeToString(signature))

	if !submit {
		return nil
	}
	result, err := rpcCall("oracle_submitProof", map[string]interface{}{
		"domain":    pricing.PriceProofDomainV1,
		"provider":  args[1],
		"symbol":    args[2],
		"price":     args[3],
		"timestamp": timestamp,
		"signature": "0x" + hex.EncodeToString(signature),
	})
	if err != nil {
		return err
	}
	return printResult(result)
}
