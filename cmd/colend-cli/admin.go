package main

import (
	"fmt"
	"strconv"
)

func mint(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: mint <authority> <to> <symbol> <amount>")
	}
	result, err := rpcCall("admin_mint", map[string]string{
		"authority": args[0],
		"to":        args[1],
		"symbol":    args[2],
		"amount":    args[3],
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func setTokenConfig(args []string) error {
	if len(args) < 9 {
		return fmt.Errorf("usage: token-config <caller> <symbol> <name> <decimals> <supported> <cfBps> <ltBps> <penBps> <rateBps>")
	}
	decimals, err := strconv.ParseUint(args[3], 10, 8)
	if err != nil {
		return fmt.Errorf("invalid decimals %q", args[3])
	}
	supported, err := strconv.ParseBool(args[4])
	if err != nil {
		return fmt.Errorf("invalid supported flag %q", args[4])
	}
	bps := make([]uint64, 4)
	for i, raw := range args[5:9] {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid basis points %q", raw)
		}
		bps[i] = value
	}
	result, err := rpcCall("admin_setTokenConfig", map[string]interface{}{
		"caller":                  args[0],
		"symbol":                  args[1],
		"name":                    args[2],
		"decimals":                decimals,
		"supported":               supported,
		"collateralFactorBps":     bps[0],
		"liquidationThresholdBps": bps[1],
		"liquidationPenaltyBps":   bps[2],
		"interestRateBps":         bps[3],
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func grantRole(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: grant-role <role> <address>")
	}
	result, err := rpcCall("admin_grantRole", map[string]string{
		"role":    args[0],
		"address": args[1],
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func revokeRole(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: revoke-role <role> <address>")
	}
	result, err := rpcCall("admin_revokeRole", map[string]string{
		"role":    args[0],
		"address": args[1],
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func withdrawReserves(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: withdraw-reserves <caller> <recipient> <symbol> <amount>")
	}
	result, err := rpcCall("admin_withdrawReserves", map[string]string{
		"caller":    args[0],
		"recipient": args[1],
		"symbol":    args[2],
		"amount":    args[3],
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func setPrice(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set-price <symbol> <price> [provider]")
	}
	params := map[string]string{
		"symbol": args[0],
		"price":  args[1],
	}
	if len(args) > 2 {
		params["provider"] = args[2]
	}
	result, err := rpcCall("admin_setPrice", params)
	if err != nil {
		return err
	}
	return printResult(result)
}
