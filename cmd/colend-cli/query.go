package main

import "fmt"

func getBalance(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: balance <address> <symbol>")
	}
	result, err := rpcCall("bank_balanceOf", map[string]string{
		"address": args[0],
		"symbol":  args[1],
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func getPosition(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: position <address> <symbol>")
	}
	result, err := rpcCall("lend_getPosition", map[string]string{
		"address": args[0],
		"symbol":  args[1],
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func listMarkets() error {
	result, err := rpcCall("lend_listMarkets", nil)
	if err != nil {
		return err
	}
	return printResult(result)
}

func getSnapshot(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: snapshot <address>")
	}
	result, err := rpcCall("risk_getSnapshot", map[string]string{
		"address": args[0],
	})
	if err != nil {
		return err
	}
	return printResult(result)
}
