package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("COLEND_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("COLEND_RPC_URL")); url != "" {
		return url
	}
	return "http://127.0.0.1:8645"
}

func main() {
	args := os.Args[1:]
	args = applyGlobalFlags(args)

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	rest := args[1:]
	var err error
	switch command {
	case "generate-key":
		err = generateKey(rest)
	case "balance":
		err = getBalance(rest)
	case "position":
		err = getPosition(rest)
	case "markets":
		err = listMarkets()
	case "snapshot":
		err = getSnapshot(rest)
	case "mint":
		err = mint(rest)
	case "token-config":
		err = setTokenConfig(rest)
	case "grant-role":
		err = grantRole(rest)
	case "revoke-role":
		err = revokeRole(rest)
	case "withdraw-reserves":
		err = withdrawReserves(rest)
	case "set-price":
		err = setPrice(rest)
	case "sign-price":
		err = signPrice(rest)
	case "export":
		err = exportData(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func applyGlobalFlags(args []string) []string {
	out := args[:0]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" && i+1 < len(args):
			rpcEndpoint = args[i+1]
			i++
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		default:
			out = append(out, arg)
		}
	}
	return out
}

func printUsage() {
	fmt.Println(`Usage: colend-cli [--rpc <url>] <command> [args]

Keys:
  generate-key <file>                          create a keystore and print its address

Queries:
  balance <address> <symbol>                   token balance
  position <address> <symbol>                  lending position
  markets                                      list configured markets
  snapshot <address>                           risk snapshot

Administration (requires COLEND_RPC_TOKEN):
  mint <authority> <to> <symbol> <amount>
  token-config <caller> <symbol> <name> <decimals> <supported> <cfBps> <ltBps> <penBps> <rateBps>
  grant-role <role> <address>
  revoke-role <role> <address>
  withdraw-reserves <caller> <recipient> <symbol> <amount>
  set-price <symbol> <price> [provider]

Oracle:
  sign-price <keyfile> <provider> <symbol> <price> [--submit]

Exports:
  export markets <dir>
  export positions <address> <dir>

Environment:
  COLEND_RPC_URL        RPC endpoint (default http://127.0.0.1:8645)
  COLEND_RPC_TOKEN      bearer token for mutating methods
  COLEND_KEYSTORE_PASS  keystore passphrase (prompted when unset)`)
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// rpcCall posts one JSON-RPC request and returns the raw result.
func rpcCall(method string, params interface{}) (json.RawMessage, error) {
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{},
	}
	if params != nil {
		request["params"] = []interface{}{params}
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	return envelope.Result, nil
}

// printResult pretty-prints an RPC result.
func printResult(result json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
