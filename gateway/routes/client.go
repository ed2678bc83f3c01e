package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxUpstreamBody = 4 << 20

// Client speaks JSON-RPC to the ledger daemon on behalf of REST callers.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewClient(endpoint *url.URL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: endpoint.String(),
		token:    token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// Call invokes a daemon method and returns the upstream HTTP status together
// with the decoded result or error payload.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (int, *rpcEnvelope, error) {
	request := struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      int           `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params"`
	}{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  []interface{}{},
	}
	if params != nil {
		request.Params = []interface{}{params}
	}
	body, err := json.Marshal(request)
	if err != nil {
		return 0, nil, fmt.Errorf("encode rpc request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s response: %w", method, err)
	}
	envelope := &rpcEnvelope{}
	if err := json.Unmarshal(raw, envelope); err != nil {
		return 0, nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	return resp.StatusCode, envelope, nil
}
