package routes

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

const maxRequestBody = 1 << 20

// bridge maps REST routes onto the daemon's JSON-RPC methods.
type bridge struct {
	client *Client
}

func newBridge(client *Client) *bridge {
	return &bridge{client: client}
}

// forward calls the daemon and relays the upstream status with either the
// result payload or the error object.
func (b *bridge) forward(w http.ResponseWriter, r *http.Request, method string, params interface{}) {
	status, envelope, err := b.client.Call(r.Context(), method, params)
	if err != nil {
		slog.Error("upstream rpc call failed", "method", method, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable"})
		return
	}
	if len(envelope.Error) > 0 {
		writeJSON(w, status, map[string]json.RawMessage{"error": envelope.Error})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(envelope.Result) > 0 {
		w.Write(envelope.Result)
	}
}

// decodeBody reads a JSON object body into params. A false return means the
// response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request, params interface{}) bool {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to read request body"})
		return false
	}
	if len(raw) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body required"})
		return false
	}
	if err := json.Unmarshal(raw, params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("write response failed", "err", err)
	}
}
