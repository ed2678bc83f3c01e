package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"colend/core/types"
)

const wsWriteTimeout = 10 * time.Second

type eventPayload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// handleEventsWS streams committed ledger events. A comma-separated "types"
// query parameter narrows the stream; empty receives everything.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	filter := parseEventFilter(r.URL.Query().Get("types"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func parseEventFilter(raw string) map[string]struct{} {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	filter := make(map[string]struct{})
	for _, part := range strings.Split(trimmed, ",") {
		if part = strings.TrimSpace(part); part != "" {
			filter[part] = struct{}{}
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter map[string]struct{}) error {
	stream, cancel := s.node.Subscribe(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-stream:
			if !ok {
				return nil
			}
			if evt == nil {
				continue
			}
			if filter != nil {
				if _, want := filter[evt.Type]; !want {
					continue
				}
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(eventPayload{Type: evt.Type, Attributes: evt.Attributes})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
