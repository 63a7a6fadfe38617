package client

import (
	"context"
	"encoding/json"

	serena "github.com/llmdo/serena-mcp"
)

/* =========================
   Transport
   ========================= */

// Transport moves whole JSON-RPC messages. Recv is closed when the transport
// is gone for good.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Recv() <-chan []byte
	Close() error
	IsConnected() bool
}

// InternalDisconnectedMethod is injected into Recv by transports that lost
// their connection but will try again. It never travels on the wire.
const InternalDisconnectedMethod = "$transport/disconnected"

func makeInternalDisconnectedNote(err error) []byte {
	msg := map[string]any{
		"jsonrpc": serena.JsonrpcVersion,
		"method":  InternalDisconnectedMethod,
		"params":  map[string]any{"error": err.Error()},
	}
	b, _ := json.Marshal(msg)
	return b
}
