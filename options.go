package serena

import (
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

/* =========================
   Server options
   ========================= */

type Options struct {
	// Logger receives diagnostics. It must never point at the protocol stream.
	Logger *log.Logger
	// Debug enables a log line per request and per reply.
	Debug bool
	// Tracer opens one span per dispatched request.
	Tracer trace.Tracer

	// ServerInfo and ProtocolVersion are reported by initialize.
	ServerInfo      ServerInfo
	ProtocolVersion string

	// MethodNotFound replies -32601 to unrecognized methods that carry an id
	// instead of dropping them.
	MethodNotFound bool

	// WebSocket keepalive.
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	CheckOrigin  func(r *http.Request) bool

	// OnMessage sees every raw request before it is decoded.
	OnMessage func([]byte)
}

func (o *Options) WithDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	cp := *o
	if cp.Logger == nil {
		cp.Logger = NewLogger(os.Stderr)
	}
	if cp.Tracer == nil {
		cp.Tracer = noop.NewTracerProvider().Tracer(ServerName)
	}
	if cp.ServerInfo.Name == "" {
		cp.ServerInfo.Name = ServerName
	}
	if cp.ServerInfo.Version == "" {
		cp.ServerInfo.Version = ServerVersion
	}
	if cp.ProtocolVersion == "" {
		cp.ProtocolVersion = ProtocolVersion
	}
	if cp.PingInterval <= 0 {
		cp.PingInterval = 20 * time.Second
	}
	if cp.PongWait <= 0 {
		cp.PongWait = 60 * time.Second
	}
	if cp.WriteWait <= 0 {
		cp.WriteWait = 10 * time.Second
	}
	if cp.CheckOrigin == nil {
		cp.CheckOrigin = func(*http.Request) bool { return true }
	}
	return &cp
}

// NewLogger returns the logger used for diagnostics, prefixed with the server
// name.
func NewLogger(w io.Writer) *log.Logger {
	return log.New(w, "["+ServerName+"] ", log.LstdFlags)
}

// EnvStr returns the value of the environment variable k, or def when unset.
func EnvStr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
