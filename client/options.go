package client

import (
	"context"
	"net/http"
	"time"
)

/* =========================
   Dial options
   ========================= */

type DialOptions struct {
	Headers        http.Header
	RequestTimeout time.Duration // default timeout per call

	// WebSocket keepalive
	PingInterval         time.Duration
	PongWait             time.Duration
	PingFailureThreshold int

	OnDisconnected     func(error)
	OnReconnected      func()
	OnReconnectAttempt func(attempt int, backoff time.Duration)
	// OnMessage sees every frame or line the transport receives.
	OnMessage func([]byte)

	ReconnectInitialBackoff time.Duration
	ReconnectMaxBackoff     time.Duration
	// MaxAttempts caps connect attempts. Zero retries forever.
	MaxAttempts int

	// CancelCtx stops reconnect attempts and the transport's background loops.
	CancelCtx context.Context
}

func (o *DialOptions) WithDefaults() *DialOptions {
	if o == nil {
		o = &DialOptions{}
	}
	cp := *o
	if cp.RequestTimeout <= 0 {
		cp.RequestTimeout = 30 * time.Second
	}
	if cp.PingInterval <= 0 {
		cp.PingInterval = 20 * time.Second
	}
	if cp.PongWait <= 0 {
		cp.PongWait = 60 * time.Second
	}
	if cp.PingFailureThreshold <= 0 {
		cp.PingFailureThreshold = 3
	}
	if cp.ReconnectInitialBackoff <= 0 {
		cp.ReconnectInitialBackoff = 500 * time.Millisecond
	}
	if cp.ReconnectMaxBackoff <= 0 {
		cp.ReconnectMaxBackoff = 10 * time.Second
	}
	if cp.CancelCtx == nil {
		cp.CancelCtx = context.Background()
	}
	return &cp
}
