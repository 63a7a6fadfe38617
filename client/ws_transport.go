package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	serena "github.com/llmdo/serena-mcp"
)

/* =========================
   WebSocket transport
   - one JSON-RPC message per text frame
   - reconnects with backoff; a lost connection is announced on Recv
   ========================= */

type WebSocketTransport struct {
	url  string
	opts *DialOptions

	muW   sync.Mutex
	conn  *websocket.Conn
	recvC chan []byte
	alive atomic.Bool
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	reconnector *reconnector
}

// NewWebSocketTransport starts dialing urlStr in the background. Send waits
// for the first connection, bounded by its context.
func NewWebSocketTransport(urlStr string, opts *DialOptions) *WebSocketTransport {
	opt := opts.WithDefaults()
	t := &WebSocketTransport{
		url:         urlStr,
		opts:        opt,
		recvC:       make(chan []byte, 256),
		stop:        make(chan struct{}),
		reconnector: newReconnector(opt),
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(t.recvC)
		t.reconnector.manage(t.connectAndServe, t.recvC, &t.alive, t.stop)
	}()
	return t
}

func (t *WebSocketTransport) connectAndServe(connected chan<- struct{}) error {
	opt := t.opts
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(opt.CancelCtx, t.url, opt.Headers)
	if err != nil {
		return &serena.TransportError{Op: "dial", Err: err, Temporary: true}
	}
	t.muW.Lock()
	t.conn = conn
	t.muW.Unlock()
	defer func() {
		t.muW.Lock()
		t.conn = nil
		t.muW.Unlock()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(opt.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opt.PongWait))
	})

	done := make(chan struct{})
	var bg sync.WaitGroup
	defer func() {
		close(done)
		bg.Wait()
	}()

	bg.Add(2)
	go func() {
		defer bg.Done()
		ticker := time.NewTicker(opt.PingInterval)
		defer ticker.Stop()
		failures := 0
		for {
			select {
			case <-ticker.C:
				t.muW.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				t.muW.Unlock()
				if err == nil {
					failures = 0
					continue
				}
				if failures++; failures >= opt.PingFailureThreshold {
					_ = conn.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()
	go func() {
		defer bg.Done()
		select {
		case <-t.stop:
		case <-opt.CancelCtx.Done():
		case <-done:
			return
		}
		_ = conn.Close()
	}()

	connected <- struct{}{}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if t.stopping() {
				return nil
			}
			return &serena.TransportError{Op: "read", Err: err, Temporary: true}
		}
		if opt.OnMessage != nil {
			opt.OnMessage(msg)
		}
		select {
		case t.recvC <- msg:
		case <-t.stop:
			return nil
		}
	}
}

func (t *WebSocketTransport) stopping() bool {
	select {
	case <-t.stop:
		return true
	case <-t.opts.CancelCtx.Done():
		return true
	default:
		return false
	}
}

func (t *WebSocketTransport) Send(ctx context.Context, payload []byte) error {
	if !t.alive.Load() && !t.reconnector.waitConnected(ctx) {
		return &serena.TransportError{Op: "write", Err: serena.ErrTransportClosed, Temporary: true}
	}

	t.muW.Lock()
	defer t.muW.Unlock()
	if t.conn == nil {
		return &serena.TransportError{Op: "write", Err: serena.ErrTransportClosed, Temporary: true}
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		_ = t.conn.Close()
		return &serena.TransportError{Op: "write", Err: err, Temporary: true}
	}
	return nil
}

func (t *WebSocketTransport) Recv() <-chan []byte { return t.recvC }

func (t *WebSocketTransport) Close() error {
	t.once.Do(func() { close(t.stop) })
	t.wg.Wait()
	return nil
}

func (t *WebSocketTransport) IsConnected() bool { return t.alive.Load() }
