package serena

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

/* =========================
   WebSocket server
   - one request per text frame, one reply frame per request
   - each connection is its own sequential loop over the shared dispatcher
   - server pings keep the read deadline moving
   ========================= */

const WebSocketPath = "/mcp/ws"

type WebSocketHandler struct {
	d        *Dispatcher
	opts     *Options
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(d *Dispatcher, opts *Options) *WebSocketHandler {
	opt := opts.WithDefaults()
	return &WebSocketHandler{
		d:    d,
		opts: opt,
		upgrader: websocket.Upgrader{
			CheckOrigin: opt.CheckOrigin,
		},
	}
}

type wsConn struct {
	id   string
	conn *websocket.Conn
	muW  sync.Mutex
	opts *Options
}

func (c *wsConn) write(msgType int, payload []byte) error {
	c.muW.Lock()
	defer c.muW.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := c.conn.WriteMessage(msgType, payload); err != nil {
		return &TransportError{Op: "write", Err: err, Temporary: true}
	}
	return nil
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.Logger.Printf("ws upgrade: %v", err)
		return
	}
	c := &wsConn{id: uuid.NewString(), conn: conn, opts: h.opts}
	defer conn.Close()
	h.opts.Logger.Printf("ws %s: connected from %s", c.id, r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	pingStop := make(chan struct{})
	var pingWg sync.WaitGroup
	pingWg.Add(1)
	go func() {
		defer pingWg.Done()
		ticker := time.NewTicker(h.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.muW.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteWait))
				c.muW.Unlock()
				if err != nil {
					_ = conn.Close()
					return
				}
			case <-pingStop:
				return
			}
		}
	}()
	defer func() {
		close(pingStop)
		pingWg.Wait()
	}()

	ctx := r.Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.opts.Logger.Printf("ws %s: read: %v", c.id, err)
			}
			return
		}
		msg = bytes.TrimSpace(msg)
		if len(msg) == 0 {
			continue
		}
		reply := h.d.Handle(ctx, msg)
		if reply == nil {
			continue
		}
		if err := c.write(websocket.TextMessage, bytes.TrimRight(reply, "\n")); err != nil {
			h.opts.Logger.Printf("ws %s: %v", c.id, err)
			return
		}
	}
}

// ListenAndServeWebSocket serves the dispatcher on addr at WebSocketPath until
// ctx is done.
func ListenAndServeWebSocket(ctx context.Context, addr string, d *Dispatcher, opts *Options) error {
	mux := http.NewServeMux()
	mux.Handle(WebSocketPath, NewWebSocketHandler(d, opts))
	srv := &http.Server{Addr: addr, Handler: mux}

	errC := make(chan error, 1)
	go func() { errC <- srv.ListenAndServe() }()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
