package client

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	serena "github.com/llmdo/serena-mcp"
)

/* =========================
   MCP client
   - pending map: id -> reply channel
   - a lost transport fails every pending call at once
   - serena-mcp never pushes notifications, but other servers may
   ========================= */

// ClientTransportClosedCode is reported for calls that were pending when the
// transport went away. It never comes from a server.
const ClientTransportClosedCode = -32099

// Response is a decoded reply. ID is the raw id literal.
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *serena.RPCError `json:"error,omitempty"`
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type NotificationHandler func(method string, params json.RawMessage)

type Hooks struct {
	OnSend       func(id, method string)
	OnResponse   func(id string, err *serena.RPCError)
	OnNotify     func(method string)
	OnDisconnect func(temporary bool)
}

type Client struct {
	transport Transport
	opts      *DialOptions
	logger    *log.Logger

	pendingMu sync.Mutex
	pending   map[string]chan *Response

	notifyMu sync.RWMutex
	onNotify NotificationHandler

	seq    atomic.Int64
	closed atomic.Bool
	hooks  *Hooks

	wg sync.WaitGroup
}

// New wraps t. The client owns t from now on and closes it in Close.
func New(t Transport, opts *DialOptions, hooks *Hooks) *Client {
	if hooks == nil {
		hooks = &Hooks{}
	}
	c := &Client{
		transport: t,
		opts:      opts.WithDefaults(),
		logger:    serena.NewLogger(log.Writer()),
		pending:   make(map[string]chan *Response),
		hooks:     hooks,
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

func (c *Client) Close() error {
	c.closed.Store(true)
	err := c.transport.Close()
	c.wg.Wait()
	return err
}

func (c *Client) IsConnected() bool { return c.transport.IsConnected() }

func (c *Client) SetNotificationHandler(h NotificationHandler) {
	c.notifyMu.Lock()
	c.onNotify = h
	c.notifyMu.Unlock()
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for msg := range c.transport.Recv() {
		if c.closed.Load() {
			continue
		}
		c.dispatch(msg)
	}

	c.failAllPending(&serena.TransportError{Op: "recv", Err: serena.ErrTransportClosed})
	if c.hooks.OnDisconnect != nil {
		c.hooks.OnDisconnect(false)
	}
}

func (c *Client) dispatch(raw []byte) {
	var probe struct {
		JSONRPC string           `json:"jsonrpc"`
		ID      json.RawMessage  `json:"id"`
		Method  string           `json:"method"`
		Result  json.RawMessage  `json:"result"`
		Error   *serena.RPCError `json:"error"`
		Params  json.RawMessage  `json:"params"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		c.logger.Printf("dispatch unmarshal error: %v", err)
		return
	}
	if probe.JSONRPC != serena.JsonrpcVersion {
		return
	}
	id := idKey(probe.ID)

	if id == "" && probe.Method == InternalDisconnectedMethod {
		c.failAllPending(&serena.TransportError{Op: "recv", Err: serena.ErrTransportClosed, Temporary: true})
		if c.hooks.OnDisconnect != nil {
			c.hooks.OnDisconnect(true)
		}
		return
	}

	if id == "" && probe.Method != "" {
		c.notifyMu.RLock()
		cb := c.onNotify
		c.notifyMu.RUnlock()
		if cb != nil {
			cb(probe.Method, probe.Params)
		}
		if c.hooks.OnNotify != nil {
			c.hooks.OnNotify(probe.Method)
		}
		return
	}
	if id == "" {
		return
	}

	c.pendingMu.Lock()
	ch := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()

	if ch != nil {
		ch <- &Response{JSONRPC: probe.JSONRPC, ID: probe.ID, Result: probe.Result, Error: probe.Error}
	}
	if c.hooks.OnResponse != nil {
		c.hooks.OnResponse(id, probe.Error)
	}
}

func idKey(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	return string(raw)
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- &Response{
			JSONRPC: serena.JsonrpcVersion,
			ID:      json.RawMessage(id),
			Error:   &serena.RPCError{Code: ClientTransportClosedCode, Message: err.Error()},
		}
	}
	c.pending = make(map[string]chan *Response)
}

// Call sends method with params and waits for the matching reply. A JSON-RPC
// error reply comes back as *serena.RPCError.
func (c *Client) Call(ctx context.Context, method string, params any) (*Response, error) {
	id := c.seq.Add(1)
	key := strconv.FormatInt(id, 10)
	payload, err := json.Marshal(request{JSONRPC: serena.JsonrpcVersion, ID: &id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	respC := make(chan *Response, 1)
	c.pendingMu.Lock()
	c.pending[key] = respC
	c.pendingMu.Unlock()
	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, key)
		c.pendingMu.Unlock()
	}

	if err := c.transport.Send(ctx, payload); err != nil {
		forget()
		return nil, err
	}
	if c.hooks.OnSend != nil {
		c.hooks.OnSend(key, method)
	}

	select {
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	case resp := <-respC:
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	}
}

// Notify sends method without an id. No reply is expected.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	payload, err := json.Marshal(request{JSONRPC: serena.JsonrpcVersion, Method: method, Params: params})
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, payload)
}
