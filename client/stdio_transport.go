package client

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	serena "github.com/llmdo/serena-mcp"
)

// =========================
// Stdio transport
// - one message per line, the framing serena-mcp speaks on stdin/stdout
// - any r/w pair, or a spawned server subprocess
// =========================

type StdioTransport struct {
	r     *bufio.Reader
	w     *bufio.Writer
	muW   sync.Mutex
	recvC chan []byte
	alive atomic.Bool
	wg    sync.WaitGroup

	opts *DialOptions

	closer io.Closer
	cmd    *exec.Cmd
}

func NewStdioTransport(r io.Reader, w io.Writer, opts *DialOptions) *StdioTransport {
	t := &StdioTransport{
		r:     bufio.NewReader(r),
		w:     bufio.NewWriter(w),
		recvC: make(chan []byte, 128),
		opts:  opts.WithDefaults(),
	}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	t.alive.Store(true)
	t.wg.Add(1)
	go t.readLoop()
	return t
}

// NewStdioSubprocess starts serverPath and talks to it over its stdin and
// stdout. The child's stderr is passed through.
func NewStdioSubprocess(serverPath string, args []string, opts *DialOptions) (*StdioTransport, error) {
	cmd := exec.Command(serverPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	t := NewStdioTransport(stdout, stdin, opts)
	t.cmd = cmd
	return t, nil
}

func (t *StdioTransport) readLoop() {
	defer t.wg.Done()
	defer close(t.recvC)
	defer t.alive.Store(false)

	var readErr error
	defer func() {
		if h := t.opts.OnDisconnected; h != nil {
			h(readErr)
		}
	}()

	for {
		line, err := t.r.ReadBytes('\n')
		if msg := bytes.TrimSpace(line); len(msg) > 0 {
			if h := t.opts.OnMessage; h != nil {
				h(msg)
			}
			select {
			case t.recvC <- msg:
			case <-t.opts.CancelCtx.Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			return
		}
	}
}

func (t *StdioTransport) Send(_ context.Context, payload []byte) error {
	if !t.alive.Load() {
		return &serena.TransportError{Op: "write", Err: serena.ErrTransportClosed}
	}
	t.muW.Lock()
	defer t.muW.Unlock()

	if _, err := t.w.Write(bytes.TrimRight(payload, "\n")); err != nil {
		return &serena.TransportError{Op: "write", Err: err}
	}
	if err := t.w.WriteByte('\n'); err != nil {
		return &serena.TransportError{Op: "write", Err: err}
	}
	if err := t.w.Flush(); err != nil {
		return &serena.TransportError{Op: "write", Err: err}
	}
	return nil
}

func (t *StdioTransport) Recv() <-chan []byte { return t.recvC }

// Close closes the write side, which ends the server's input, then waits for
// the server to close its output. Messages still in flight are discarded. A
// spawned subprocess is reaped.
func (t *StdioTransport) Close() error {
	t.muW.Lock()
	_ = t.w.Flush()
	var err error
	if t.closer != nil {
		err = t.closer.Close()
	}
	t.muW.Unlock()

	go func() {
		for range t.recvC {
		}
	}()
	t.wg.Wait()

	if t.cmd != nil {
		if werr := t.cmd.Wait(); err == nil {
			err = werr
		}
	}
	return err
}

func (t *StdioTransport) IsConnected() bool { return t.alive.Load() }
