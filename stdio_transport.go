package serena

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// =========================
// Stdio server
// - one JSON-RPC request per line in, at most one reply line out
// - the blocking read runs on its own goroutine, processing stays sequential
// =========================

type StdioServer struct {
	d   *Dispatcher
	r   *bufio.Reader
	w   *bufio.Writer
	muW sync.Mutex
}

func NewStdioServer(d *Dispatcher, r io.Reader, w io.Writer) *StdioServer {
	return &StdioServer{
		d: d,
		r: bufio.NewReader(r),
		w: bufio.NewWriter(w),
	}
}

// Serve pumps lines until the input ends, which returns nil, or ctx is done.
// A stalled read cannot be interrupted; on cancellation the reader goroutine
// is left parked on it until the stream closes.
func (s *StdioServer) Serve(ctx context.Context) error {
	lines := make(chan []byte)
	errC := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go s.readLoop(lines, errC, done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errC:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &TransportError{Op: "read", Err: err}
		case line := <-lines:
			reply := s.d.Handle(ctx, line)
			if reply == nil {
				continue
			}
			if err := s.send(reply); err != nil {
				return err
			}
		}
	}
}

func (s *StdioServer) readLoop(lines chan<- []byte, errC chan<- error, done <-chan struct{}) {
	for {
		line, err := s.r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
		if err != nil {
			errC <- err
			return
		}
	}
}

func (s *StdioServer) send(payload []byte) error {
	s.muW.Lock()
	defer s.muW.Unlock()

	if _, err := s.w.Write(payload); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if err := s.w.Flush(); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}
