package client

import (
	"context"
	"sync/atomic"
	"time"
)

// reconnector keeps a connection alive for a transport. It runs one connect
// attempt at a time, backs off between failures and lets senders wait for the
// next successful connect.
type reconnector struct {
	opts       *DialOptions
	connectedC chan struct{}
}

func newReconnector(opts *DialOptions) *reconnector {
	return &reconnector{opts: opts.WithDefaults(), connectedC: make(chan struct{}, 1)}
}

// connectFunc dials and serves one connection. It signals connected once the
// connection is usable and returns when it is gone. A nil error means the
// transport is shutting down and no retry should happen.
type connectFunc func(connected chan<- struct{}) error

// manage calls connect until it returns nil, stop is closed or the options'
// CancelCtx is done. Every lost connection is announced on recvC with an
// internal disconnect note so that pending calls fail fast.
func (r *reconnector) manage(connect connectFunc, recvC chan<- []byte, alive *atomic.Bool, stop <-chan struct{}) {
	opts := r.opts
	backoff := opts.ReconnectInitialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-stop:
			return
		case <-opts.CancelCtx.Done():
			return
		default:
		}

		connected := make(chan struct{}, 1)
		errC := make(chan error, 1)
		go func() { errC <- connect(connected) }()

		var err error
		select {
		case <-connected:
			alive.Store(true)
			backoff = opts.ReconnectInitialBackoff
			if attempt > 1 && opts.OnReconnected != nil {
				opts.OnReconnected()
			}
			select {
			case r.connectedC <- struct{}{}:
			default:
			}
			err = <-errC
		case err = <-errC:
		}
		alive.Store(false)

		if err == nil {
			return
		}
		select {
		case recvC <- makeInternalDisconnectedNote(err):
		default:
		}
		if opts.OnDisconnected != nil {
			opts.OnDisconnected(err)
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return
		}
		if opts.OnReconnectAttempt != nil {
			opts.OnReconnectAttempt(attempt, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		case <-opts.CancelCtx.Done():
			timer.Stop()
			return
		}
		backoff = min(opts.ReconnectMaxBackoff, time.Duration(float64(backoff)*1.8))
	}
}

// waitConnected blocks until the next successful connect or ctx is done.
func (r *reconnector) waitConnected(ctx context.Context) bool {
	select {
	case <-r.connectedC:
		return true
	case <-ctx.Done():
		return false
	}
}
