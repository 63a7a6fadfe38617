package serena

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/baalimago/go_away_boilerplate/pkg/debug"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type methodHandler func(ctx context.Context, req *Request) (any, error)

// Dispatcher turns one request line into at most one reply line. It holds no
// per-request state, so it can be shared by every transport and connection.
type Dispatcher struct {
	registry *Registry
	opts     *Options
	methods  map[string]methodHandler
}

func NewDispatcher(registry *Registry, opts *Options) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		opts:     opts.WithDefaults(),
	}
	d.methods = map[string]methodHandler{
		MethodInitialize: d.handleInitialize,
		MethodToolsList:  d.handleToolsList,
		MethodToolsCall:  d.handleToolsCall,
	}
	return d
}

// Handle processes one raw line. It returns the encoded reply including the
// trailing newline, or nil when nothing must be written.
func (d *Dispatcher) Handle(ctx context.Context, line []byte) []byte {
	if h := d.opts.OnMessage; h != nil {
		h(line)
	}

	req, err := DecodeRequest(line)
	if err != nil {
		d.opts.Logger.Printf("error processing request: %v", err)
		var de *DecodeError
		if errors.As(err, &de) && de.ID != nil {
			return d.encode(errorResponse(de.ID, CodeDecodeFailure, de.Err.Error()))
		}
		return nil
	}
	if d.opts.Debug {
		d.opts.Logger.Printf("request: %v", debug.IndentedJsonFmt(req))
	}

	ctx, span := d.opts.Tracer.Start(ctx, "jsonrpc "+req.Method,
		trace.WithAttributes(
			attribute.String("rpc.method", req.Method),
			attribute.Bool("rpc.notification", !req.HasID()),
		))
	defer span.End()

	handler, ok := d.methods[req.Method]
	if !ok {
		span.SetAttributes(attribute.Bool("rpc.dropped", true))
		if d.opts.MethodNotFound && req.HasID() {
			return d.encode(errorResponse(req.ID, CodeMethodNotFound, "Method not found"))
		}
		if d.opts.Debug {
			d.opts.Logger.Printf("dropping unrecognized method %q", req.Method)
		}
		return nil
	}

	result, err := handler(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.opts.Logger.Printf("error processing request: %v", err)
		if !req.HasID() {
			return nil
		}
		return d.encode(errorResponse(req.ID, CodeDecodeFailure, err.Error()))
	}
	if !req.HasID() {
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		d.opts.Logger.Printf("marshal %s result: %v", req.Method, err)
		return d.encode(errorResponse(req.ID, CodeDecodeFailure, err.Error()))
	}
	return d.encode(resultResponse(req.ID, raw))
}

func (d *Dispatcher) encode(resp *Response) []byte {
	out, err := EncodeResponse(resp)
	if err != nil {
		d.opts.Logger.Printf("encode response: %v", err)
		return nil
	}
	if d.opts.Debug {
		d.opts.Logger.Printf("response: %s", out)
	}
	return out
}

func (d *Dispatcher) handleInitialize(_ context.Context, _ *Request) (any, error) {
	d.opts.Logger.Printf("initializing %s %s", d.opts.ServerInfo.Name, d.opts.ServerInfo.Version)
	return InitializeResult{
		ProtocolVersion: d.opts.ProtocolVersion,
		Capabilities:    Capabilities{Tools: ToolsCapability{}},
		ServerInfo:      d.opts.ServerInfo,
	}, nil
}

func (d *Dispatcher) handleToolsList(_ context.Context, _ *Request) (any, error) {
	return ToolsListResult{Tools: d.registry.Descriptors()}, nil
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *Request) (any, error) {
	params, err := decodeCallParams(req.Params)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("mcp.tool", params.Name))

	res, err := d.registry.Invoke(ctx, params.Name, params.Arguments)
	if err != nil {
		var perr *PanicError
		if errors.As(err, &perr) {
			d.opts.Logger.Printf("tool %s panicked: %v", perr.Tool, perr.Value)
		} else {
			d.opts.Logger.Printf("error in tool %s: %v", params.Name, err)
		}
	}
	return res, nil
}
