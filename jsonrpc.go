package serena

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

/* =========================
   JSON-RPC 2.0 codec
   ========================= */

const JsonrpcVersion = "2.0"

const (
	// CodeDecodeFailure is the generic code used when a line cannot be decoded.
	CodeDecodeFailure = -1
	// CodeMethodNotFound is only used when Options.MethodNotFound is set.
	CodeMethodNotFound = -32601
)

// Request is one decoded input line. ID keeps the raw JSON literal of the id so
// it is echoed back exactly as received; a nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// HasID reports whether the request expects a reply.
func (r *Request) HasID() bool { return len(r.ID) > 0 }

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error: code=%d message=%s", e.Code, e.Message)
}

var emptyParams = json.RawMessage(`{}`)

// DecodeRequest parses a single line. Failures come back as *DecodeError.
func DecodeRequest(line []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, &DecodeError{ID: recoverID(line), Err: err}
	}

	id, err := parseID(fields["id"])
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	req := &Request{ID: id, Params: emptyParams}

	if raw, ok := fields["jsonrpc"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &req.JSONRPC); err != nil {
			return nil, &DecodeError{ID: id, Err: fmt.Errorf("jsonrpc: %w", err)}
		}
	}
	if raw, ok := fields["method"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &req.Method); err != nil {
			return nil, &DecodeError{ID: id, Err: fmt.Errorf("method: %w", err)}
		}
	}
	if raw, ok := fields["params"]; ok && !isNull(raw) {
		raw = bytes.TrimSpace(raw)
		if raw[0] != '{' {
			return nil, &DecodeError{ID: id, Err: errors.New("params must be an object")}
		}
		req.Params = raw
	}
	return req, nil
}

// parseID accepts string and number ids. Absent and null both mean "no id".
func parseID(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || isNull(raw) {
		return nil, nil
	}
	raw = bytes.TrimSpace(raw)
	switch {
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("id: %w", err)
		}
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("id: %w", err)
		}
	default:
		return nil, fmt.Errorf("id must be a string or a number, got %s", raw)
	}
	return raw, nil
}

// recoverID pulls the id out of a line that is not valid JSON, e.g. a
// truncated request. Only complete string or number literals count.
func recoverID(line []byte) json.RawMessage {
	res := gjson.GetBytes(line, "id")
	switch res.Type {
	case gjson.String, gjson.Number:
		if gjson.Valid(res.Raw) {
			return json.RawMessage(res.Raw)
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// EncodeResponse renders resp as one compact JSON line terminated by '\n'.
func EncodeResponse(resp *Response) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resultResponse(id json.RawMessage, result json.RawMessage) *Response {
	return &Response{JSONRPC: JsonrpcVersion, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, msg string) *Response {
	return &Response{
		JSONRPC: JsonrpcVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: msg},
	}
}
