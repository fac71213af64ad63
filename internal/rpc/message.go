package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"norelock.dev/rpcsite/pkg/jsonrpc"
)

// Request is one validated request object of a payload.
type Request struct {
	// Method is the name of the method to be invoked.
	Method string

	// Params is the raw params member; nil when absent.
	Params json.RawMessage

	// ID is the raw id member; nil when absent.
	ID json.RawMessage
}

// IsNotification returns true when the request has no id member. An id of
// null is not a notification.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// parseRequest validates the structure of a single request object. On
// failure the returned id is whatever id could be recovered, or nil.
func parseRequest(raw json.RawMessage) (*Request, json.RawMessage, *Error) {
	var fields map[string]json.RawMessage
	if !isJSONObject(raw) || json.Unmarshal(raw, &fields) != nil {
		return nil, nil, NewInvalidRequestError("Invalid JSON: %s", compact(raw))
	}

	id, hasID := fields["id"]
	if hasID && !validID(id) {
		return nil, nil, NewInvalidRequestError("Invalid id: %s", compact(id))
	}
	if !hasID {
		id = nil
	}

	var version string
	if v, ok := fields["jsonrpc"]; !ok || json.Unmarshal(v, &version) != nil || version != jsonrpc.Version {
		return nil, id, NewInvalidRequestError("JSON-RPC version must be \"2.0\": %s", compact(raw))
	}

	var method string
	if m, ok := fields["method"]; !ok || json.Unmarshal(m, &method) != nil {
		return nil, id, NewInvalidRequestError("Missing or invalid method: %s", compact(raw))
	}

	req := &Request{Method: method, ID: id}
	if p, ok := fields["params"]; ok {
		req.Params = p
	}
	return req, id, nil
}

func validID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	if len(id) == 0 {
		return false
	}
	switch id[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// decodeJSON decodes keeping numbers as json.Number so that integers and
// reals can be told apart.
func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after top-level value")
	}
	return nil
}

func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func newResultResponse(id json.RawMessage, result any) (*jsonrpc.Response, *Error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, NewInternalError("Failed to encode result: %v", err).WithCause(err)
	}
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Result: data}, nil
}

func newErrorResponse(id json.RawMessage, err *Error) *jsonrpc.Response {
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Error: err.Object()}
}

// WriteError writes err as a JSON-RPC error response with a null id. It
// serves transport-level failures that happen before dispatch, such as
// authentication or rate limiting.
func WriteError(w http.ResponseWriter, err *Error) {
	body, _ := json.Marshal(newErrorResponse(nil, err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	_, _ = w.Write(body)
}
