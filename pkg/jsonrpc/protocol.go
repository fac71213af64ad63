// Package jsonrpc provides JSON-RPC 2.0 wire types and an HTTP client.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only protocol version accepted.
const Version = "2.0"

// JSON-RPC 2.0 error codes
const (
	// Parse error: Invalid JSON was received by the server.
	CodeParseError = -32700

	// Invalid Request: The JSON sent is not a valid Request object.
	CodeInvalidRequest = -32600

	// Method not found: The method does not exist / is not available.
	CodeMethodNotFound = -32601

	// Invalid params: Invalid method parameter(s).
	CodeInvalidParams = -32602

	// Internal error: Internal JSON-RPC error.
	CodeInternalError = -32603

	// Server error: Reserved for implementation-defined server-errors.
	CodeServerError = -32000
)

// Protocol errors
var (
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrInvalidVersion  = errors.New("invalid JSON-RPC version")
	ErrInvalidResponse = errors.New("invalid response")
)

var nullID = json.RawMessage("null")

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	// JSONRPC is the version of the JSON-RPC protocol. Must be "2.0".
	JSONRPC string `json:"jsonrpc"`

	// Method is the name of the method to be invoked.
	Method string `json:"method"`

	// Params is the parameter values to be used during the invocation of the method.
	Params json.RawMessage `json:"params,omitempty"`

	// ID is the identifier established by the client. A nil ID is omitted
	// and marks a notification; the literal null is kept.
	ID json.RawMessage `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response. Exactly one of Result and
// Error is serialized.
type Response struct {
	JSONRPC string
	ID      json.RawMessage
	Result  json.RawMessage
	Error   *Error
}

type responseWire struct {
	ID      json.RawMessage  `json:"id"`
	JSONRPC string           `json:"jsonrpc"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

// MarshalJSON writes result as null rather than dropping it.
func (r Response) MarshalJSON() ([]byte, error) {
	w := responseWire{ID: r.ID, JSONRPC: r.JSONRPC, Error: r.Error}
	if len(w.ID) == 0 {
		w.ID = nullID
	}
	if r.Error == nil {
		result := r.Result
		if len(result) == 0 {
			result = nullID
		}
		w.Result = &result
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a response envelope. A result member holding null
// is kept as the literal null so it differs from a missing result.
func (r *Response) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return ErrInvalidResponse
	}

	*r = Response{}
	if raw, ok := fields["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &r.JSONRPC); err != nil {
			return fmt.Errorf("jsonrpc: %w", err)
		}
	}
	if raw, ok := fields["id"]; ok {
		r.ID = raw
	}
	if raw, ok := fields["result"]; ok {
		r.Result = raw
	}
	if raw, ok := fields["error"]; ok && !bytes.Equal(bytes.TrimSpace(raw), nullID) {
		r.Error = &Error{}
		if err := json.Unmarshal(raw, r.Error); err != nil {
			return fmt.Errorf("error: %w", err)
		}
	}
	return nil
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	// Code is the error code.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Name is the error kind, e.g. "InvalidParamsError".
	Name string `json:"name,omitempty"`

	// Data is additional information about the error.
	Data json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// DataMessage returns data.message when the error data carries one.
func (e *Error) DataMessage() string {
	var data struct {
		Message string `json:"message"`
	}
	if len(e.Data) == 0 || json.Unmarshal(e.Data, &data) != nil {
		return ""
	}
	return data.Message
}

// NewRequest creates a new JSON-RPC 2.0 request.
func NewRequest(method string, params any, id any) (*Request, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return nil, err
		}
	}

	idJSON, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}

	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  paramsJSON,
		ID:      idJSON,
	}, nil
}

// NewNotification creates a new JSON-RPC 2.0 notification (a request without an ID).
func NewNotification(method string, params any) (*Request, error) {
	req, err := NewRequest(method, params, nil)
	if err != nil {
		return nil, err
	}
	req.ID = nil
	return req, nil
}

// IsNotification returns true if the request has no id member.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// UnmarshalParams unmarshals the request parameters into the provided value.
func (r *Request) UnmarshalParams(v any) error {
	if r.Params == nil {
		return nil
	}
	return json.Unmarshal(r.Params, v)
}

// ParseResponse parses a JSON-RPC 2.0 response.
func ParseResponse(data []byte) (*Response, error) {
	var res Response
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if res.JSONRPC != Version {
		return nil, ErrInvalidVersion
	}

	if (res.Error != nil) == (res.Result != nil) {
		return nil, ErrInvalidResponse
	}

	return &res, nil
}

// ParseResponses parses either a single response or a batch of responses.
func ParseResponses(data []byte) ([]*Response, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] != '[' {
		res, err := ParseResponse(data)
		if err != nil {
			return nil, err
		}
		return []*Response{res}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	out := make([]*Response, 0, len(raw))
	for _, item := range raw {
		res, err := ParseResponse(item)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// UnmarshalResult unmarshals the response result into the provided value.
func (r *Response) UnmarshalResult(v any) error {
	if r.Result == nil {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

// UnmarshalErrorData unmarshals the error data into the provided value.
func (r *Response) UnmarshalErrorData(v any) error {
	if r.Error == nil || r.Error.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Error.Data, v)
}
