package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// Client errors
var (
	ErrClientClosed = errors.New("client closed")
	ErrTimeout      = errors.New("request timeout")
	ErrCanceled     = errors.New("request canceled")
	ErrNoResponse   = errors.New("no response for request")
)

// HTTPError is returned when the server answers with a non-JSON error body.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client is a JSON-RPC 2.0 client over HTTP.
type Client struct {
	// endpoint is the URL of the JSON-RPC server.
	endpoint string

	// httpClient is the HTTP client used to make requests.
	httpClient *http.Client

	// headers are the HTTP headers to include in requests.
	headers map[string]string

	// nextID is the last request ID used.
	nextID atomic.Int64

	// closed indicates whether the client is closed.
	closed atomic.Bool

	// mutex is used to synchronize access to the headers map.
	mutex sync.RWMutex
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used to make requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader adds an HTTP header to include in requests.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHeaders sets the HTTP headers to include in requests.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		maps.Copy(c.headers, headers)
	}
}

// WithBearerToken authenticates requests with a bearer token.
func WithBearerToken(token string) ClientOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// NewClient creates a new JSON-RPC 2.0 client.
func NewClient(endpoint string, options ...ClientOption) *Client {
	client := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// SetHeader sets a header on subsequent requests.
func (c *Client) SetHeader(key, value string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.headers[key] = value
}

// Call makes a request and decodes its result into result, which may be nil.
// A JSON-RPC error response is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	req, err := NewRequest(method, params, c.nextID.Add(1))
	if err != nil {
		return err
	}

	responses, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if len(responses) != 1 {
		return ErrNoResponse
	}

	res := responses[0]
	if res.Error != nil {
		return res.Error
	}
	if result != nil {
		return res.UnmarshalResult(result)
	}
	return nil
}

// Notify sends a notification. The server answers a successful notification
// with no body; an error response is returned as *Error.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	req, err := NewNotification(method, params)
	if err != nil {
		return err
	}

	responses, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	for _, res := range responses {
		if res.Error != nil {
			return res.Error
		}
	}
	return nil
}

// Batch sends calls as one batch. Responses are matched to calls by id;
// notifications get an empty BatchResponse unless the server reported an
// error without an id.
func (c *Client) Batch(ctx context.Context, calls []BatchCall) ([]BatchResponse, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	batch := make([]*Request, len(calls))
	for i, call := range calls {
		var (
			req *Request
			err error
		)
		if call.Notify {
			req, err = NewNotification(call.Method, call.Params)
		} else {
			req, err = NewRequest(call.Method, call.Params, c.nextID.Add(1))
		}
		if err != nil {
			return nil, err
		}
		batch[i] = req
	}

	responses, err := c.send(ctx, batch)
	if err != nil {
		return nil, err
	}

	results := make([]BatchResponse, len(calls))
	for _, res := range responses {
		for j, call := range calls {
			if call.Notify || !bytes.Equal(res.ID, batch[j].ID) {
				continue
			}
			if res.Error != nil {
				results[j] = BatchResponse{Error: res.Error}
				break
			}
			if call.Result != nil {
				if err := res.UnmarshalResult(call.Result); err != nil {
					results[j] = BatchResponse{Error: &Error{
						Code:    CodeInternalError,
						Message: fmt.Sprintf("Failed to unmarshal result: %v", err),
					}}
					break
				}
			}
			results[j] = BatchResponse{Result: call.Result}
			break
		}
	}

	return results, nil
}

// Close closes the client.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

// send posts a request or batch. A 204 yields no responses.
func (c *Client) send(ctx context.Context, payload any) ([]*Response, error) {
	reqData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqData))
	if err != nil {
		return nil, err
	}

	c.mutex.RLock()
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	c.mutex.RUnlock()

	httpRes, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return nil, ErrCanceled
		}
		return nil, err
	}
	defer httpRes.Body.Close()

	resData, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, err
	}

	if httpRes.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	// Error responses carry a JSON-RPC envelope with a 4xx/5xx status.
	if !strings.HasPrefix(httpRes.Header.Get("Content-Type"), "application/json") {
		if httpRes.StatusCode != http.StatusOK {
			return nil, &HTTPError{StatusCode: httpRes.StatusCode, Body: string(resData)}
		}
	}

	responses, err := ParseResponses(resData)
	if err != nil {
		if httpRes.StatusCode != http.StatusOK {
			return nil, &HTTPError{StatusCode: httpRes.StatusCode, Body: string(resData)}
		}
		return nil, err
	}
	return responses, nil
}

// BatchCall represents a single call in a batch request.
type BatchCall struct {
	// Method is the name of the method to be invoked.
	Method string

	// Params is the parameter values to be used during the invocation of the method.
	Params any

	// Result is a pointer to a value to store the result of the call.
	Result any

	// Notify sends the call without an id.
	Notify bool
}

// BatchResponse represents a single response in a batch response.
type BatchResponse struct {
	// Result is the result of the method invocation.
	Result any

	// Error is the error object if there was an error invoking the method.
	Error *Error
}
