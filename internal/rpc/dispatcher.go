package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"norelock.dev/rpcsite/internal/utils"
	"norelock.dev/rpcsite/pkg/jsonrpc"
)

// Result is what the transport writes back.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// Observer receives per-call outcomes, e.g. for metrics. Code is 0 on success.
type Observer interface {
	ObserveCall(method string, code int, elapsed time.Duration)
	ObserveBatch(size int)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Debug attaches a stack trace to unexpected server errors.
	Debug bool

	// BatchConcurrency bounds the batch elements run at once; 0 or 1 runs
	// them sequentially.
	BatchConcurrency int

	// Observer is notified of every call. Optional.
	Observer Observer
}

var allowedContentTypes = map[string]bool{
	"application/json":        true,
	"application/json-rpc":    true,
	"application/jsonrequest": true,
}

// Dispatcher runs JSON-RPC payloads against a registry. It holds no
// per-request state and may be used concurrently once registration is done.
type Dispatcher struct {
	registry *Registry
	handlers *ErrorHandlers
	options  DispatcherOptions
	logger   *utils.Logger
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, handlers *ErrorHandlers, options DispatcherOptions, logger *utils.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		handlers: handlers,
		options:  options,
		logger:   logger.Named("dispatcher"),
	}
}

// IsJSONContentType reports whether a Content-Type header names JSON.
func IsJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if allowedContentTypes[mediaType] {
		return true
	}
	return strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")
}

// Dispatch processes an HTTP body with its Content-Type.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, contentType string) Result {
	if !IsJSONContentType(contentType) {
		return d.payloadError(NewParseError("Invalid mime type for JSON: %s, use header Content-Type: application/json", contentType))
	}
	return d.DispatchJSON(ctx, body)
}

// DispatchJSON processes a payload already known to be JSON.
func (d *Dispatcher) DispatchJSON(ctx context.Context, body []byte) Result {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return d.payloadError(NewParseError("Invalid JSON: %s", string(body)))
	}

	if isJSONArray(body) {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			return d.payloadError(NewParseError("Invalid JSON: %s", string(body)))
		}
		return d.dispatchBatch(ctx, batch)
	}

	res, status := d.handle(ctx, body)
	if res == nil {
		return Result{Status: http.StatusNoContent, Header: http.Header{}}
	}
	return d.encode(res, status)
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, batch []json.RawMessage) Result {
	if len(batch) == 0 {
		return d.payloadError(NewInvalidRequestError("Empty array: []"))
	}
	if d.options.Observer != nil {
		d.options.Observer.ObserveBatch(len(batch))
	}

	responses := make([]*jsonrpc.Response, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	if d.options.BatchConcurrency > 1 {
		g.SetLimit(d.options.BatchConcurrency)
	} else {
		g.SetLimit(1)
	}
	for i, raw := range batch {
		i, raw := i, raw
		g.Go(func() error {
			responses[i], _ = d.handle(gctx, raw)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*jsonrpc.Response, 0, len(responses))
	for _, res := range responses {
		if res != nil {
			out = append(out, res)
		}
	}
	if len(out) == 0 {
		return Result{Status: http.StatusNoContent, Header: http.Header{}}
	}
	return d.encode(out, http.StatusOK)
}

// handle runs one request object. A nil response means a successful
// notification. Panics outside the method call become an InternalError.
func (d *Dispatcher) handle(ctx context.Context, raw json.RawMessage) (res *jsonrpc.Response, status int) {
	start := time.Now()

	var id json.RawMessage
	method := ""
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic while handling request", fmt.Errorf("panic: %v", r), "method", method, "stack", string(debug.Stack()))
			rpcErr := NewInternalError("Internal error").WithStatus(http.StatusInternalServerError)
			d.observe(method, rpcErr.Code, start)
			res, status = newErrorResponse(id, rpcErr), rpcErr.HTTPStatus()
		}
	}()

	req, id, rpcErr := parseRequest(raw)
	if rpcErr != nil {
		d.observe("", rpcErr.Code, start)
		return newErrorResponse(id, rpcErr), rpcErr.HTTPStatus()
	}

	entry, ok := d.registry.Resolve(req.Method)
	if !ok {
		rpcErr = NewMethodNotFoundError(req.Method)
		d.observe("", rpcErr.Code, start)
		return newErrorResponse(req.ID, rpcErr), rpcErr.HTTPStatus()
	}

	method = entry.Name

	if req.IsNotification() && !entry.Notification {
		rpcErr = NewInvalidRequestError("The method '%s' doesn't allow Notification Request object (without an 'id' member)", entry.Name)
		d.observe(entry.Name, rpcErr.Code, start)
		return newErrorResponse(nil, rpcErr), rpcErr.HTTPStatus()
	}

	args, rpcErr := Bind(entry, req.Params)
	if rpcErr != nil {
		d.observe(entry.Name, rpcErr.Code, start)
		return newErrorResponse(req.ID, rpcErr), rpcErr.HTTPStatus()
	}

	result, err := d.invoke(ctx, entry, req, args)
	if err != nil {
		rpcErr = d.translate(entry, req, err)
		d.observe(entry.Name, rpcErr.Code, start)
		return newErrorResponse(req.ID, rpcErr), rpcErr.HTTPStatus()
	}

	d.observe(entry.Name, 0, start)
	if req.IsNotification() {
		return nil, http.StatusNoContent
	}

	res, rpcErr = newResultResponse(req.ID, result)
	if rpcErr != nil {
		d.logger.Error("Failed to encode result", rpcErr, "method", entry.Name)
		return newErrorResponse(req.ID, rpcErr), rpcErr.HTTPStatus()
	}
	return res, http.StatusOK
}

// panicError carries a recovered panic and the stack it happened on.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (d *Dispatcher) invoke(ctx context.Context, entry *MethodEntry, req *Request, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()

	call := &Call{
		Method:       entry.Name,
		ID:           req.ID,
		Notification: req.IsNotification(),
		Args:         args,
		Entry:        entry,
	}
	return entry.invoke(ctx, call)
}

// translate converts a method error to a JSON-RPC error: *Error values are
// kept, registered handlers come next, anything else is a generic server
// error.
func (d *Dispatcher) translate(entry *MethodEntry, req *Request, err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	if data, status, ok := d.handlers.Handle(err); ok {
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return NewServerError(data).WithStatus(status).WithCause(err)
	}

	d.logger.Error("Unexpected error", err, "method", entry.Name, "id", string(req.ID))

	data := map[string]any{"message": err.Error()}
	if d.options.Debug {
		var pe *panicError
		if errors.As(err, &pe) {
			data["stack"] = string(pe.stack)
		} else {
			data["stack"] = string(debug.Stack())
		}
	}
	return NewServerError(data).WithCause(err)
}

func (d *Dispatcher) observe(method string, code ErrorCode, start time.Time) {
	if d.options.Observer != nil {
		d.options.Observer.ObserveCall(method, int(code), time.Since(start))
	}
}

func (d *Dispatcher) payloadError(err *Error) Result {
	return d.encode(newErrorResponse(nil, err), err.HTTPStatus())
}

func (d *Dispatcher) encode(v any, status int) Result {
	body, err := json.Marshal(v)
	if err != nil {
		d.logger.Error("Failed to encode response", err)
		body, _ = json.Marshal(newErrorResponse(nil, NewInternalError("Failed to encode response: %v", err)))
		status = http.StatusInternalServerError
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return Result{Status: status, Header: header, Body: body}
}
