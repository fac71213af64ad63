package rpc

import (
	"errors"
	"sync"
)

// ErrorHandlers maps application error types to server error data. They are
// consulted in registration order for errors that are not already *Error.
type ErrorHandlers struct {
	mutex    sync.RWMutex
	handlers []func(err error) (any, int, bool)
}

// NewErrorHandlers creates an empty error handler registry.
func NewErrorHandlers() *ErrorHandlers {
	return &ErrorHandlers{}
}

// HandleError registers fn for errors matching E with errors.As. fn returns
// the error data and an HTTP status; a zero status means 500.
func HandleError[E error](h *ErrorHandlers, fn func(err E) (data any, status int)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.handlers = append(h.handlers, func(err error) (any, int, bool) {
		var target E
		if !errors.As(err, &target) {
			return nil, 0, false
		}
		data, status := fn(target)
		return data, status, true
	})
}

// Handle runs the first matching handler.
func (h *ErrorHandlers) Handle(err error) (any, int, bool) {
	if h == nil {
		return nil, 0, false
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, handler := range h.handlers {
		if data, status, ok := handler(err); ok {
			return data, status, true
		}
	}
	return nil, 0, false
}
