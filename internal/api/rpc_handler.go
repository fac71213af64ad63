package api

import (
	"errors"
	"io"
	"net/http"

	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/utils"
)

// RPCHandler serves JSON-RPC POST requests of one site.
type RPCHandler struct {
	site         *rpc.Site
	maxBodyBytes int64
	logger       *utils.Logger
}

// NewRPCHandler creates a handler for site. A maxBodyBytes of zero
// disables the body limit.
func NewRPCHandler(site *rpc.Site, maxBodyBytes int64, logger *utils.Logger) *RPCHandler {
	return &RPCHandler{
		site:         site,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.Named("rpc_handler").With("site", site.Name()),
	}
}

// ServeHTTP reads the payload, dispatches it and writes the result.
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rpc.WriteError(w, rpc.NewInvalidRequestError("Request body exceeds %d bytes", tooLarge.Limit).
				WithStatus(http.StatusRequestEntityTooLarge))
			return
		}
		h.logger.Warn("Failed to read request body", "error", err)
		rpc.WriteError(w, rpc.NewParseError("Failed to read request body: %v", err))
		return
	}

	ctx := rpc.WithTransport(r.Context(), "http")
	ctx = rpc.WithBaseURL(ctx, baseURL(r))

	result := h.site.Dispatch(ctx, payload, r.Header.Get("Content-Type"))

	for key, values := range result.Header {
		w.Header()[key] = values
	}
	w.WriteHeader(result.Status)
	if len(result.Body) > 0 {
		if _, err := w.Write(result.Body); err != nil {
			h.logger.Debug("Failed to write response", "error", err)
		}
	}
}

// baseURL is the scheme and host the request was addressed to.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
