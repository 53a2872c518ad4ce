package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getmockd/mockserver/pkg/codec"
	"github.com/getmockd/mockserver/pkg/httputil"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
)

// Handler adapts the Dispatcher to net/http. Each request body is fully
// accumulated before dispatch; a body that fails mid-transfer is never
// dispatched and the connection is dropped without a response.
type Handler struct {
	dispatcher  *Dispatcher
	maxBodySize int64
	log         *slog.Logger
	metrics     *metrics.Collector
}

// NewHandler creates a handler. A maxBodySize <= 0 means unbounded.
func NewHandler(d *Dispatcher, maxBodySize int64) *Handler {
	return &Handler{
		dispatcher:  d,
		maxBodySize: maxBodySize,
		log:         logging.Nop(),
	}
}

// SetLogger sets the operational logger.
func (h *Handler) SetLogger(log *slog.Logger) {
	if log != nil {
		h.log = log
	}
}

// SetMetrics sets the collector aborted requests are counted on.
func (h *Handler) SetMetrics(c *metrics.Collector) {
	h.metrics = c
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxBodySize > 0 && r.ContentLength > h.maxBodySize {
		h.tooLarge(w)
		return
	}

	acc := NewBodyAccumulator(h.maxBodySize)
	if _, err := acc.ReadFrom(r.Body); err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			h.tooLarge(w)
			return
		}
		h.metrics.RecordAborted()
		h.log.Debug("request body aborted", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
		panic(http.ErrAbortHandler)
	}

	body, err := acc.Take()
	if err != nil {
		h.log.Error("body not dispatchable", "error", err)
		panic(http.ErrAbortHandler)
	}

	req := codec.FromHTTPRequest(r, body)
	resp := h.dispatcher.Dispatch(r.Context(), req)

	if err := codec.WriteResponse(w, resp); err != nil {
		h.log.Debug("failed to write response", "path", req.Path, "error", err)
	}
}

func (h *Handler) tooLarge(w http.ResponseWriter) {
	resp := httputil.Error(http.StatusRequestEntityTooLarge, httputil.CodeBodyTooLarge,
		fmt.Sprintf("request body exceeds %d bytes", h.maxBodySize))
	resp.Headers = resp.Headers.Set("Connection", "close")
	_ = codec.WriteResponse(w, resp)
}
