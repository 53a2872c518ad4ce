package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getmockd/mockserver/pkg/httputil"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/proxy"
)

// Control plane paths. They are only commands when sent with PUT.
const (
	PathStop      = "/stop"
	PathDumpToLog = "/dumpToLog"
	PathReset     = "/reset"
	PathClear     = "/clear"
)

// AllowedMethods is sent with 405 responses.
const AllowedMethods = "GET, POST, PUT"

// Command names, as recorded in metrics and logs.
const (
	CommandStop        = "stop"
	CommandDumpToLog   = "dumpToLog"
	CommandReset       = "reset"
	CommandClear       = "clear"
	CommandExpectation = "expectation"
	CommandMatch       = "match"
	CommandProxy       = "proxy"
	CommandUnsupported = "unsupported"
)

// MatchingEngine stores expectations and answers data-plane requests.
// Implementations synchronize their own state.
type MatchingEngine interface {
	Find(req *mock.Request) *mock.Response
	Register(matcher *mock.RequestMatcher, times mock.Times, resp *mock.Response) string
	Reset()
	Clear(template *mock.RequestMatcher) int
	Dump(template *mock.RequestMatcher) int
}

// Codec decodes control plane request bodies.
type Codec interface {
	DecodeExpectation(body []byte) (*mock.Expectation, error)
	DecodeMatcher(body []byte) (*mock.RequestMatcher, error)
}

// Forwarder produces data-plane responses in proxy mode.
type Forwarder interface {
	Proxy(ctx context.Context, req *mock.Request) (*mock.Response, error)
}

// Dispatcher turns every request into exactly one response.
//
// PUT requests are control plane commands: /stop, /dumpToLog, /reset and
// /clear, with any other path registering an expectation. GET and POST are
// data plane requests, answered by the Forwarder when one is set and by
// the MatchingEngine otherwise. Every other method is refused with 405.
type Dispatcher struct {
	Engine MatchingEngine
	Codec  Codec
	// Forwarder, when set, puts the data plane in proxy mode.
	Forwarder Forwarder
	// OnStop is called after /stop is accepted. It must not block.
	OnStop func()

	Log     *slog.Logger
	Metrics *metrics.Collector
}

// NewDispatcher creates a mock-mode dispatcher.
func NewDispatcher(engine MatchingEngine, codec Codec) *Dispatcher {
	return &Dispatcher{
		Engine: engine,
		Codec:  codec,
		Log:    logging.Nop(),
	}
}

// classify names the branch a request takes. It looks at method and path
// only.
func (d *Dispatcher) classify(req *mock.Request) (plane, command string) {
	switch req.Method {
	case http.MethodPut:
		switch req.Path {
		case PathStop:
			return metrics.PlaneControl, CommandStop
		case PathDumpToLog:
			return metrics.PlaneControl, CommandDumpToLog
		case PathReset:
			return metrics.PlaneControl, CommandReset
		case PathClear:
			return metrics.PlaneControl, CommandClear
		default:
			return metrics.PlaneControl, CommandExpectation
		}
	case http.MethodGet, http.MethodPost:
		if d.Forwarder != nil {
			return metrics.PlaneData, CommandProxy
		}
		return metrics.PlaneData, CommandMatch
	default:
		return metrics.PlaneData, CommandUnsupported
	}
}

// Dispatch produces the response for req. It never returns nil; a panic in
// any branch becomes a 500, and a response without a final status (200-599)
// becomes a 500, or a 502 when it came through the Forwarder.
func (d *Dispatcher) Dispatch(ctx context.Context, req *mock.Request) (resp *mock.Response) {
	log := d.Log
	if log == nil {
		log = logging.Nop()
	}
	plane, command := d.classify(req)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during dispatch",
				"panic", r,
				"command", command,
				"method", req.Method,
				"path", req.Path,
				"stack", string(debug.Stack()),
			)
			resp = httputil.Error(http.StatusInternalServerError, httputil.CodeInternal, "internal server error")
		} else if resp == nil || !mock.IsFinalStatus(resp.StatusCode) {
			resp = invalidStatus(log, command, resp)
		}
		d.Metrics.RecordDispatch(plane, command, resp.StatusCode)
	}()

	switch command {
	case CommandStop:
		log.Info("stop requested", "remote", req.RemoteAddr)
		if d.OnStop != nil {
			d.OnStop()
		}
		return httputil.Empty(http.StatusAccepted)

	case CommandDumpToLog:
		template, err := d.Codec.DecodeMatcher(req.Body)
		if err != nil {
			return malformed(log, command, err)
		}
		n := d.Engine.Dump(template)
		log.Debug("dump complete", "count", n)
		return httputil.Empty(http.StatusAccepted)

	case CommandReset:
		d.Engine.Reset()
		log.Info("expectations reset")
		return httputil.Empty(http.StatusAccepted)

	case CommandClear:
		template, err := d.Codec.DecodeMatcher(req.Body)
		if err != nil {
			return malformed(log, command, err)
		}
		n := d.Engine.Clear(template)
		log.Info("expectations cleared", "count", n)
		return httputil.Empty(http.StatusAccepted)

	case CommandExpectation:
		exp, err := d.Codec.DecodeExpectation(req.Body)
		if err != nil {
			return malformed(log, command, err)
		}
		times := exp.EffectiveTimes()
		exp.ID = d.Engine.Register(exp.HTTPRequest, times, exp.HTTPResponse)
		exp.Times = &times
		log.Info("expectation registered", "id", exp.ID, "path", req.Path)
		return httputil.JSON(http.StatusCreated, exp)

	case CommandProxy:
		return d.forward(ctx, log, req)

	case CommandMatch:
		return d.match(ctx, log, req)

	default:
		resp := httputil.Error(http.StatusMethodNotAllowed, httputil.CodeMethodNotAllowed,
			fmt.Sprintf("method %s is not supported", req.Method))
		resp.Headers = resp.Headers.Set("Allow", AllowedMethods)
		return resp
	}
}

func (d *Dispatcher) match(ctx context.Context, log *slog.Logger, req *mock.Request) *mock.Response {
	resp := d.Engine.Find(req)
	if resp == nil {
		log.Debug("no expectation matched", "method", req.Method, "path", req.Path)
		return httputil.Empty(http.StatusNotFound)
	}

	if resp.DelayMs > 0 {
		timer := time.NewTimer(time.Duration(resp.DelayMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			// The client is gone; the write will fail harmlessly.
		}
	}
	return resp
}

func (d *Dispatcher) forward(ctx context.Context, log *slog.Logger, req *mock.Request) *mock.Response {
	resp, err := d.Forwarder.Proxy(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("forwarder returned no response")
	}
	if err == nil {
		return resp
	}

	log.Warn("upstream request failed", "method", req.Method, "path", req.Path, "error", err)

	var uerr *proxy.UpstreamError
	if errors.As(err, &uerr) && uerr.Timeout {
		return httputil.Error(http.StatusGatewayTimeout, httputil.CodeUpstreamTimeout, err.Error())
	}
	return httputil.Error(http.StatusBadGateway, httputil.CodeUpstreamFailed, err.Error())
}

func invalidStatus(log *slog.Logger, command string, resp *mock.Response) *mock.Response {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	log.Error("response has no final status", "command", command, "status", status)

	msg := fmt.Sprintf("response status %d is not a final HTTP status", status)
	if command == CommandProxy {
		return httputil.Error(http.StatusBadGateway, httputil.CodeUpstreamFailed, msg)
	}
	return httputil.Error(http.StatusInternalServerError, httputil.CodeInternal, msg)
}

func malformed(log *slog.Logger, command string, err error) *mock.Response {
	log.Debug("rejected control request", "command", command, "error", err)
	return httputil.Error(http.StatusBadRequest, httputil.CodeMalformedBody, err.Error())
}
