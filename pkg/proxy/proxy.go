// Package proxy forwards data-plane requests to an upstream server through
// a pair of optional filters.
//
// For each request the pipeline looks up the first request filter whose
// matcher accepts it. That filter may rewrite the request or veto it; a
// vetoed request never reaches the upstream. After the upstream answers, the
// first matching response filter, looked up against the original request,
// may replace the response.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/mock"
)

// VetoHeader marks responses the pipeline produced itself.
const VetoHeader = "X-Mockserver-Proxy"

// DefaultVetoStatus is answered when a request filter vetoes.
const DefaultVetoStatus = http.StatusForbidden

// Upstream performs one round trip to the proxied server.
type Upstream interface {
	RoundTrip(ctx context.Context, req *mock.Request) (*mock.Response, error)
}

// Pipeline runs request filter, upstream call and response filter.
type Pipeline struct {
	registry   *Registry
	upstream   Upstream
	vetoStatus int
	log        *slog.Logger
	metrics    *metrics.Collector
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithVetoStatus sets the status answered on veto.
func WithVetoStatus(status int) Option {
	return func(p *Pipeline) {
		if status > 0 {
			p.vetoStatus = status
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithMetrics records proxy outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pipeline) {
		p.metrics = c
	}
}

// NewPipeline creates a pipeline over registry and upstream.
func NewPipeline(registry *Registry, upstream Upstream, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:   registry,
		upstream:   upstream,
		vetoStatus: DefaultVetoStatus,
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// VetoStatus returns the status answered on veto.
func (p *Pipeline) VetoStatus() int {
	return p.vetoStatus
}

// Proxy produces the response for req. A veto is a response, not an error.
// Upstream failures are returned as *UpstreamError.
func (p *Pipeline) Proxy(ctx context.Context, req *mock.Request) (*mock.Response, error) {
	forward := req
	if e, ok := p.registry.Lookup(req, KindRequest); ok {
		next, proceed := e.Request(ctx, req.Clone())
		if !proceed {
			p.log.Debug("request vetoed", "filter", e.Name, "method", req.Method, "path", req.Path)
			p.metrics.RecordProxy(metrics.OutcomeVetoed)
			return p.vetoResponse(), nil
		}
		if next != nil {
			forward = next
		}
	}

	start := time.Now()
	resp, err := p.upstream.RoundTrip(ctx, forward)
	p.metrics.ObserveUpstream(time.Since(start))
	if err != nil {
		var uerr *UpstreamError
		if errors.As(err, &uerr) && uerr.Timeout {
			p.metrics.RecordProxy(metrics.OutcomeUpstreamTimeout)
		} else {
			p.metrics.RecordProxy(metrics.OutcomeUpstreamError)
		}
		return nil, err
	}
	p.metrics.RecordProxy(metrics.OutcomeForwarded)

	if e, ok := p.registry.Lookup(req, KindResponse); ok {
		if replaced := e.Response(ctx, req.Clone(), resp); replaced != nil {
			resp = replaced
		}
	}

	return resp, nil
}

func (p *Pipeline) vetoResponse() *mock.Response {
	resp := mock.NewResponse(p.vetoStatus)
	resp.Headers = resp.Headers.Set(VetoHeader, "vetoed")
	return resp
}
