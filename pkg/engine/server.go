package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/mockserver/internal/storage"
	"github.com/getmockd/mockserver/pkg/codec"
	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/proxy"
)

// ErrAlreadyRunning is returned by Start on a server that was started before.
var ErrAlreadyRunning = errors.New("server is already running")

// sourceReplacer is implemented by engines that can swap the expectations
// loaded from one source without touching the rest.
type sourceReplacer interface {
	ReplaceSource(source string, exps []*mock.Expectation)
}

// counter is implemented by engines that can report their size.
type counter interface {
	Count() int
}

// Server binds the configured listeners and serves every request through
// one Dispatcher.
type Server struct {
	cfg         *config.ServerConfiguration
	log         *slog.Logger
	engine      MatchingEngine
	codec       Codec
	upstream    proxy.Upstream
	registry    *proxy.Registry
	dispatcher  *Dispatcher
	pipeline    *proxy.Pipeline
	tlsProvider TLSProvider
	metrics     *metrics.Collector

	mu        sync.Mutex
	started   bool
	listeners []*listener
	watcher   *fileWatcher
	cancelRun context.CancelFunc

	stopping chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// listener pairs a bound socket with the server that serves it.
type listener struct {
	name   string
	ln     net.Listener
	srv    *http.Server
	secure bool
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger for the server.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithEngine replaces the in-memory expectation store.
func WithEngine(engine MatchingEngine) ServerOption {
	return func(s *Server) {
		s.engine = engine
	}
}

// WithCodec replaces the JSON codec used for control plane bodies.
func WithCodec(c Codec) ServerOption {
	return func(s *Server) {
		s.codec = c
	}
}

// WithUpstream puts the server in proxy mode with a custom upstream.
// Without it, proxy mode is enabled by proxy.target.
func WithUpstream(up proxy.Upstream) ServerOption {
	return func(s *Server) {
		s.upstream = up
	}
}

// WithTLSProvider replaces the default TLSManager.
func WithTLSProvider(p TLSProvider) ServerOption {
	return func(s *Server) {
		s.tlsProvider = p
	}
}

// WithMetrics records metrics on c. Without it a collector is created only
// when metricsPort is enabled.
func WithMetrics(c *metrics.Collector) ServerOption {
	return func(s *Server) {
		s.metrics = c
	}
}

// NewServer creates a server. Config-declared proxy filters are compiled and
// registered here, ahead of any added later with RegisterRequestFilter or
// RegisterResponseFilter.
func NewServer(cfg *config.ServerConfiguration, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultServerConfiguration()
	}

	s := &Server{
		cfg:      cfg,
		log:      logging.Nop(),
		registry: proxy.NewRegistry(),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.engine == nil {
		store := storage.NewInMemoryStore()
		store.SetLogger(s.log)
		s.engine = store
	}
	if s.codec == nil {
		s.codec = codec.JSON{}
	}
	if s.tlsProvider == nil {
		s.tlsProvider = NewTLSManager(cfg.TLS, cfg.Host)
	}
	if s.metrics == nil && cfg.MetricsEnabled() {
		s.metrics = metrics.NewCollector()
	}
	if c, ok := s.engine.(counter); ok {
		s.metrics.ObserveExpectations(c.Count)
	}

	entries, err := proxy.CompileRules(cfg.Proxy.Filters)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := s.registry.Register(e); err != nil {
			return nil, err
		}
	}

	if s.upstream == nil && cfg.ProxyMode() {
		up, err := proxy.NewHTTPUpstream(cfg.Proxy.Target, cfg.ProxyTimeoutDuration())
		if err != nil {
			return nil, err
		}
		s.upstream = up
	}

	s.dispatcher = NewDispatcher(s.engine, s.codec)
	s.dispatcher.Log = s.log
	s.dispatcher.Metrics = s.metrics
	s.dispatcher.OnStop = s.requestStop
	if s.upstream != nil {
		s.pipeline = proxy.NewPipeline(s.registry, s.upstream,
			proxy.WithVetoStatus(cfg.Proxy.VetoStatus),
			proxy.WithLogger(s.log),
			proxy.WithMetrics(s.metrics),
		)
		s.dispatcher.Forwarder = s.pipeline
	}

	return s, nil
}

// Engine returns the expectation store the server matches against.
func (s *Server) Engine() MatchingEngine {
	return s.engine
}

// Dispatcher returns the dispatcher behind every listener.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Config returns the server configuration.
func (s *Server) Config() *config.ServerConfiguration {
	return s.cfg
}

// RegisterRequestFilter adds a request filter for proxied requests matching m.
func (s *Server) RegisterRequestFilter(m *mock.RequestMatcher, fn proxy.RequestFilterFunc) error {
	return s.registry.RegisterRequestFilter(m, fn)
}

// RegisterResponseFilter adds a response filter for proxied requests matching m.
func (s *Server) RegisterResponseFilter(m *mock.RequestMatcher, fn proxy.ResponseFilterFunc) error {
	return s.registry.RegisterResponseFilter(m, fn)
}

// Start loads the initialization file, binds every configured listener and
// begins serving. It returns once all listeners are bound; if any bind
// fails, those already bound are closed and nothing is served. The server
// stops on Stop, on PUT /stop, or when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyRunning
	}

	if err := s.loadInitialization(); err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	listeners, err := s.bind(runCtx)
	if err != nil {
		cancelRun()
		return err
	}

	if s.cfg.WatchInitialization && s.cfg.InitializationFile != "" {
		w, err := newFileWatcher(s.cfg.InitializationFile, DefaultReloadDebounce, s.loadInitialization, s.log)
		if err != nil {
			cancelRun()
			closeListeners(listeners)
			return err
		}
		s.watcher = w
	}

	if !s.cfg.PlainEnabled() && !s.cfg.SecureEnabled() {
		s.log.Warn("no data listeners configured; set port or securePort")
	}

	s.started = true
	s.listeners = listeners
	s.cancelRun = cancelRun
	s.serve(ctx, runCtx)

	attrs := []any{"proxy", s.pipeline != nil}
	if t, ok := s.upstream.(interface{ Target() string }); ok {
		attrs = append(attrs, "proxy_target", t.Target())
	}
	if s.pipeline != nil {
		attrs = append(attrs, "veto_status", s.pipeline.VetoStatus())
	}
	for _, l := range listeners {
		attrs = append(attrs, l.name, l.ln.Addr().String())
	}
	s.log.Info("server started", attrs...)
	return nil
}

// bind opens every enabled listener. On error nothing stays open.
func (s *Server) bind(ctx context.Context) ([]*listener, error) {
	var tlsConfig *tls.Config
	if s.cfg.SecureEnabled() {
		var err error
		tlsConfig, err = s.tlsProvider.BuildContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to setup TLS: %w", err)
		}
	}

	handler := NewHandler(s.dispatcher, s.cfg.MaxBodySize)
	handler.SetLogger(s.log)
	handler.SetMetrics(s.metrics)

	var bound []*listener
	open := func(name string, port int, h http.Handler, tc *tls.Config) error {
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to bind %s listener on %s: %w", name, addr, err)
		}
		srv := &http.Server{
			Handler:           h,
			TLSConfig:         tc,
			ReadTimeout:       time.Duration(s.cfg.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(s.cfg.WriteTimeout) * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		}
		srv.SetKeepAlivesEnabled(s.cfg.KeepAlive)
		bound = append(bound, &listener{name: name, ln: ln, srv: srv, secure: tc != nil})
		return nil
	}

	if s.cfg.PlainEnabled() {
		if err := open("plain", s.cfg.Port, handler, nil); err != nil {
			return nil, err
		}
	}
	if s.cfg.SecureEnabled() {
		if err := open("secure", s.cfg.SecurePort, handler, tlsConfig); err != nil {
			closeListeners(bound)
			return nil, err
		}
	}
	if s.cfg.MetricsEnabled() {
		if err := open("metrics", s.cfg.MetricsPort, s.metricsHandler(), nil); err != nil {
			closeListeners(bound)
			return nil, err
		}
	}
	return bound, nil
}

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func closeListeners(ls []*listener) {
	for _, l := range ls {
		_ = l.ln.Close()
	}
}

// serve runs every listener under one errgroup. A serve error on any
// listener stops the others.
func (s *Server) serve(ctx, runCtx context.Context) {
	g, gctx := errgroup.WithContext(runCtx)

	for _, l := range s.listeners {
		l := l
		g.Go(func() error {
			var err error
			if l.secure {
				err = l.srv.ServeTLS(l.ln, "", "")
			} else {
				err = l.srv.Serve(l.ln)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s listener: %w", l.name, err)
			}
			return nil
		})
	}

	if s.watcher != nil {
		w := s.watcher
		g.Go(func() error { return w.Run(gctx) })
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
			s.log.Info("context cancelled, stopping")
		case <-gctx.Done():
		case <-s.stopping:
		}
		return s.shutdown()
	})

	go func() {
		err := g.Wait()
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()
}

// shutdown closes every listener and waits for in-flight exchanges, bounded
// by the shutdown timeout.
func (s *Server) shutdown() error {
	s.requestStop()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeoutDuration())
	defer cancel()

	var errs []error
	for _, l := range s.listeners {
		if err := l.srv.Shutdown(ctx); err != nil {
			_ = l.srv.Close()
			errs = append(errs, fmt.Errorf("%s shutdown: %w", l.name, err))
		}
	}
	s.cancelRun()
	s.log.Info("server stopped")
	return errors.Join(errs...)
}

// requestStop starts an orderly shutdown without waiting for it.
func (s *Server) requestStop() {
	s.stopOnce.Do(func() { close(s.stopping) })
}

// Stop shuts the server down and waits until it has stopped or ctx is done.
// Stopping a server that was never started is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}

	s.requestStop()
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the server has fully stopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the server has stopped and returns the first serve or
// shutdown error.
func (s *Server) Wait() error {
	<-s.done
	return s.Err()
}

// Err returns the error the server stopped with, if any.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// PlainAddr returns the bound plain listener address, or "" if none.
func (s *Server) PlainAddr() string { return s.addr("plain") }

// SecureAddr returns the bound TLS listener address, or "" if none.
func (s *Server) SecureAddr() string { return s.addr("secure") }

// MetricsAddr returns the bound metrics listener address, or "" if none.
func (s *Server) MetricsAddr() string { return s.addr("metrics") }

func (s *Server) addr(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		if l.name == name {
			return l.ln.Addr().String()
		}
	}
	return ""
}

// loadInitialization replaces the expectations loaded from the
// initialization file. Runtime-registered expectations are kept.
func (s *Server) loadInitialization() error {
	path := s.cfg.InitializationFile
	if path == "" {
		return nil
	}

	exps, err := config.LoadExpectationsFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load initialization file: %w", err)
	}

	if r, ok := s.engine.(sourceReplacer); ok {
		r.ReplaceSource(storage.SourceInitialization, exps)
	} else {
		for _, exp := range exps {
			s.engine.Register(exp.HTTPRequest, exp.EffectiveTimes(), exp.HTTPResponse)
		}
	}
	s.log.Info("initialization file loaded", "path", path, "count", len(exps))
	return nil
}
