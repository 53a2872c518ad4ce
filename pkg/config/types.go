package config

import (
	"time"

	"github.com/getmockd/mockserver/pkg/mock"
)

// PortDisabled is the unset sentinel for a listener port. Any negative
// port disables the listener; 0 binds an ephemeral port.
const PortDisabled = -1

// Defaults.
const (
	DefaultHost            = "localhost"
	DefaultLogLevel        = "warn"
	DefaultLogFormat       = "text"
	DefaultMaxBodySize     = 10 << 20
	DefaultShutdownTimeout = 5
	DefaultProxyTimeout    = 30
)

// Filter kinds.
const (
	FilterKindRequest  = "request"
	FilterKindResponse = "response"
)

// ServerConfiguration defines server runtime settings.
type ServerConfiguration struct {
	// Port is the plain HTTP port. Negative disables, 0 is ephemeral.
	Port int `json:"port" yaml:"port"`
	// SecurePort is the TLS port. Negative disables, 0 is ephemeral.
	SecurePort int `json:"securePort" yaml:"securePort"`
	// Host is the interface both listeners bind to.
	Host string `json:"host" yaml:"host"`

	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"`
	// LogFile, if set, receives a JSON copy of every log record.
	LogFile string `json:"logFile,omitempty" yaml:"logFile,omitempty"`

	// Timeouts in seconds. Zero means no timeout.
	ReadTimeout     int `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout    int `json:"writeTimeout" yaml:"writeTimeout"`
	ShutdownTimeout int `json:"shutdownTimeout" yaml:"shutdownTimeout"`

	// MaxBodySize caps an assembled request body in bytes.
	MaxBodySize int64 `json:"maxBodySize" yaml:"maxBodySize"`

	// KeepAlive allows more than one exchange per connection.
	KeepAlive bool `json:"keepAlive" yaml:"keepAlive"`

	// MetricsPort serves Prometheus metrics at /metrics. Negative disables.
	MetricsPort int `json:"metricsPort" yaml:"metricsPort"`

	// InitializationFile holds expectations loaded at start.
	InitializationFile string `json:"initializationFile,omitempty" yaml:"initializationFile,omitempty"`
	// WatchInitialization reloads InitializationFile when it changes.
	WatchInitialization bool `json:"watchInitialization,omitempty" yaml:"watchInitialization,omitempty"`

	TLS   TLSConfig   `json:"tls" yaml:"tls"`
	Proxy ProxyConfig `json:"proxy" yaml:"proxy"`
}

// TLSConfig defines where the secure listener gets its key material.
// CertFile and KeyFile take precedence; otherwise a self-signed pair is
// generated in (or loaded from) KeyStoreDir.
type TLSConfig struct {
	KeyStoreDir string `json:"keyStoreDir,omitempty" yaml:"keyStoreDir,omitempty"`
	CertFile    string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile     string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	// ClientAuth specifies the client certificate policy:
	// "none", "request", "require", "verify-if-given", "require-and-verify".
	ClientAuth string `json:"clientAuth,omitempty" yaml:"clientAuth,omitempty"`
	// CACertFile verifies client certificates.
	CACertFile string `json:"caCertFile,omitempty" yaml:"caCertFile,omitempty"`
}

// ProxyConfig turns the data plane into a forwarding proxy when Target is set.
type ProxyConfig struct {
	// Target is the upstream base URL, e.g. http://localhost:8080.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	// VetoStatus is returned when a request filter vetoes. Defaults to 403.
	VetoStatus int `json:"vetoStatus,omitempty" yaml:"vetoStatus,omitempty"`
	// TimeoutSeconds bounds one upstream round trip.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	// Filters are registered in order before any embedder filters.
	Filters []FilterConfig `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// FilterConfig declares a proxy filter without code.
type FilterConfig struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Kind is "request" or "response".
	Kind    string              `json:"kind" yaml:"kind"`
	Matcher *mock.RequestMatcher `json:"matcher,omitempty" yaml:"matcher,omitempty"`
	// When is an optional boolean expression evaluated per request.
	// A false result lets the request through unchanged.
	When string `json:"when,omitempty" yaml:"when,omitempty"`
	// Veto stops the request before the upstream call. Request filters only.
	Veto          bool              `json:"veto,omitempty" yaml:"veto,omitempty"`
	SetHeaders    map[string]string `json:"setHeaders,omitempty" yaml:"setHeaders,omitempty"`
	RemoveHeaders []string          `json:"removeHeaders,omitempty" yaml:"removeHeaders,omitempty"`
	// SetStatus overrides the upstream status. Response filters only.
	SetStatus int `json:"setStatus,omitempty" yaml:"setStatus,omitempty"`
}

// DefaultServerConfiguration returns the built-in defaults: no listeners,
// warn-level text logs.
func DefaultServerConfiguration() *ServerConfiguration {
	return &ServerConfiguration{
		Port:            PortDisabled,
		SecurePort:      PortDisabled,
		Host:            DefaultHost,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxBodySize:     DefaultMaxBodySize,
		MetricsPort:     PortDisabled,
		Proxy: ProxyConfig{
			TimeoutSeconds: DefaultProxyTimeout,
		},
	}
}

// PlainEnabled reports whether the plain listener should be bound.
func (c *ServerConfiguration) PlainEnabled() bool { return c.Port >= 0 }

// SecureEnabled reports whether the TLS listener should be bound.
func (c *ServerConfiguration) SecureEnabled() bool { return c.SecurePort >= 0 }

// MetricsEnabled reports whether the metrics listener should be bound.
func (c *ServerConfiguration) MetricsEnabled() bool { return c.MetricsPort >= 0 }

// ProxyMode reports whether the data plane forwards instead of matching.
func (c *ServerConfiguration) ProxyMode() bool { return c.Proxy.Target != "" }

// ShutdownTimeoutDuration returns ShutdownTimeout, falling back to the default.
func (c *ServerConfiguration) ShutdownTimeoutDuration() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout * time.Second
	}
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// ProxyTimeoutDuration returns Proxy.TimeoutSeconds, falling back to the default.
func (c *ServerConfiguration) ProxyTimeoutDuration() time.Duration {
	if c.Proxy.TimeoutSeconds <= 0 {
		return DefaultProxyTimeout * time.Second
	}
	return time.Duration(c.Proxy.TimeoutSeconds) * time.Second
}
