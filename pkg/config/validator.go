package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/getmockd/mockserver/pkg/mock"
)

// ValidationError represents a configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// validClientAuthValues are the allowed client certificate policies.
var validClientAuthValues = map[string]bool{
	"":                   true,
	"none":               true,
	"request":            true,
	"require":            true,
	"verify-if-given":    true,
	"require-and-verify": true,
}

// Validate checks the configuration for values the server cannot run with.
// Every problem is reported, joined into one error.
func (c *ServerConfiguration) Validate() error {
	var errs []error

	for field, port := range map[string]int{"port": c.Port, "securePort": c.SecurePort, "metricsPort": c.MetricsPort} {
		if port > 65535 {
			errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf("port %d out of range", port)})
		}
	}

	if c.MaxBodySize <= 0 {
		errs = append(errs, &ValidationError{Field: "maxBodySize", Message: "must be positive"})
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, &ValidationError{Field: "timeouts", Message: "must not be negative"})
	}

	errs = append(errs, c.TLS.validate()...)
	errs = append(errs, c.Proxy.validate()...)

	if c.InitializationFile != "" {
		if _, err := os.Stat(c.InitializationFile); err != nil {
			errs = append(errs, &ValidationError{Field: "initializationFile", Message: err.Error()})
		}
	} else if c.WatchInitialization {
		errs = append(errs, &ValidationError{Field: "watchInitialization", Message: "requires initializationFile"})
	}

	return errors.Join(errs...)
}

func (t *TLSConfig) validate() []error {
	var errs []error
	if (t.CertFile == "") != (t.KeyFile == "") {
		errs = append(errs, &ValidationError{Field: "tls", Message: "certFile and keyFile must be set together"})
	}
	if !validClientAuthValues[t.ClientAuth] {
		errs = append(errs, &ValidationError{Field: "tls.clientAuth", Message: fmt.Sprintf("invalid value %q", t.ClientAuth)})
	}
	return errs
}

func (p *ProxyConfig) validate() []error {
	var errs []error

	if p.Target != "" {
		u, err := url.Parse(p.Target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, &ValidationError{Field: "proxy.target", Message: fmt.Sprintf("not an absolute http(s) URL: %q", p.Target)})
		}
	}
	if p.VetoStatus != 0 && !validFinalStatus(p.VetoStatus) {
		errs = append(errs, &ValidationError{Field: "proxy.vetoStatus", Message: fmt.Sprintf("unknown status %d", p.VetoStatus)})
	}

	for i, f := range p.Filters {
		field := fmt.Sprintf("proxy.filters[%d]", i)
		switch strings.ToLower(f.Kind) {
		case FilterKindRequest:
			if f.SetStatus != 0 {
				errs = append(errs, &ValidationError{Field: field, Message: "setStatus applies to response filters only"})
			}
		case FilterKindResponse:
			if f.Veto {
				errs = append(errs, &ValidationError{Field: field, Message: "veto applies to request filters only"})
			}
			if f.SetStatus != 0 && !validFinalStatus(f.SetStatus) {
				errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf("unknown status %d", f.SetStatus)})
			}
		default:
			errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf("kind must be %q or %q", FilterKindRequest, FilterKindResponse)})
		}
		if err := f.Matcher.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s.matcher: %w", field, err))
		}
	}

	return errs
}

// validFinalStatus accepts 2xx to 5xx codes with a canonical reason phrase.
func validFinalStatus(code int) bool {
	return mock.IsFinalStatus(code) && http.StatusText(code) != ""
}
