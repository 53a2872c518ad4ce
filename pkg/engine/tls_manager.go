package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/matthewpi/certwatcher"

	"github.com/getmockd/mockserver/pkg/config"
	mstls "github.com/getmockd/mockserver/pkg/tls"
)

// TLSProvider builds the TLS configuration of the secure listener. ctx
// lives as long as the server; providers may watch key material until it
// is cancelled.
type TLSProvider interface {
	BuildContext(ctx context.Context) (*tls.Config, error)
}

// TLSManager is the default TLSProvider. Supplied certificate and key files
// are served through a certwatcher, so rotated files are picked up without
// a restart. Without them a self-signed pair comes from the key store.
type TLSManager struct {
	cfg  config.TLSConfig
	host string
}

// NewTLSManager creates a TLSManager for listeners bound to host.
func NewTLSManager(cfg config.TLSConfig, host string) *TLSManager {
	return &TLSManager{cfg: cfg, host: host}
}

// BuildContext implements TLSProvider.
func (tm *TLSManager) BuildContext(ctx context.Context) (*tls.Config, error) {
	base := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if err := tm.configureClientAuth(base); err != nil {
		return nil, fmt.Errorf("client auth configuration failed: %w", err)
	}

	if tm.cfg.CertFile != "" && tm.cfg.KeyFile != "" {
		watcher := &certwatcher.TLSConfig{
			CertPath:   tm.cfg.CertFile,
			KeyPath:    tm.cfg.KeyFile,
			Config:     base,
			DontStaple: true,
		}
		tlsConfig, err := watcher.GetTLSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		return tlsConfig, nil
	}

	cert, err := mstls.NewKeyStore(tm.cfg.KeyStoreDir, tm.host).Certificate()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare self-signed certificate: %w", err)
	}
	base.Certificates = []tls.Certificate{cert}
	return base, nil
}

// configureClientAuth applies the client certificate policy.
func (tm *TLSManager) configureClientAuth(tlsConfig *tls.Config) error {
	switch tm.cfg.ClientAuth {
	case "none", "":
		tlsConfig.ClientAuth = tls.NoClientCert
	case "request":
		tlsConfig.ClientAuth = tls.RequestClientCert
	case "require":
		tlsConfig.ClientAuth = tls.RequireAnyClientCert
	case "verify-if-given":
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	case "require-and-verify":
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	default:
		return fmt.Errorf("invalid clientAuth mode: %s", tm.cfg.ClientAuth)
	}

	if tm.cfg.CACertFile == "" {
		return nil
	}
	caCert, err := os.ReadFile(tm.cfg.CACertFile)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file %s: %w", tm.cfg.CACertFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate from %s", tm.cfg.CACertFile)
	}
	tlsConfig.ClientCAs = pool
	return nil
}
