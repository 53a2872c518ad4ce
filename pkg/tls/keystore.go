package tls

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// File names inside a key store directory.
const (
	CertFileName = "mockserver.crt"
	KeyFileName  = "mockserver.key"
)

// KeyStore keeps one self-signed certificate in a directory, generating it
// on first use and again once it has expired or no longer covers the host.
// An empty Dir keeps the pair in memory only.
type KeyStore struct {
	Dir  string
	Host string

	now func() time.Time
}

// NewKeyStore creates a key store rooted at dir for host.
func NewKeyStore(dir, host string) *KeyStore {
	return &KeyStore{Dir: dir, Host: host, now: time.Now}
}

// CertPath returns the certificate file path.
func (k *KeyStore) CertPath() string { return filepath.Join(k.Dir, CertFileName) }

// KeyPath returns the private key file path.
func (k *KeyStore) KeyPath() string { return filepath.Join(k.Dir, KeyFileName) }

// Certificate returns the stored pair, creating or replacing it as needed.
func (k *KeyStore) Certificate() (tls.Certificate, error) {
	cfg := CertificateConfigForHost(k.Host)

	if k.Dir == "" {
		gen, err := GenerateSelfSignedCert(cfg)
		if err != nil {
			return tls.Certificate{}, err
		}
		return tls.X509KeyPair(gen.CertPEM, gen.KeyPEM)
	}

	if pair, ok := k.load(); ok {
		return pair, nil
	}

	gen, err := GenerateSelfSignedCert(cfg)
	if err != nil {
		return tls.Certificate{}, err
	}
	if err := k.save(gen); err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(gen.CertPEM, gen.KeyPEM)
}

// load returns the stored pair if it parses, is still valid and covers Host.
func (k *KeyStore) load() (tls.Certificate, bool) {
	certPEM, err := os.ReadFile(k.CertPath())
	if err != nil {
		return tls.Certificate{}, false
	}
	keyPEM, err := os.ReadFile(k.KeyPath())
	if err != nil {
		return tls.Certificate{}, false
	}

	cert, err := DecodeCertFromPEM(certPEM)
	if err != nil {
		return tls.Certificate{}, false
	}
	now := k.now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return tls.Certificate{}, false
	}
	if verifiableHost(k.Host) && cert.VerifyHostname(k.Host) != nil {
		return tls.Certificate{}, false
	}

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, false
	}
	return pair, true
}

func (k *KeyStore) save(gen *GeneratedCertificate) error {
	if err := os.MkdirAll(k.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create key store directory: %w", err)
	}
	if err := os.WriteFile(k.CertPath(), gen.CertPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate file: %w", err)
	}
	if err := os.WriteFile(k.KeyPath(), gen.KeyPEM, 0600); err != nil {
		_ = os.Remove(k.CertPath())
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// verifiableHost reports whether host names a concrete endpoint the
// certificate must cover. Wildcard binds such as 0.0.0.0 do not.
func verifiableHost(host string) bool {
	if host == "" {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return !ip.IsUnspecified()
	}
	return true
}
