// Package keys loads the key material the TPP needs at startup: the PS256
// signing key, the mutual-TLS client certificate, and the trust roots used
// to verify the bank's endpoints.
package keys

import (
	"bytes"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

var (
	// ErrKeyLoad is returned when a private key or certificate cannot be
	// parsed. Fatal at startup.
	ErrKeyLoad = errors.New("failed to load key material")

	// ErrTrustStore is returned when a trust store is configured but cannot
	// be read or decoded. Fatal at startup.
	ErrTrustStore = errors.New("failed to load trust store")
)

// Material holds the process-wide cryptographic material. It is built once at
// startup, read-only afterwards, and safe for concurrent use.
type Material struct {
	// SigningKey signs client assertions and request objects.
	SigningKey *rsa.PrivateKey

	// ClientCertificate is presented during the mutual-TLS handshake.
	ClientCertificate tls.Certificate

	// TrustPool verifies the authorization server's certificate chain.
	// Nil means the platform default roots are used.
	TrustPool *x509.CertPool
}

// Paths locates the key material on disk. TrustStorePath is optional; when
// empty the platform trust roots are used.
type Paths struct {
	SigningKeyPath     string
	CertificatePath    string
	TransportKeyPath   string
	TrustStorePath     string
	TrustStorePassword string
}

// Load reads and parses all key material. Any failure is fatal to startup;
// there is no fallback to an unauthenticated transport.
func Load(p Paths) (*Material, error) {
	signingPEM, err := os.ReadFile(p.SigningKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading signing key %q: %w", ErrKeyLoad, p.SigningKeyPath, err)
	}
	signingKey, err := ParsePrivateKeyPEM(signingPEM)
	if err != nil {
		return nil, err
	}

	certPEM, err := os.ReadFile(p.CertificatePath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading certificate %q: %w", ErrKeyLoad, p.CertificatePath, err)
	}
	keyPEM, err := os.ReadFile(p.TransportKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading transport key %q: %w", ErrKeyLoad, p.TransportKeyPath, err)
	}
	clientCert, err := ParseClientCertificate(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	var pool *x509.CertPool
	if p.TrustStorePath != "" {
		data, err := os.ReadFile(p.TrustStorePath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %q: %w", ErrTrustStore, p.TrustStorePath, err)
		}
		pool, err = ParseTrustPool(data, p.TrustStorePassword)
		if err != nil {
			return nil, err
		}
	}

	return &Material{
		SigningKey:        signingKey,
		ClientCertificate: clientCert,
		TrustPool:         pool,
	}, nil
}

// ParsePrivateKeyPEM parses a PEM-encoded RSA private key. PKCS#8 is the
// expected encoding; PKCS#1 is accepted for keys exported by older tooling.
func ParsePrivateKeyPEM(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found in private key data", ErrKeyLoad)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private key is not RSA", ErrKeyLoad)
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing private key: %w", ErrKeyLoad, err)
	}
	return rsaKey, nil
}

// ParseClientCertificate pairs the X.509 client certificate with its private
// key for the mutual-TLS handshake.
func ParseClientCertificate(certPEM, keyPEM []byte) (tls.Certificate, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: pairing client certificate and key: %w", ErrKeyLoad, err)
	}
	return cert, nil
}

// ParseTrustPool builds a certificate pool from either a PEM bundle or a
// password-protected PKCS#12 archive. Data carrying a PEM marker is treated
// as PEM only, so a corrupt bundle is reported as such instead of as a
// failed PKCS#12 decode.
func ParseTrustPool(data []byte, password string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	if bytes.Contains(data, []byte("-----BEGIN")) {
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("%w: no usable certificates in PEM bundle", ErrTrustStore)
		}
		return pool, nil
	}

	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding PKCS#12 archive: %w", ErrTrustStore, err)
	}

	added := false
	for _, block := range blocks {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing trust store certificate: %w", ErrTrustStore, err)
		}
		pool.AddCert(cert)
		added = true
	}
	if !added {
		return nil, fmt.Errorf("%w: no certificates found", ErrTrustStore)
	}
	return pool, nil
}
