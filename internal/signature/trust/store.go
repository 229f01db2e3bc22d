// Package trust holds the root certificates signer certificates are chained to.
package trust

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// Store manages trusted CA certificates, usually the ICP-Brasil bundle
type Store struct {
	roots     *x509.CertPool
	rootCerts []*x509.Certificate
}

// NewStore creates an empty store
func NewStore(certs ...*x509.Certificate) *Store {
	s := &Store{
		roots:     x509.NewCertPool(),
		rootCerts: make([]*x509.Certificate, 0, len(certs)),
	}
	s.AddCertificates(certs...)
	return s
}

// LoadBundle reads a PEM bundle from path. An empty path gives an empty store.
func LoadBundle(path string) (*Store, error) {
	s := NewStore()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust bundle: %w", err)
	}
	if _, err := s.AddCertificatesFromPEM(data); err != nil {
		return nil, fmt.Errorf("trust bundle %s: %w", path, err)
	}
	return s, nil
}

// AddCertificate adds a single certificate to the store
func (s *Store) AddCertificate(cert *x509.Certificate) {
	if cert != nil {
		s.roots.AddCert(cert)
		s.rootCerts = append(s.rootCerts, cert)
	}
}

// AddCertificates adds multiple certificates to the store
func (s *Store) AddCertificates(certs ...*x509.Certificate) {
	for _, cert := range certs {
		s.AddCertificate(cert)
	}
}

// AddCertificatesFromPEM parses and adds every CERTIFICATE block of pemData
func (s *Store) AddCertificatesFromPEM(pemData []byte) (int, error) {
	var added int
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return added, fmt.Errorf("failed to parse certificate: %w", err)
			}
			s.AddCertificate(cert)
			added++
		}
		pemData = rest
	}
	if added == 0 {
		return 0, fmt.Errorf("no certificates found in PEM data")
	}
	return added, nil
}

// VerifyChain verifies cert against the trusted roots as of at
func (s *Store) VerifyChain(cert *x509.Certificate, intermediates []*x509.Certificate, at time.Time) ([]*x509.Certificate, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate is nil")
	}

	var interPool *x509.CertPool
	if len(intermediates) > 0 {
		interPool = x509.NewCertPool()
		for _, inter := range intermediates {
			interPool.AddCert(inter)
		}
	}

	opts := x509.VerifyOptions{
		Roots:         s.roots,
		Intermediates: interPool,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	chains, err := cert.Verify(opts)
	if err != nil {
		return nil, err
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("no valid certificate chains found")
	}
	return chains[0], nil
}

// Len returns the number of trusted certificates
func (s *Store) Len() int {
	return len(s.rootCerts)
}

// Empty reports whether no roots are loaded
func (s *Store) Empty() bool {
	return s == nil || len(s.rootCerts) == 0
}

// RootCerts returns the root certificates as a slice
func (s *Store) RootCerts() []*x509.Certificate {
	return s.rootCerts
}
