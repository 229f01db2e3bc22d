package signature

import (
	"crypto/x509"
	"strings"
	"time"
)

// VerificationResult contains the complete signature verification outcome
type VerificationResult struct {
	// Overall validity
	Valid bool `json:"valid"`

	// Individual check results
	SignatureFound bool `json:"signature_found"`
	SignatureValid bool `json:"signature_valid"`
	ChainChecked   bool `json:"chain_checked"`
	CertChainValid bool `json:"cert_chain_valid"`

	// What the signature covers
	ReferenceURI    string `json:"reference_uri,omitempty"`
	DocumentKey     string `json:"document_key,omitempty"`
	SignatureMethod string `json:"signature_method,omitempty"`
	DigestMethod    string `json:"digest_method,omitempty"`

	Signer *SignerInfo `json:"signer,omitempty"`

	// Certificate chain (not serialized to JSON)
	CertChain []*x509.Certificate `json:"-"`

	// Warnings (non-fatal issues)
	Warnings []string `json:"warnings,omitempty"`

	// Errors (reasons for invalid result)
	Errors []string `json:"errors,omitempty"`

	Format string `json:"format,omitempty"`
}

// SignerInfo contains certificate subject information
type SignerInfo struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`

	// TaxID is the CNPJ or CPF that ICP-Brasil certificates append to the CN
	TaxID string `json:"tax_id,omitempty"`

	SerialNumber string    `json:"serial_number"`
	Issuer       string    `json:"issuer"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
}

// NewVerificationResult creates a new empty result
func NewVerificationResult() *VerificationResult {
	return &VerificationResult{
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}
}

// AddWarning adds a warning message to the result
func (r *VerificationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError adds an error message and sets Valid to false
func (r *VerificationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// SetSigner populates SignerInfo from an x509 certificate
func (r *VerificationResult) SetSigner(cert *x509.Certificate) {
	if cert == nil {
		return
	}

	signer := &SignerInfo{
		SerialNumber: cert.SerialNumber.String(),
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
	}

	// ICP-Brasil: "RAZAO SOCIAL:12345678000195"
	signer.Name = cert.Subject.CommonName
	if i := strings.LastIndexByte(signer.Name, ':'); i >= 0 && isDigits(signer.Name[i+1:]) {
		signer.TaxID = signer.Name[i+1:]
		signer.Name = signer.Name[:i]
	}

	if len(cert.Subject.Organization) > 0 {
		signer.Organization = cert.Subject.Organization[0]
	}

	if len(cert.Issuer.CommonName) > 0 {
		signer.Issuer = cert.Issuer.CommonName
	} else if len(cert.Issuer.Organization) > 0 {
		signer.Issuer = cert.Issuer.Organization[0]
	}

	r.Signer = signer
}

// ComputeValidity sets Valid from the individual checks. A chain that was
// never checked (empty trust store) does not invalidate the result.
func (r *VerificationResult) ComputeValidity() {
	r.Valid = r.SignatureFound &&
		r.SignatureValid &&
		(r.CertChainValid || !r.ChainChecked) &&
		len(r.Errors) == 0
}

func isDigits(s string) bool {
	if len(s) != 11 && len(s) != 14 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
