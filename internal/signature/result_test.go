package signature

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"
)

func selfSigned(t *testing.T, subject pkix.Name) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(98765),
		Subject:      subject,
		NotBefore:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func TestVerificationResult_JSON(t *testing.T) {
	result := &VerificationResult{
		Valid:          true,
		SignatureFound: true,
		SignatureValid: true,
		ReferenceURI:   "#NFe41240112345678000195550010000001231000001234",
		DocumentKey:    "41240112345678000195550010000001231000001234",
		Format:         FormatXML,
		Signer: &SignerInfo{
			Name:         "EMPRESA EXEMPLO LTDA",
			TaxID:        "12345678000195",
			SerialNumber: "1234567890",
			Issuer:       "AC SOLUTI Multipla v5",
		},
		Warnings: []string{"trust store empty, certificate chain not checked"},
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal to map: %v", err)
	}
	if raw["document_key"] != result.DocumentKey {
		t.Errorf("document_key: got %v", raw["document_key"])
	}
	if raw["chain_checked"] != false {
		t.Errorf("chain_checked: got %v, want false", raw["chain_checked"])
	}
	if _, exists := raw["cert_chain"]; exists {
		t.Error("cert_chain should not be serialized to JSON")
	}
	if _, exists := raw["errors"]; exists {
		t.Error("errors should be omitted when empty")
	}
	signer, ok := raw["signer"].(map[string]interface{})
	if !ok {
		t.Fatal("signer missing")
	}
	if signer["tax_id"] != "12345678000195" {
		t.Errorf("signer.tax_id: got %v", signer["tax_id"])
	}
}

func TestVerificationResult_SetSigner(t *testing.T) {
	tests := []struct {
		name     string
		subject  pkix.Name
		wantName string
		taxID    string
		org      string
	}{
		{
			name:     "ICP-Brasil e-CNPJ",
			subject:  pkix.Name{CommonName: "INDUSTRIA AURORA LTDA:11222333000181", Organization: []string{"ICP-Brasil"}},
			wantName: "INDUSTRIA AURORA LTDA",
			taxID:    "11222333000181",
			org:      "ICP-Brasil",
		},
		{
			name:     "e-CPF",
			subject:  pkix.Name{CommonName: "MARIA DA SILVA:52998224725"},
			wantName: "MARIA DA SILVA",
			taxID:    "52998224725",
		},
		{
			name:     "plain common name",
			subject:  pkix.Name{CommonName: "Servidor: homologacao"},
			wantName: "Servidor: homologacao",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := selfSigned(t, tt.subject)
			result := NewVerificationResult()
			result.SetSigner(cert)

			if result.Signer == nil {
				t.Fatal("Signer is nil after SetSigner")
			}
			if result.Signer.Name != tt.wantName {
				t.Errorf("Name: got %q, want %q", result.Signer.Name, tt.wantName)
			}
			if result.Signer.TaxID != tt.taxID {
				t.Errorf("TaxID: got %q, want %q", result.Signer.TaxID, tt.taxID)
			}
			if result.Signer.Organization != tt.org {
				t.Errorf("Organization: got %q, want %q", result.Signer.Organization, tt.org)
			}
			if result.Signer.SerialNumber != "98765" {
				t.Errorf("SerialNumber: got %v, want 98765", result.Signer.SerialNumber)
			}
			if !result.Signer.ValidTo.Equal(cert.NotAfter) {
				t.Errorf("ValidTo: got %v, want %v", result.Signer.ValidTo, cert.NotAfter)
			}
		})
	}

	result := NewVerificationResult()
	result.SetSigner(nil)
	if result.Signer != nil {
		t.Error("SetSigner(nil) should leave Signer unset")
	}
}

func TestVerificationResult_ComputeValidity(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*VerificationResult)
		expected bool
	}{
		{
			name: "signature and chain valid",
			setup: func(r *VerificationResult) {
				r.SignatureFound = true
				r.SignatureValid = true
				r.ChainChecked = true
				r.CertChainValid = true
			},
			expected: true,
		},
		{
			name: "chain not checked",
			setup: func(r *VerificationResult) {
				r.SignatureFound = true
				r.SignatureValid = true
			},
			expected: true,
		},
		{
			name: "chain checked and invalid",
			setup: func(r *VerificationResult) {
				r.SignatureFound = true
				r.SignatureValid = true
				r.ChainChecked = true
			},
			expected: false,
		},
		{
			name: "signature not found",
			setup: func(r *VerificationResult) {
				r.SignatureValid = true
			},
			expected: false,
		},
		{
			name: "signature invalid",
			setup: func(r *VerificationResult) {
				r.SignatureFound = true
			},
			expected: false,
		},
		{
			name: "has errors",
			setup: func(r *VerificationResult) {
				r.SignatureFound = true
				r.SignatureValid = true
				r.Errors = []string{"some error"}
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewVerificationResult()
			tt.setup(result)
			result.ComputeValidity()

			if result.Valid != tt.expected {
				t.Errorf("Valid: got %v, want %v", result.Valid, tt.expected)
			}
		})
	}
}

func TestVerificationResult_AddWarningAndError(t *testing.T) {
	result := NewVerificationResult()
	result.Valid = true

	result.AddWarning("certificate not valid at issue date")
	if len(result.Warnings) != 1 {
		t.Errorf("Warnings count: got %d, want 1", len(result.Warnings))
	}
	if !result.Valid {
		t.Error("AddWarning should not change Valid")
	}

	result.AddError("digest mismatch")
	if len(result.Errors) != 1 {
		t.Errorf("Errors count: got %d, want 1", len(result.Errors))
	}
	if result.Valid {
		t.Error("AddError should set Valid to false")
	}
}

func TestSignatureError(t *testing.T) {
	cause := errors.New("digest mismatch")
	err := ErrInvalidSignature(cause)

	if !errors.Is(err, cause) {
		t.Error("ErrInvalidSignature should wrap its cause")
	}
	if !strings.HasPrefix(err.Error(), "[INVALID_SIGNATURE] signature:") {
		t.Errorf("unexpected message: %s", err.Error())
	}

	var se *SignatureError
	if !errors.As(error(ErrNoSignature()), &se) || se.Code != ErrCodeNoSignature {
		t.Errorf("ErrNoSignature code: got %+v", se)
	}
	if got := ErrReferenceMismatch("#NFe1", "NFe2").Error(); !strings.Contains(got, `"#NFe1"`) {
		t.Errorf("ErrReferenceMismatch message: %s", got)
	}
}
