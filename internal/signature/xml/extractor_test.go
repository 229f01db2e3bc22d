package xml

import (
	"errors"
	"testing"

	"github.com/rezonia/fiscal-xml/internal/nfetest"
	"github.com/rezonia/fiscal-xml/internal/signature"
)

func TestExtractor_CanExtract(t *testing.T) {
	extractor := NewExtractor()

	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{
			name:     "NF-e with Signature",
			data:     []byte(`<?xml version="1.0"?><NFe><infNFe/><Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo/></Signature></NFe>`),
			expected: true,
		},
		{
			name:     "prefixed Signature",
			data:     []byte(`<NFe><ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#"/></NFe>`),
			expected: true,
		},
		{
			name:     "XML without Signature",
			data:     []byte(`<?xml version="1.0"?><NFe><infNFe/></NFe>`),
			expected: false,
		},
		{
			name:     "Not XML",
			data:     []byte(`{"Signature": "json"}`),
			expected: false,
		},
		{
			name:     "Empty",
			data:     []byte(``),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractor.CanExtract(tt.data); got != tt.expected {
				t.Errorf("CanExtract: got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExtractor_Extract_Signed(t *testing.T) {
	signed, cert := nfetest.Sign(t, nfetest.Fixture(t, nfetest.Full))

	x, err := NewExtractor().Extract(signed)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if x.Signed.Tag != "infNFe" {
		t.Errorf("Signed: got %s, want infNFe", x.Signed.Tag)
	}
	if x.ReferenceURI != "#NFe"+nfetest.FullKey {
		t.Errorf("ReferenceURI: got %s", x.ReferenceURI)
	}
	if x.SignatureMethod != "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256" {
		t.Errorf("SignatureMethod: got %s", x.SignatureMethod)
	}
	if len(x.Certificates) != 1 || string(x.Certificates[0]) != string(cert.Raw) {
		t.Errorf("Certificates: got %d, want the signer certificate", len(x.Certificates))
	}
}

func TestExtractor_Extract_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		code string
	}{
		{
			name: "unsigned NF-e",
			data: nfetest.Fixture(t, nfetest.Minimal),
			code: signature.ErrCodeNoSignature,
		},
		{
			name: "not an NF-e",
			data: []byte(`<?xml version="1.0"?><Invoice><Signature/></Invoice>`),
			code: signature.ErrCodeUnsupportedFormat,
		},
		{
			name: "invalid XML",
			data: []byte(`not xml`),
			code: signature.ErrCodeUnsupportedFormat,
		},
		{
			name: "reference to another element",
			data: []byte(`<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe1"/>` +
				`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo><Reference URI="#NFe2"/></SignedInfo></Signature></NFe>`),
			code: signature.ErrCodeReferenceMismatch,
		},
		{
			name: "no certificate",
			data: []byte(`<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe1"/>` +
				`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo><Reference URI="#NFe1"/></SignedInfo>` +
				`<KeyInfo><X509Data><X509Certificate></X509Certificate></X509Data></KeyInfo></Signature></NFe>`),
			code: signature.ErrCodeMalformedCertificate,
		},
		{
			name: "certificate not base64",
			data: []byte(`<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe1"/>` +
				`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo><Reference URI="#NFe1"/></SignedInfo>` +
				`<KeyInfo><X509Data><X509Certificate>%%%</X509Certificate></X509Data></KeyInfo></Signature></NFe>`),
			code: signature.ErrCodeMalformedCertificate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor().Extract(tt.data)
			var se *signature.SignatureError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SignatureError, got %v", err)
			}
			if se.Code != tt.code {
				t.Errorf("Code: got %s, want %s", se.Code, tt.code)
			}
		})
	}
}

func TestExtractCertificates_Whitespace(t *testing.T) {
	x, err := NewExtractor().Extract([]byte(`<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe1"/>` +
		`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo><Reference URI="#NFe1"/></SignedInfo>` +
		"<KeyInfo><X509Data><X509Certificate>\n  AQID\n  BAU=\n</X509Certificate></X509Data></KeyInfo></Signature></NFe>"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := x.Certificates[0]; string(got) != "\x01\x02\x03\x04\x05" {
		t.Errorf("certificate bytes: got %v", got)
	}
}
