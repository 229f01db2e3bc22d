package xml

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rezonia/fiscal-xml/internal/nfetest"
	"github.com/rezonia/fiscal-xml/internal/signature"
	"github.com/rezonia/fiscal-xml/internal/signature/trust"
)

// setIssueDate moves dhEmi into the validity window of the test certificate
func setIssueDate(raw []byte, at time.Time) []byte {
	return bytes.Replace(raw,
		[]byte("<dhEmi>2024-01-15T10:30:00-03:00</dhEmi>"),
		[]byte("<dhEmi>"+at.Format(time.RFC3339)+"</dhEmi>"), 1)
}

func TestVerify_FreshlySigned(t *testing.T) {
	raw := setIssueDate(nfetest.Fixture(t, nfetest.Minimal), time.Now().Add(time.Minute))
	signed, cert := nfetest.Sign(t, raw)

	result, err := NewVerifier(trust.NewStore(cert)).Verify(context.Background(), signed)
	require.NoError(t, err)

	assert.True(t, result.Valid, "errors: %v", result.Errors)
	assert.True(t, result.SignatureFound)
	assert.True(t, result.SignatureValid)
	assert.True(t, result.ChainChecked)
	assert.True(t, result.CertChainValid)
	assert.Len(t, result.CertChain, 1)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, nfetest.MinimalKey, result.DocumentKey)
	assert.Equal(t, "#NFe"+nfetest.MinimalKey, result.ReferenceURI)
	assert.Equal(t, signature.FormatXML, result.Format)
	require.NotNil(t, result.Signer)
	assert.Equal(t, cert.SerialNumber.String(), result.Signer.SerialNumber)
}

func TestVerify_NfeProcWrapper(t *testing.T) {
	signed, _ := nfetest.Sign(t, nfetest.Fixture(t, nfetest.Full))

	result, err := NewVerifier(nil).Verify(context.Background(), signed)
	require.NoError(t, err)

	assert.True(t, result.SignatureValid, "errors: %v", result.Errors)
	assert.True(t, result.Valid)
	assert.False(t, result.ChainChecked)
	assert.Contains(t, result.Warnings, "trust store empty, certificate chain not checked")
	assert.Equal(t, nfetest.FullKey, result.DocumentKey)
}

func TestVerify_IssueDateOutsideValidity(t *testing.T) {
	// the fixture is issued in 2024, long before the test certificate
	signed, _ := nfetest.Sign(t, nfetest.Fixture(t, nfetest.Minimal))

	result, err := NewVerifier(trust.NewStore()).Verify(context.Background(), signed)
	require.NoError(t, err)

	assert.True(t, result.SignatureValid, "errors: %v", result.Errors)
	var found bool
	for _, w := range result.Warnings {
		found = found || strings.Contains(w, signature.ErrCodeCertExpired)
	}
	assert.True(t, found, "warnings: %v", result.Warnings)
}

func TestVerify_Tampered(t *testing.T) {
	raw := setIssueDate(nfetest.Fixture(t, nfetest.Minimal), time.Now().Add(time.Minute))
	signed, cert := nfetest.Sign(t, raw)

	tampered := bytes.Replace(signed, []byte("<vNF>100.00</vNF>"), []byte("<vNF>900.00</vNF>"), 1)
	require.NotEqual(t, signed, tampered)

	result, err := NewVerifier(trust.NewStore(cert)).Verify(context.Background(), tampered)
	require.NoError(t, err)

	assert.True(t, result.SignatureFound)
	assert.False(t, result.SignatureValid)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], signature.ErrCodeInvalidSignature)
	assert.True(t, result.CertChainValid)
}

func TestVerify_UntrustedSigner(t *testing.T) {
	raw := setIssueDate(nfetest.Fixture(t, nfetest.Minimal), time.Now().Add(time.Minute))
	signed, _ := nfetest.Sign(t, raw)
	_, other := nfetest.Sign(t, raw)

	result, err := NewVerifier(trust.NewStore(other)).Verify(context.Background(), signed)
	require.NoError(t, err)

	assert.True(t, result.SignatureValid)
	assert.True(t, result.ChainChecked)
	assert.False(t, result.CertChainValid)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], signature.ErrCodeChainInvalid)
}

func TestVerify_Unsigned(t *testing.T) {
	result, err := NewVerifier(nil).Verify(context.Background(), nfetest.Fixture(t, nfetest.Minimal))

	var se *signature.SignatureError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, signature.ErrCodeNoSignature, se.Code)
	assert.False(t, result.SignatureFound)
	assert.False(t, result.Valid)
}

func TestVerify_DummySignature(t *testing.T) {
	// full.xml carries a placeholder Signature without a certificate
	result, err := NewVerifier(nil).Verify(context.Background(), nfetest.Fixture(t, nfetest.Full))
	require.NoError(t, err)

	assert.True(t, result.SignatureFound)
	assert.False(t, result.SignatureValid)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], signature.ErrCodeMalformedCertificate)
}

func TestVerify_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewVerifier(nil).Verify(ctx, []byte("<NFe/>"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerify_Logs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	signed, _ := nfetest.Sign(t, nfetest.Fixture(t, nfetest.Full))

	_, err := NewVerifier(nil, WithLogger(zap.New(core))).Verify(context.Background(), signed)
	require.NoError(t, err)

	entries := logs.FilterMessage("signature verified").All()
	require.Len(t, entries, 1)
	assert.Equal(t, nfetest.FullKey, entries[0].ContextMap()["document_key"])
}
