package signature

import "fmt"

// Error codes for signature verification
const (
	ErrCodeNoSignature          = "NO_SIGNATURE"
	ErrCodeInvalidSignature     = "INVALID_SIGNATURE"
	ErrCodeReferenceMismatch    = "REFERENCE_MISMATCH"
	ErrCodeMalformedCertificate = "MALFORMED_CERTIFICATE"
	ErrCodeCertExpired          = "CERT_EXPIRED"
	ErrCodeChainInvalid         = "CHAIN_INVALID"
	ErrCodeUnsupportedFormat    = "UNSUPPORTED_FORMAT"
)

// SignatureError represents signature verification errors
type SignatureError struct {
	Code    string
	Field   string
	Message string
	Cause   error
}

func (e *SignatureError) Error() string {
	if e.Field != "" && e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Code, e.Field, e.Message, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SignatureError) Unwrap() error {
	return e.Cause
}

// NewSignatureError creates a new signature error
func NewSignatureError(code, field, message string, cause error) *SignatureError {
	return &SignatureError{
		Code:    code,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// ErrNoSignature returns error when the document carries no Signature
func ErrNoSignature() *SignatureError {
	return NewSignatureError(ErrCodeNoSignature, "", "no signature found in document", nil)
}

// ErrInvalidSignature returns error when digest or signature value do not match
func ErrInvalidSignature(cause error) *SignatureError {
	return NewSignatureError(ErrCodeInvalidSignature, "signature", "signature validation failed", cause)
}

// ErrReferenceMismatch returns error when the Reference URI does not point at infNFe
func ErrReferenceMismatch(uri, id string) *SignatureError {
	return NewSignatureError(ErrCodeReferenceMismatch, "Reference",
		fmt.Sprintf("URI %q does not reference infNFe Id %q", uri, id), nil)
}

// ErrMalformedCertificate returns error when the KeyInfo certificate cannot be read
func ErrMalformedCertificate(cause error) *SignatureError {
	return NewSignatureError(ErrCodeMalformedCertificate, "certificate", "cannot read X509Certificate", cause)
}

// ErrCertExpired returns error when the certificate was not valid at the given moment
func ErrCertExpired(subject string) *SignatureError {
	return NewSignatureError(ErrCodeCertExpired, "certificate", fmt.Sprintf("certificate not valid at issue date: %s", subject), nil)
}

// ErrChainInvalid returns error when certificate chain is invalid
func ErrChainInvalid(cause error) *SignatureError {
	return NewSignatureError(ErrCodeChainInvalid, "chain", "certificate chain validation failed", cause)
}

// ErrUnsupportedFormat returns error for input that is not an NF-e
func ErrUnsupportedFormat(format string) *SignatureError {
	return NewSignatureError(ErrCodeUnsupportedFormat, "", fmt.Sprintf("unsupported format: %s", format), nil)
}
