package signature

import "context"

// FormatXML is the only format verified
const FormatXML = "xml"

// Verifier defines the interface for signature verification
type Verifier interface {
	// Verify verifies the digital signature on the given data.
	// A missing signature is reported through the result and a *SignatureError.
	Verify(ctx context.Context, data []byte) (*VerificationResult, error)

	// CanVerify returns true if data looks like a signed XML document
	CanVerify(data []byte) bool
}
