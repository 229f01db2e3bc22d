package xml

import (
	"context"
	"crypto/x509"
	"errors"
	"strings"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/signature"
	"github.com/rezonia/fiscal-xml/internal/signature/trust"
	"github.com/rezonia/fiscal-xml/internal/xmldoc"
)

// Verifier checks the XMLDSig signature of NF-e documents
type Verifier struct {
	trustStore *trust.Store
	extractor  *Extractor
	log        *zap.Logger
	now        func() time.Time
}

// Option configures a Verifier
type Option func(*Verifier)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(v *Verifier) {
		if log != nil {
			v.log = log
		}
	}
}

// NewVerifier creates a verifier; ts may be nil or empty, in which case the
// certificate chain is not checked
func NewVerifier(ts *trust.Store, opts ...Option) *Verifier {
	v := &Verifier{
		trustStore: ts,
		extractor:  NewExtractor(),
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var _ signature.Verifier = (*Verifier)(nil)

// Verify checks that the Signature covers infNFe unchanged and was produced
// by the key of the embedded certificate, then chains that certificate to the
// trust store as of the issue date.
func (v *Verifier) Verify(ctx context.Context, data []byte) (*signature.VerificationResult, error) {
	result := signature.NewVerificationResult()
	result.Format = signature.FormatXML

	if err := ctx.Err(); err != nil {
		return result, err
	}

	extraction, err := v.extractor.Extract(data)
	if extraction != nil {
		result.SignatureFound = true
		result.ReferenceURI = extraction.ReferenceURI
		result.DocumentKey = strings.TrimPrefix(extraction.SignedID(), "NFe")
		result.SignatureMethod = extraction.SignatureMethod
		result.DigestMethod = extraction.DigestMethod
	}
	if err != nil {
		result.AddError(err.Error())
		var se *signature.SignatureError
		if errors.As(err, &se) && se.Code != signature.ErrCodeNoSignature && se.Code != signature.ErrCodeUnsupportedFormat {
			// the document is signed, but the signature is unusable
			result.ComputeValidity()
			v.logResult(result)
			return result, nil
		}
		return result, err
	}

	certs := make([]*x509.Certificate, 0, len(extraction.Certificates))
	for _, der := range extraction.Certificates {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			result.AddError(signature.ErrMalformedCertificate(err).Error())
			result.ComputeValidity()
			v.logResult(result)
			return result, nil
		}
		certs = append(certs, cert)
	}
	signer := certs[0]
	result.SetSigner(signer)

	if err := verifyEnveloped(extraction, signer); err != nil {
		result.AddError(signature.ErrInvalidSignature(err).Error())
	} else {
		result.SignatureValid = true
	}

	at := v.now()
	if issued, ok := issueDate(extraction.Signed); ok {
		at = issued
		if issued.Before(signer.NotBefore) || issued.After(signer.NotAfter) {
			result.AddWarning(signature.ErrCertExpired(signer.Subject.CommonName).Error())
		}
	}

	if v.trustStore.Empty() {
		result.AddWarning("trust store empty, certificate chain not checked")
	} else {
		result.ChainChecked = true
		chain, err := v.trustStore.VerifyChain(signer, certs[1:], at)
		if err != nil {
			result.AddError(signature.ErrChainInvalid(err).Error())
		} else {
			result.CertChainValid = true
			result.CertChain = chain
		}
	}

	result.ComputeValidity()
	v.logResult(result)
	return result, nil
}

// CanVerify returns true if the data appears to be signed XML
func (v *Verifier) CanVerify(data []byte) bool {
	return v.extractor.CanExtract(data)
}

// verifyEnveloped validates digest and signature value against the embedded
// certificate. infNFe is detached with its inherited namespace and the
// Signature, which NF-e places beside it, is attached as its last child, so
// the enveloped-signature transform yields exactly the signed bytes.
func verifyEnveloped(x *Extraction, cert *x509.Certificate) error {
	signed := x.Signed.Copy()
	if signed.SelectAttr("xmlns") == nil {
		if ns := x.Signed.NamespaceURI(); ns != "" {
			signed.CreateAttr("xmlns", ns)
		}
	}
	signed.AddChild(x.Signature.Copy())

	vc := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})
	vc.IdAttribute = "Id"
	// validity is judged against the issue date separately
	vc.Clock = dsig.NewFakeClockAt(cert.NotBefore)

	_, err := vc.Validate(signed)
	return err
}

func issueDate(inf *etree.Element) (time.Time, bool) {
	for _, path := range []string{"ide/dhEmi", "ide/dEmi"} {
		text, ok := xmldoc.Text(inf, path)
		if !ok || text == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, text); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func (v *Verifier) logResult(r *signature.VerificationResult) {
	fields := []zap.Field{
		zap.String("document_key", r.DocumentKey),
		zap.Bool("valid", r.Valid),
		zap.Bool("signature_valid", r.SignatureValid),
		zap.Bool("chain_checked", r.ChainChecked),
		zap.Int("warnings", len(r.Warnings)),
	}
	if len(r.Errors) > 0 {
		fields = append(fields, zap.String("errors", strings.Join(r.Errors, "; ")))
	}
	v.log.Info("signature verified", fields...)
}

