package xml

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/fiscal-xml/internal/signature"
	"github.com/rezonia/fiscal-xml/internal/xmldoc"
)

// XMLDSigNamespace is the namespace of the Signature element
const XMLDSigNamespace = "http://www.w3.org/2000/09/xmldsig#"

// Extractor locates the enveloped signature of an NF-e
type Extractor struct{}

// NewExtractor creates a new signature extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extraction is the Signature of an NF-e and the infNFe it covers
type Extraction struct {
	Document  *etree.Document
	NFe       *etree.Element
	Signature *etree.Element
	// Signed is infNFe, the element the Reference URI points at
	Signed *etree.Element

	ReferenceURI    string
	SignatureMethod string
	DigestMethod    string

	// Certificates are the DER bytes of every X509Certificate in KeyInfo,
	// signer first
	Certificates [][]byte
}

// SignedID returns the Id attribute of infNFe
func (x *Extraction) SignedID() string {
	return x.Signed.SelectAttrValue("Id", "")
}

// Extract finds the Signature of the NF-e in data. Errors are *signature.SignatureError.
func (e *Extractor) Extract(data []byte) (*Extraction, error) {
	doc, err := xmldoc.Read(data)
	if err != nil {
		return nil, signature.NewSignatureError(signature.ErrCodeUnsupportedFormat, "", "failed to parse XML", err)
	}

	nfe := xmldoc.FindNFe(doc.Root())
	if nfe == nil {
		return nil, signature.ErrUnsupportedFormat(doc.Root().Tag)
	}
	inf := nfe.SelectElement("infNFe")
	if inf == nil {
		return nil, signature.ErrUnsupportedFormat("NFe without infNFe")
	}

	sig := findSignatureElement(nfe)
	if sig == nil {
		return nil, signature.ErrNoSignature()
	}

	x := &Extraction{
		Document:  doc,
		NFe:       nfe,
		Signature: sig,
		Signed:    inf,
	}
	if ref := sig.FindElement("SignedInfo/Reference"); ref != nil {
		x.ReferenceURI = ref.SelectAttrValue("URI", "")
		if dm := ref.SelectElement("DigestMethod"); dm != nil {
			x.DigestMethod = dm.SelectAttrValue("Algorithm", "")
		}
	}
	if sm := sig.FindElement("SignedInfo/SignatureMethod"); sm != nil {
		x.SignatureMethod = sm.SelectAttrValue("Algorithm", "")
	}
	if x.ReferenceURI != "#"+x.SignedID() {
		return x, signature.ErrReferenceMismatch(x.ReferenceURI, x.SignedID())
	}

	certs, err := ExtractCertificates(sig)
	if err != nil {
		return x, signature.ErrMalformedCertificate(err)
	}
	x.Certificates = certs
	return x, nil
}

// findSignatureElement looks for the Signature next to infNFe, then anywhere below NFe
func findSignatureElement(nfe *etree.Element) *etree.Element {
	if sig := nfe.SelectElement("Signature"); sig != nil {
		return sig
	}
	return findElementRecursive(nfe, "Signature")
}

func findElementRecursive(elem *etree.Element, localName string) *etree.Element {
	if hasLocalName(elem, localName) {
		return elem
	}
	for _, child := range elem.ChildElements() {
		if found := findElementRecursive(child, localName); found != nil {
			return found
		}
	}
	return nil
}

// hasLocalName checks the tag ignoring any namespace prefix
func hasLocalName(elem *etree.Element, localName string) bool {
	tag := elem.Tag
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		tag = tag[i+1:]
	}
	return tag == localName
}

// ExtractCertificates decodes every KeyInfo/X509Data/X509Certificate of sig
func ExtractCertificates(sig *etree.Element) ([][]byte, error) {
	var certs [][]byte
	for _, el := range sig.FindElements("KeyInfo/X509Data/X509Certificate") {
		text := strings.Join(strings.Fields(el.Text()), "")
		if text == "" {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate: %w", err)
		}
		certs = append(certs, der)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no X509Certificate found in Signature")
	}
	return certs, nil
}

// CanExtract returns true if the data appears to be XML with a signature
func (e *Extractor) CanExtract(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) < 5 || trimmed[0] != '<' {
		return false
	}
	return bytes.Contains(data, []byte("<Signature")) ||
		bytes.Contains(data, []byte(":Signature"))
}
