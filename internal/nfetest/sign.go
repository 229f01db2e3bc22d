package nfetest

import (
	"crypto/x509"
	"testing"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// Sign signs infNFe of raw the way NF-e emitters do: an enveloped, unprefixed
// Signature with C14N 1.0 placed beside infNFe. Any existing Signature is
// replaced. It returns the signed XML and the self-signed certificate used.
func Sign(t testing.TB, raw []byte) ([]byte, *x509.Certificate) {
	t.Helper()

	ks := dsig.RandomKeyStoreForTest()
	_, der, err := ks.GetKeyPair()
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	nfe := doc.Root()
	if nfe.Tag == "nfeProc" {
		nfe = nfe.SelectElement("NFe")
	}
	inf := nfe.SelectElement("infNFe")
	if inf == nil {
		t.Fatal("fixture has no infNFe")
	}
	if old := nfe.SelectElement("Signature"); old != nil {
		nfe.RemoveChild(old)
	}

	detached := inf.Copy()
	detached.CreateAttr("xmlns", inf.NamespaceURI())

	ctx := dsig.NewDefaultSigningContext(ks)
	ctx.IdAttribute = "Id"
	ctx.Prefix = ""
	ctx.Canonicalizer = dsig.MakeC14N10RecCanonicalizer()

	signed, err := ctx.SignEnveloped(detached)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	kids := signed.ChildElements()
	nfe.InsertChildAt(inf.Index()+1, kids[len(kids)-1].Copy())

	out, err := doc.WriteToBytes()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	return out, cert
}
