// Package xmldoc reads NF-e XML into etree documents and locates the
// elements every other package starts from.
package xmldoc

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"
)

// Read parses raw into a tree. Latin-1 and Windows-1252 declared encodings are
// decoded to UTF-8; anything else non-UTF-8 is rejected.
func Read(raw []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("no root element")
	}
	return doc, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return input, nil
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

// FindNFe returns the NFe element, either the root itself or the one wrapped by nfeProc
func FindNFe(root *etree.Element) *etree.Element {
	if root == nil {
		return nil
	}
	switch root.Tag {
	case "NFe":
		return root
	case "nfeProc":
		return root.SelectElement("NFe")
	}
	return nil
}

// InfNFe returns the infNFe element of doc, or nil
func InfNFe(doc *etree.Document) *etree.Element {
	nfe := FindNFe(doc.Root())
	if nfe == nil {
		return nil
	}
	return nfe.SelectElement("infNFe")
}

// Text returns the trimmed text at path below el, and whether the element exists
func Text(el *etree.Element, path string) (string, bool) {
	if el == nil {
		return "", false
	}
	found := el.FindElement(path)
	if found == nil {
		return "", false
	}
	return strings.TrimSpace(found.Text()), true
}

// FirstChild returns the first child element of el, e.g. ICMS00 under ICMS
func FirstChild(el *etree.Element) *etree.Element {
	if el == nil {
		return nil
	}
	if kids := el.ChildElements(); len(kids) > 0 {
		return kids[0]
	}
	return nil
}

// Write serializes doc with canonical escaping, leaving quotes and apostrophes
// in text as they were read. A non-UTF-8 encoding declaration is rewritten
// because the output is always UTF-8.
func Write(doc *etree.Document) (string, error) {
	doc.WriteSettings.CanonicalText = true
	doc.WriteSettings.CanonicalAttrVal = true
	for _, t := range doc.Child {
		if pi, ok := t.(*etree.ProcInst); ok && pi.Target == "xml" {
			if enc := declaredEncoding(pi.Inst); enc != "" && !strings.EqualFold(enc, "utf-8") {
				pi.Inst = strings.Replace(pi.Inst, enc, "UTF-8", 1)
			}
		}
	}
	return doc.WriteToString()
}

func declaredEncoding(inst string) string {
	i := strings.Index(inst, "encoding=")
	if i < 0 || i+len("encoding=")+1 >= len(inst) {
		return ""
	}
	rest := inst[i+len("encoding="):]
	q := rest[0]
	if q != '"' && q != '\'' {
		return ""
	}
	end := strings.IndexByte(rest[1:], q)
	if end < 0 {
		return ""
	}
	return rest[1 : end+1]
}
