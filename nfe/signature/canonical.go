package signature

import (
	"regexp"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

const (
	AlgC14N10        = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgEnveloped     = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	AlgSHA1          = "http://www.w3.org/2000/09/xmldsig#sha1"
	AlgRSASHA1       = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	NamespaceXMLDSig = "http://www.w3.org/2000/09/xmldsig#"
)

// Canonicalizer turns the signable section into the bytes that are digested.
// raw is the section exactly as it appears in the document, el is the same
// section parsed in the context of the whole document.
type Canonicalizer interface {
	Canonicalize(raw string, el *etree.Element) ([]byte, error)
	Algorithm() string
}

var interTagSpace = regexp.MustCompile(`>\s+<`)

// WhitespaceCanonicalizer collapses whitespace between tags and trims the
// section. It is not C14N; documents produced by the serializer are already
// compact, so for them both forms only differ in namespace declarations.
type WhitespaceCanonicalizer struct{}

func (WhitespaceCanonicalizer) Canonicalize(raw string, _ *etree.Element) ([]byte, error) {
	return []byte(strings.TrimSpace(interTagSpace.ReplaceAllString(raw, "><"))), nil
}

// Algorithm claims C14N 1.0 in SignedInfo although the digested bytes are
// only whitespace-collapsed. A verifier that canonicalizes for real computes
// a different digest whenever the section inherits namespace declarations.
func (WhitespaceCanonicalizer) Algorithm() string {
	return AlgC14N10
}

// C14N10Canonicalizer is inclusive Canonical XML 1.0, inherited namespace
// declarations included.
type C14N10Canonicalizer struct {
	c dsig.Canonicalizer
}

func NewC14N10Canonicalizer() *C14N10Canonicalizer {
	return &C14N10Canonicalizer{c: dsig.MakeC14N10RecCanonicalizer()}
}

func (c *C14N10Canonicalizer) Canonicalize(_ string, el *etree.Element) ([]byte, error) {
	return c.c.Canonicalize(el)
}

func (c *C14N10Canonicalizer) Algorithm() string {
	return string(c.c.Algorithm())
}
