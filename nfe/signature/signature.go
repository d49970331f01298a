// Package signature builds the enveloped XMLDSig block of a serialized record.
package signature

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"github.com/alapierre/go-nfe-client/nfe/util"
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe.signature")

var (
	ErrEmptyCredential   = errors.New("credential material and passphrase are required")
	ErrEmptyDocument     = errors.New("document is empty")
	ErrNoSignableSection = errors.New("no element with an Id attribute to sign")
	ErrAlreadySigned     = errors.New("document already carries a signature")
	ErrNoParent          = errors.New("signable section has no parent element")
)

// Credential is the certificate material (PEM text or opaque content) and
// the passphrase that unlocks it.
type Credential struct {
	Material   string
	Passphrase string
}

// Validate fails when any part of the credential is empty.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.Material) == "" || c.Passphrase == "" {
		return ErrEmptyCredential
	}
	return nil
}

type Service struct {
	canon  Canonicalizer
	signer Signer
}

type Option func(*Service)

func WithCanonicalizer(c Canonicalizer) Option {
	return func(s *Service) {
		s.canon = c
	}
}

func WithSigner(signer Signer) Option {
	return func(s *Service) {
		s.signer = signer
	}
}

// NewService defaults to WhitespaceCanonicalizer and PlaceholderSigner.
func NewService(opts ...Option) *Service {
	s := &Service{
		canon:  WhitespaceCanonicalizer{},
		signer: PlaceholderSigner{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var signedInfoTemplate = `<SignedInfo{{ if .Standalone }} xmlns="` + NamespaceXMLDSig + `"{{ end }}>` +
	`<CanonicalizationMethod Algorithm="{{ .C14N }}"></CanonicalizationMethod>` +
	`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"></SignatureMethod>` +
	`<Reference URI="#{{ xml .ID }}">` +
	`<Transforms>` +
	`<Transform Algorithm="` + AlgEnveloped + `"></Transform>` +
	`<Transform Algorithm="{{ .C14N }}"></Transform>` +
	`</Transforms>` +
	`<DigestMethod Algorithm="` + AlgSHA1 + `"></DigestMethod>` +
	`<DigestValue>{{ .Digest }}</DigestValue>` +
	`</Reference>` +
	`</SignedInfo>`

var signatureTemplate = `<Signature xmlns="` + NamespaceXMLDSig + `">` +
	`{{ .SignedInfo }}` +
	`<SignatureValue>{{ .Value }}</SignatureValue>` +
	`<KeyInfo><X509Data><X509Certificate>{{ .Certificate }}</X509Certificate></X509Data></KeyInfo>` +
	`</Signature>`

type signedInfoModel struct {
	Standalone bool
	C14N       string
	ID         string
	Digest     string
}

// Sign digests the section carrying an Id attribute and inserts the
// Signature block right before the closing tag of that section's parent.
// Nothing else in doc changes.
func (s *Service) Sign(doc string, cred Credential) (string, error) {
	if err := cred.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(doc) == "" {
		return "", ErrEmptyDocument
	}

	tree := etree.NewDocument()
	if err := tree.ReadFromString(doc); err != nil {
		return "", errors.Wrap(err, "parse document")
	}
	if findSignature(tree) != nil {
		return "", ErrAlreadySigned
	}

	el := tree.FindElement("//*[@Id]")
	if el == nil {
		return "", ErrNoSignableSection
	}
	id := el.SelectAttrValue("Id", "")

	parent := el.Parent()
	if parent == nil || parent.Tag == "" {
		return "", ErrNoParent
	}

	raw, err := section(doc, el.FullTag(), id)
	if err != nil {
		return "", err
	}

	digest, err := s.digest(raw, el)
	if err != nil {
		return "", err
	}

	m := signedInfoModel{Standalone: true, C14N: s.canon.Algorithm(), ID: id, Digest: digest}
	canonicalSignedInfo, err := util.MergeTemplate(&signedInfoTemplate, m)
	if err != nil {
		return "", errors.Wrap(err, "render SignedInfo")
	}
	m.Standalone = false
	signedInfo, err := util.MergeTemplate(&signedInfoTemplate, m)
	if err != nil {
		return "", errors.Wrap(err, "render SignedInfo")
	}

	value, err := s.signer.SignatureValue(canonicalSignedInfo, cred)
	if err != nil {
		return "", errors.Wrap(err, "compute signature value")
	}
	cert, err := s.signer.Certificate(cred)
	if err != nil {
		return "", errors.Wrap(err, "read certificate")
	}

	block, err := util.MergeTemplate(&signatureTemplate, map[string]string{
		"SignedInfo":  string(signedInfo),
		"Value":       value,
		"Certificate": cert,
	})
	if err != nil {
		return "", errors.Wrap(err, "render Signature")
	}

	closing := "</" + parent.FullTag() + ">"
	at := strings.LastIndex(doc, closing)
	if at < 0 {
		return "", errors.Errorf("closing tag %s not found", closing)
	}

	logger.Debugf("signed section %s, digest %s", id, digest)

	return doc[:at] + string(block) + doc[at:], nil
}

// Verify is a structural check: the Signature block with its SignatureValue
// and KeyInfo elements must be present. No cryptography is involved.
func (s *Service) Verify(doc string) bool {
	tree := etree.NewDocument()
	if err := tree.ReadFromString(doc); err != nil {
		return false
	}
	sig := findSignature(tree)
	if sig == nil {
		return false
	}
	return sig.FindElement("./SignatureValue") != nil && sig.FindElement("./KeyInfo") != nil
}

// VerifyDigest recomputes the digest of the referenced section and compares
// it with DigestValue. The signature value itself is not checked.
func (s *Service) VerifyDigest(doc string) (bool, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromString(doc); err != nil {
		return false, errors.Wrap(err, "parse document")
	}
	sig := findSignature(tree)
	if sig == nil {
		return false, errors.New("signature not found")
	}

	ref := sig.FindElement(".//Reference")
	digestEl := sig.FindElement(".//DigestValue")
	if ref == nil || digestEl == nil {
		return false, errors.New("signature has no reference digest")
	}
	id := strings.TrimPrefix(ref.SelectAttrValue("URI", ""), "#")

	el := tree.FindElement("//*[@Id='" + id + "']")
	if el == nil {
		return false, errors.Errorf("referenced section %q not found", id)
	}

	raw, err := section(doc, el.FullTag(), id)
	if err != nil {
		return false, err
	}
	// enveloped-signature transform
	if start := strings.Index(raw, "<Signature"); start >= 0 {
		if end := strings.Index(raw[start:], "</Signature>"); end >= 0 {
			raw = raw[:start] + raw[start+end+len("</Signature>"):]
		}
		if inner := el.FindElement("./Signature"); inner != nil {
			el.RemoveChild(inner)
		}
	}

	digest, err := s.digest(raw, el)
	if err != nil {
		return false, err
	}
	return digest == strings.TrimSpace(digestEl.Text()), nil
}

func (s *Service) digest(raw string, el *etree.Element) (string, error) {
	canonical, err := s.canon.Canonicalize(raw, el)
	if err != nil {
		return "", errors.Wrap(err, "canonicalize")
	}
	sum := sha1.Sum(canonical)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func findSignature(tree *etree.Document) *etree.Element {
	return tree.FindElement("//Signature")
}

// section returns the text of the element tag carrying Id="id" as it appears
// in doc.
func section(doc, tag, id string) (string, error) {
	marker := `Id="` + id + `"`
	open := "<" + tag
	closing := "</" + tag + ">"

	for from := 0; ; {
		i := strings.Index(doc[from:], open)
		if i < 0 {
			break
		}
		start := from + i
		end := strings.IndexByte(doc[start:], '>')
		if end < 0 {
			break
		}
		head := doc[start : start+end]
		if strings.Contains(head, marker) {
			stop := strings.Index(doc[start:], closing)
			if stop < 0 {
				return "", errors.Errorf("section %s is not closed", tag)
			}
			return doc[start : start+stop+len(closing)], nil
		}
		from = start + len(open)
	}
	return "", errors.Wrapf(ErrNoSignableSection, "section with %s not found", marker)
}
