// Package qr builds the public consultation link of an access key and
// renders it as a QR code image.
package qr

import (
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/accesskey"
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

var logger = logrus.WithField("component", "nfe.qr")

const (
	// Version of the query layout (nVersao).
	Version = "100"

	// Size of the rendered PNG in pixels.
	Size = 300
)

var ErrNoDigest = errors.New("signed document has no DigestValue")

// National consultation portal, used for states without a portal of their own.
var portal = map[nfe.Environment]string{
	nfe.Production: "https://www.nfe.fazenda.gov.br/portal/consultaRecaptcha.aspx",
	nfe.Staging:    "https://hom.nfe.fazenda.gov.br/portal/consultaRecaptcha.aspx",
}

var statePortals = map[string]map[nfe.Environment]string{
	"SP": {
		nfe.Production: "https://nfe.fazenda.sp.gov.br/ConsultaNFe/consulta/publica/ConsultarNFe.aspx",
		nfe.Staging:    "https://homologacao.nfe.fazenda.sp.gov.br/ConsultaNFe/consulta/publica/ConsultarNFe.aspx",
	},
	"RS": {
		nfe.Production: "https://www.sefaz.rs.gov.br/NFE/NFE-CON.aspx",
		nfe.Staging:    "https://www.sefaz.rs.gov.br/NFE/NFE-CON.aspx",
	},
	"MG": {
		nfe.Production: "https://portalsped.fazenda.mg.gov.br/portalnfe/sistema/consultaarg.xhtml",
		nfe.Staging:    "https://hnfe.fazenda.mg.gov.br/portalnfe/sistema/consultaarg.xhtml",
	},
}

// BaseURL is the consultation page of uf, or the national portal.
func BaseURL(env nfe.Environment, uf string) string {
	if p, ok := statePortals[strings.ToUpper(uf)]; ok {
		return p[env]
	}
	return portal[env]
}

// ConsultationURL links to the public page of key. The region is taken from
// the key itself.
func ConsultationURL(env nfe.Environment, key string) (string, error) {
	return build(env, key, "")
}

// SignedConsultationURL also carries digVal, the hex form of the DigestValue
// of signedXML, so the page can tell the document was not altered.
func SignedConsultationURL(env nfe.Environment, key, signedXML string) (string, error) {
	digest, err := digestValue(signedXML)
	if err != nil {
		return "", err
	}
	return build(env, key, hex.EncodeToString([]byte(digest)))
}

func build(env nfe.Environment, key, digVal string) (string, error) {
	if err := accesskey.Check(key); err != nil {
		return "", err
	}

	uf := nfe.DefaultRegion
	if r, ok := nfe.RegionByCode(key[:2]); ok {
		uf = r.UF
	} else {
		logger.Warnf("unknown region code %s in key, using %s portal", key[:2], uf)
	}

	base, err := url.Parse(trimTrailingSlash(BaseURL(env, uf)))
	if err != nil {
		return "", errors.Wrap(err, "invalid portal URL")
	}

	q := url.Values{}
	q.Set("chNFe", key)
	q.Set("nVersao", Version)
	q.Set("tpAmb", strconv.Itoa(env.Code()))
	if digVal != "" {
		q.Set("digVal", digVal)
	}
	base.RawQuery = q.Encode()

	return base.String(), nil
}

func digestValue(signedXML string) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(signedXML); err != nil {
		return "", errors.Wrap(err, "parse signed document")
	}
	el := doc.FindElement("//DigestValue")
	if el == nil || strings.TrimSpace(el.Text()) == "" {
		return "", ErrNoDigest
	}
	return strings.TrimSpace(el.Text()), nil
}

// PNG renders content as a QR code image.
func PNG(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, Size)
}

// KeyPNG renders the consultation link of key.
func KeyPNG(env nfe.Environment, key string) ([]byte, error) {
	link, err := ConsultationURL(env, key)
	if err != nil {
		return nil, err
	}
	logger.Debugf("qr link: %s", link)
	return PNG(link)
}

func trimTrailingSlash(s string) string {
	return strings.TrimRight(s, "/")
}
