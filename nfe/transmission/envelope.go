package transmission

import (
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/util"
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
)

const (
	NamespaceSOAP12 = "http://www.w3.org/2003/05/soap-envelope"
	NamespaceWSDL   = "http://www.portalfiscal.inf.br/nfe/wsdl/"

	ServiceAuthorize = "NFeAutorizacao4"
	ServiceQuery     = "NFeConsultaProtocolo4"
	ServiceEvent     = "NFeRecepcaoEvento4"

	EventCancel         = "110111"
	EventVersion        = "1.00"
	MinJustificationLen = 15
	MaxJustificationLen = 255

	timestampLayout = "2006-01-02T15:04:05-07:00"
)

type service struct {
	name   string
	method string
}

var services = map[audit.Operation]service{
	audit.OpSubmit: {ServiceAuthorize, "nfeAutorizacaoLote"},
	audit.OpQuery:  {ServiceQuery, "nfeConsultaNF"},
	audit.OpCancel: {ServiceEvent, "nfeRecepcaoEvento"},
}

// SOAPAction of an operation.
func SOAPAction(op audit.Operation) string {
	s := services[op]
	return NamespaceWSDL + s.name + "/" + s.method
}

var requestEnvelopeTemplate = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<soap12:Envelope xmlns:soap12="` + NamespaceSOAP12 + `">` +
	`<soap12:Body>` +
	`<nfeDadosMsg xmlns="` + NamespaceWSDL + `{{ .Service }}">{{ .Body }}</nfeDadosMsg>` +
	`</soap12:Body>` +
	`</soap12:Envelope>`

var resultEnvelopeTemplate = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<soap12:Envelope xmlns:soap12="` + NamespaceSOAP12 + `">` +
	`<soap12:Body>` +
	`<nfeResultMsg xmlns="` + NamespaceWSDL + `{{ .Service }}">{{ .Body }}</nfeResultMsg>` +
	`</soap12:Body>` +
	`</soap12:Envelope>`

// RequestEnvelope wraps body for the service of op.
func RequestEnvelope(op audit.Operation, body string) (string, error) {
	return envelope(&requestEnvelopeTemplate, op, body)
}

// ResultEnvelope wraps an authority answer the way the authority does.
func ResultEnvelope(op audit.Operation, body string) (string, error) {
	return envelope(&resultEnvelopeTemplate, op, body)
}

func envelope(tpl *string, op audit.Operation, body string) (string, error) {
	s, ok := services[op]
	if !ok {
		return "", errors.Errorf("unknown operation %q", op)
	}
	out, err := util.MergeTemplate(tpl, map[string]string{"Service": s.name, "Body": body})
	if err != nil {
		return "", errors.Wrap(err, "render envelope")
	}
	return string(out), nil
}

var queryTemplate = `<consSitNFe xmlns="` + nfe.Namespace + `" versao="` + nfe.LayoutVersion + `">` +
	`<tpAmb>{{ .Environment }}</tpAmb>` +
	`<xServ>CONSULTAR</xServ>` +
	`<chNFe>{{ .AccessKey }}</chNFe>` +
	`</consSitNFe>`

func queryBody(env nfe.Environment, key string) (string, error) {
	out, err := util.MergeTemplate(&queryTemplate, map[string]any{
		"Environment": env.Code(),
		"AccessKey":   key,
	})
	if err != nil {
		return "", errors.Wrap(err, "render consSitNFe")
	}
	return string(out), nil
}

var cancelEventTemplate = `<evento xmlns="` + nfe.Namespace + `" versao="` + EventVersion + `">` +
	`<infEvento Id="ID` + EventCancel + `{{ .AccessKey }}01">` +
	`<cOrgao>{{ .Region }}</cOrgao>` +
	`<tpAmb>{{ .Environment }}</tpAmb>` +
	`<CNPJ>{{ .IssuerID }}</CNPJ>` +
	`<chNFe>{{ .AccessKey }}</chNFe>` +
	`<dhEvento>{{ .At }}</dhEvento>` +
	`<tpEvento>` + EventCancel + `</tpEvento>` +
	`<nSeqEvento>1</nSeqEvento>` +
	`<verEvento>` + EventVersion + `</verEvento>` +
	`<detEvento versao="` + EventVersion + `">` +
	`<descEvento>Cancelamento</descEvento>` +
	`{{ if .Protocol }}<nProt>{{ xml .Protocol }}</nProt>{{ end }}` +
	`<xJust>{{ xml .Justification }}</xJust>` +
	`</detEvento>` +
	`</infEvento>` +
	`</evento>`

type cancelModel struct {
	Region        string
	Environment   int
	IssuerID      string
	AccessKey     string
	At            string
	Protocol      string
	Justification string
}

func cancelEvent(m cancelModel) (string, error) {
	out, err := util.MergeTemplate(&cancelEventTemplate, m)
	if err != nil {
		return "", errors.Wrap(err, "render evento")
	}
	return string(out), nil
}

var eventLotTemplate = `<envEvento xmlns="` + nfe.Namespace + `" versao="` + EventVersion + `">` +
	`<idLote>{{ .LotID }}</idLote>` +
	`{{ .Event }}` +
	`</envEvento>`

func eventLot(lotID, event string) (string, error) {
	out, err := util.MergeTemplate(&eventLotTemplate, map[string]string{"LotID": lotID, "Event": event})
	if err != nil {
		return "", errors.Wrap(err, "render envEvento")
	}
	return string(out), nil
}

// ReplyModel describes an authority answer; the simulator renders it and the
// HTTP authority parses it back.
type ReplyModel struct {
	Operation   audit.Operation
	Environment nfe.Environment
	Region      string
	AccessKey   string
	Code        string
	Message     string
	Protocol    string
	At          time.Time
}

var replyTemplates = map[audit.Operation]string{
	audit.OpSubmit: `<retEnviNFe xmlns="` + nfe.Namespace + `" versao="` + nfe.LayoutVersion + `">` +
		`<tpAmb>{{ .Environment }}</tpAmb><verAplic>{{ .Application }}</verAplic>` +
		`<cStat>` + CodeLotProcessed + `</cStat><xMotivo>Lote processado</xMotivo>` +
		`<cUF>{{ .Region }}</cUF><dhRecbto>{{ .At }}</dhRecbto>` +
		`<protNFe versao="` + nfe.LayoutVersion + `"><infProt>` +
		`<tpAmb>{{ .Environment }}</tpAmb><verAplic>{{ .Application }}</verAplic>` +
		`<chNFe>{{ .AccessKey }}</chNFe><dhRecbto>{{ .At }}</dhRecbto>` +
		`{{ if .Protocol }}<nProt>{{ .Protocol }}</nProt>{{ end }}` +
		`<cStat>{{ .Code }}</cStat><xMotivo>{{ xml .Message }}</xMotivo>` +
		`</infProt></protNFe>` +
		`</retEnviNFe>`,
	audit.OpQuery: `<retConsSitNFe xmlns="` + nfe.Namespace + `" versao="` + nfe.LayoutVersion + `">` +
		`<tpAmb>{{ .Environment }}</tpAmb><verAplic>{{ .Application }}</verAplic>` +
		`<cStat>{{ .Code }}</cStat><xMotivo>{{ xml .Message }}</xMotivo>` +
		`<cUF>{{ .Region }}</cUF><dhRecbto>{{ .At }}</dhRecbto><chNFe>{{ .AccessKey }}</chNFe>` +
		`{{ if .Protocol }}<protNFe versao="` + nfe.LayoutVersion + `"><infProt>` +
		`<tpAmb>{{ .Environment }}</tpAmb><verAplic>{{ .Application }}</verAplic>` +
		`<chNFe>{{ .AccessKey }}</chNFe><dhRecbto>{{ .At }}</dhRecbto><nProt>{{ .Protocol }}</nProt>` +
		`<cStat>{{ .Code }}</cStat><xMotivo>{{ xml .Message }}</xMotivo>` +
		`</infProt></protNFe>{{ end }}` +
		`</retConsSitNFe>`,
	audit.OpCancel: `<retEnvEvento xmlns="` + nfe.Namespace + `" versao="` + EventVersion + `">` +
		`<idLote>1</idLote><tpAmb>{{ .Environment }}</tpAmb><verAplic>{{ .Application }}</verAplic>` +
		`<cOrgao>{{ .Region }}</cOrgao><cStat>128</cStat><xMotivo>Lote de Evento Processado</xMotivo>` +
		`<retEvento versao="` + EventVersion + `"><infEvento>` +
		`<tpAmb>{{ .Environment }}</tpAmb><verAplic>{{ .Application }}</verAplic><cOrgao>{{ .Region }}</cOrgao>` +
		`<cStat>{{ .Code }}</cStat><xMotivo>{{ xml .Message }}</xMotivo>` +
		`<chNFe>{{ .AccessKey }}</chNFe><tpEvento>` + EventCancel + `</tpEvento><nSeqEvento>1</nSeqEvento>` +
		`<dhRegEvento>{{ .At }}</dhRegEvento>{{ if .Protocol }}<nProt>{{ .Protocol }}</nProt>{{ end }}` +
		`</infEvento></retEvento>` +
		`</retEnvEvento>`,
}

// RenderReply renders the answer body of m (without the SOAP envelope).
func RenderReply(m ReplyModel) (string, error) {
	tpl, ok := replyTemplates[m.Operation]
	if !ok {
		return "", errors.Errorf("unknown operation %q", m.Operation)
	}
	if m.Message == "" {
		m.Message = Describe(m.Code)
	}
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	out, err := util.MergeTemplate(&tpl, map[string]any{
		"Environment": m.Environment.Code(),
		"Application": "SIMULADOR_" + nfe.LayoutVersion,
		"Region":      m.Region,
		"AccessKey":   m.AccessKey,
		"Code":        m.Code,
		"Message":     m.Message,
		"Protocol":    m.Protocol,
		"At":          at.Format(timestampLayout),
	})
	if err != nil {
		return "", errors.Wrap(err, "render reply")
	}
	return string(out), nil
}

// ParseReply extracts the decision from an authority answer. The protocol
// section (infProt) or the event section (infEvento) wins over the lot
// level status, which only says the lot was processed.
func ParseReply(body string) (*Reply, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err != nil {
		return nil, errors.Wrap(err, "parse reply")
	}

	var section *etree.Element
	for _, path := range []string{"//infProt", "//retEvento/infEvento", "//cStat/.."} {
		if section = doc.FindElement(path); section != nil {
			break
		}
	}
	if section == nil {
		return nil, errors.New("reply carries no cStat")
	}

	r := &Reply{Body: body}
	if el := section.FindElement("./cStat"); el != nil {
		r.Code = el.Text()
	}
	if el := section.FindElement("./xMotivo"); el != nil {
		r.Message = el.Text()
	}
	if el := section.FindElement("./nProt"); el != nil {
		r.Protocol = el.Text()
	}
	if r.Code == "" {
		return nil, errors.New("reply carries an empty cStat")
	}
	return r, nil
}
