package simulator

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/accesskey"
	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/transmission"
	"github.com/beevik/etree"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const contentType = "application/soap+xml; charset=utf-8"

var operations = map[string]audit.Operation{
	"enviNFe":    audit.OpSubmit,
	"consSitNFe": audit.OpQuery,
	"envEvento":  audit.OpCancel,
}

type decision struct {
	key      string
	code     string
	protocol string
}

func (s *Server) handleSOAP(c *gin.Context) {
	region, ok := nfe.LookupRegion(c.Param("uf"))
	if !ok {
		c.String(http.StatusNotFound, "unknown region %q", c.Param("uf"))
		return
	}

	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		c.String(http.StatusBadRequest, "empty request body")
		return
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		c.String(http.StatusBadRequest, "malformed XML: %v", err)
		return
	}
	msg := doc.FindElement("//nfeDadosMsg")
	if msg == nil || len(msg.ChildElements()) == 0 {
		c.String(http.StatusBadRequest, "nfeDadosMsg not found")
		return
	}
	payload := msg.ChildElements()[0]

	op, ok := operations[payload.Tag]
	if !ok {
		c.String(http.StatusBadRequest, "unsupported message %s", payload.Tag)
		return
	}

	var d decision
	switch op {
	case audit.OpSubmit:
		d = s.authorize(payload, region)
	case audit.OpQuery:
		d = s.query(payload)
	default:
		d = s.cancel(payload, region)
	}

	reply, err := transmission.RenderReply(transmission.ReplyModel{
		Operation:   op,
		Environment: s.config.Environment,
		Region:      region.Code,
		AccessKey:   d.key,
		Code:        d.code,
		Protocol:    d.protocol,
		At:          s.now(),
	})
	if err == nil {
		reply, err = transmission.ResultEnvelope(op, reply)
	}
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	s.count(op, d.code)
	logger.WithFields(logrus.Fields{
		"operation":  op,
		"region":     region.UF,
		"access_key": d.key,
		"code":       d.code,
	}).Debug("answered")

	c.Data(http.StatusOK, contentType, []byte(reply))
}

func (s *Server) authorize(lot *etree.Element, region nfe.Region) decision {
	inf := lot.FindElement(".//NFe/infNFe")
	if inf == nil {
		return decision{code: "215"}
	}
	key := strings.TrimPrefix(inf.SelectAttrValue("Id", ""), "NFe")
	if d, bad := s.precheck(key, inf.FindElement("./ide/tpAmb")); bad {
		return d
	}
	if !signed(inf.Parent()) {
		return decision{key: key, code: "297"}
	}
	if cnpj := inf.FindElement("./emit/CNPJ"); cnpj == nil || cnpj.Text() != key[6:20] {
		return decision{key: key, code: "540"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return decision{key: key, code: "108"}
	}
	if _, exists := s.docs[key]; exists {
		return decision{key: key, code: "204"}
	}
	r := &record{state: StateAuthorized, protocol: s.nextProtocol(region.Code), region: region.Code}
	s.docs[key] = r
	return decision{key: key, code: transmission.CodeAuthorized, protocol: r.protocol}
}

func (s *Server) query(req *etree.Element) decision {
	key := text(req, "./chNFe")
	if d, bad := s.precheck(key, req.FindElement("./tpAmb")); bad {
		return d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return decision{key: key, code: "108"}
	}
	r, ok := s.docs[key]
	switch {
	case !ok:
		return decision{key: key, code: transmission.CodeNotFound}
	case r.state == StateCancelled:
		return decision{key: key, code: "218", protocol: r.protocol}
	default:
		return decision{key: key, code: transmission.CodeAuthorized, protocol: r.protocol}
	}
}

func (s *Server) cancel(lot *etree.Element, region nfe.Region) decision {
	inf := lot.FindElement(".//evento/infEvento")
	if inf == nil || text(inf, "./tpEvento") != transmission.EventCancel {
		return decision{code: "215"}
	}
	key := text(inf, "./chNFe")
	if d, bad := s.precheck(key, inf.FindElement("./tpAmb")); bad {
		return d
	}
	if !signed(inf.Parent()) {
		return decision{key: key, code: "297"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return decision{key: key, code: "108"}
	}
	r, ok := s.docs[key]
	switch {
	case !ok:
		return decision{key: key, code: transmission.CodeNotFound}
	case r.state == StateCancelled:
		return decision{key: key, code: "218"}
	}
	r.state = StateCancelled
	return decision{key: key, code: transmission.CodeEventRegistered, protocol: s.nextProtocol(region.Code)}
}

// precheck rejects a malformed key (236) and a request for the other
// environment (252).
func (s *Server) precheck(key string, tpAmb *etree.Element) (decision, bool) {
	if accesskey.Check(key) != nil {
		return decision{key: key, code: "236"}, true
	}
	if tpAmb != nil && strings.TrimSpace(tpAmb.Text()) != strconv.Itoa(s.config.Environment.Code()) {
		return decision{key: key, code: "252"}, true
	}
	return decision{}, false
}

func signed(el *etree.Element) bool {
	if el == nil {
		return false
	}
	sig := el.FindElement("./Signature")
	return sig != nil && sig.FindElement("./SignatureValue") != nil && sig.FindElement("./KeyInfo") != nil
}

func text(el *etree.Element, path string) string {
	if found := el.FindElement(path); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}
