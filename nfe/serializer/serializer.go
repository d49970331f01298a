// Package serializer renders a DocumentInput as an NF-e 4.00 record.
//
// Sections are emitted in schema order: ide, emit, dest, det, total, transp,
// pag, infAdic and infRespTec. Quantities carry 4 decimal places, unit prices
// 10 and currency amounts 2.
package serializer

import (
	"strconv"
	"strings"
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/accesskey"
	"github.com/alapierre/go-nfe-client/nfe/model"
	"github.com/alapierre/go-nfe-client/nfe/taxid"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe.serializer")

const (
	TimestampLayout = "2006-01-02T15:04:05-07:00"

	DefaultNCM         = "00000000"
	NoGTIN             = "SEM GTIN"
	ExemptRegistration = "ISENTO"
	// FreightNotSpecified is modFrete 9, "sem ocorrencia de transporte".
	FreightNotSpecified = 9
	// PaymentCash is tPag 01.
	PaymentCash = "01"

	// StagingRecipientName replaces xNome of the recipient outside production.
	StagingRecipientName = "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"
)

var (
	ErrNoItems  = errors.New("document has no line items")
	ErrNilInput = errors.New("nil document input")
)

// TechnicalContact is the infRespTec block. It identifies the software
// vendor, not the issuer.
type TechnicalContact struct {
	CNPJ    string
	Contact string
	Email   string
	Phone   string
}

var DefaultTechnicalContact = TechnicalContact{
	CNPJ:    "11222333000181",
	Contact: "Suporte Fiscal",
	Email:   "suporte@go-nfe-client.dev",
	Phone:   "1130000000",
}

type Serializer struct {
	now     func() time.Time
	contact TechnicalContact
}

type Option func(*Serializer)

// WithClock sets the time source used when the header has no issue date.
func WithClock(now func() time.Time) Option {
	return func(s *Serializer) {
		s.now = now
	}
}

func WithTechnicalContact(c TechnicalContact) Option {
	return func(s *Serializer) {
		s.contact = c
	}
}

func New(opts ...Option) *Serializer {
	s := &Serializer{
		now:     time.Now,
		contact: DefaultTechnicalContact,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultSerializer = New()

// Serialize renders in with the default settings.
func Serialize(in *model.DocumentInput) (*model.Document, error) {
	return defaultSerializer.Serialize(in)
}

// Serialize derives the access key and renders the full record. Invalid
// input is reported as a *model.FieldError and no output is produced.
func (s *Serializer) Serialize(in *model.DocumentInput) (*model.Document, error) {
	if in == nil {
		return nil, ErrNilInput
	}
	if err := s.check(in); err != nil {
		return nil, err
	}

	h := in.Header
	issued := h.IssuedAt
	if issued.IsZero() {
		issued = s.now()
	}

	regionCode, ok := nfe.RegionCode(in.Issuer.Address.UF)
	if !ok {
		logger.WithField("uf", in.Issuer.Address.UF).Warn("issuer region not found, default region code used")
	}

	emission := h.EmissionType
	if emission == 0 {
		emission = accesskey.EmissionNormal
	}

	key, err := accesskey.Compute(accesskey.Fields{
		Region:       regionCode,
		IssuedAt:     issued,
		IssuerID:     in.Issuer.TaxID,
		Series:       h.Series,
		Number:       h.Number,
		EmissionType: emission,
		Nonce:        h.Nonce,
	})
	if err != nil {
		return nil, errors.Wrap(err, "compute access key")
	}

	w := &writer{}
	w.open("NFe", "xmlns", nfe.Namespace)
	w.open("infNFe", "versao", nfe.LayoutVersion, "Id", "NFe"+key)

	s.writeIde(w, in, key, regionCode, issued, emission)
	s.writeEmit(w, &in.Issuer)
	s.writeDest(w, &in.Counterparty, h.Environment)
	for i := range in.Items {
		s.writeItem(w, i+1, &in.Items[i])
	}
	s.writeTotal(w, in)
	s.writeTransp(w, &h)

	w.open("pag")
	w.open("detPag")
	w.elem("tPag", PaymentCash)
	w.elem("vPag", model.FormatCurrency(in.GrandTotal()))
	w.close("detPag")
	w.close("pag")

	if info := strings.TrimSpace(h.AdditionalInfo); info != "" {
		w.open("infAdic")
		w.elem("infCpl", info)
		w.close("infAdic")
	}

	w.open("infRespTec")
	w.elem("CNPJ", s.contact.CNPJ)
	w.elem("xContato", s.contact.Contact)
	w.elem("email", s.contact.Email)
	w.elem("fone", s.contact.Phone)
	w.close("infRespTec")

	w.close("infNFe")
	w.close("NFe")

	logger.Debugf("serialized document %s with %d items", key, len(in.Items))

	return &model.Document{AccessKey: key, XML: w.String()}, nil
}

func (s *Serializer) check(in *model.DocumentInput) error {
	if len(in.Items) == 0 {
		return ErrNoItems
	}
	if err := checkText(in); err != nil {
		return err
	}
	if !taxid.ValidateCNPJ(in.Issuer.TaxID) {
		return model.NewFieldError("issuer.taxId", in.Issuer.TaxID, "not a valid CNPJ")
	}
	if strings.TrimSpace(in.Issuer.LegalName) == "" {
		return model.NewFieldError("issuer.legalName", nil, "is required")
	}
	kind, ok := taxid.Detect(in.Counterparty.TaxID)
	if !ok || !taxid.Validate(in.Counterparty.TaxID, kind) {
		return model.NewFieldError("counterparty.taxId", in.Counterparty.TaxID, "not a valid CPF or CNPJ")
	}
	if strings.TrimSpace(in.Counterparty.Name) == "" {
		return model.NewFieldError("counterparty.name", nil, "is required")
	}
	if strings.TrimSpace(in.Header.Nature) == "" {
		return model.NewFieldError("header.nature", nil, "is required")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.CFOP) == "" {
			return model.NewFieldError("items["+strconv.Itoa(i)+"].cfop", nil, "is required")
		}
		if it.Quantity.Sign() <= 0 {
			return model.NewFieldError("items["+strconv.Itoa(i)+"].quantity", it.Quantity.String(), "must be positive")
		}
	}
	return nil
}

func (s *Serializer) writeIde(w *writer, in *model.DocumentInput, key, regionCode string, issued time.Time, emission int) {
	h := in.Header

	destination := "1"
	if !strings.EqualFold(in.Issuer.Address.UF, in.Counterparty.Address.UF) {
		destination = "2"
	}
	finalConsumer := "0"
	if kind, _ := taxid.Detect(in.Counterparty.TaxID); kind == taxid.Individual {
		finalConsumer = "1"
	}

	w.open("ide")
	w.elem("cUF", regionCode)
	w.elem("cNF", key[35:43])
	w.elem("natOp", h.Nature)
	w.elem("mod", nfe.ModelCode)
	w.elem("serie", strconv.Itoa(h.Series))
	w.elem("nNF", strconv.Itoa(h.Number))
	w.elem("dhEmi", issued.Format(TimestampLayout))
	w.elem("tpNF", "1")
	w.elem("idDest", destination)
	w.elem("cMunFG", municipality(&in.Issuer.Address))
	w.elem("tpImp", "1")
	w.elem("tpEmis", strconv.Itoa(emission))
	w.elem("cDV", key[43:])
	w.elem("tpAmb", strconv.Itoa(h.Environment.Code()))
	w.elem("finNFe", "1")
	w.elem("indFinal", finalConsumer)
	w.elem("indPres", "1")
	w.elem("indIntermed", "0")
	w.elem("procEmi", "0")
	w.elem("verProc", nfe.ProcessVersion)
	w.close("ide")
}

func (s *Serializer) writeEmit(w *writer, is *model.Issuer) {
	crt := is.TaxRegime
	if crt == 0 {
		crt = 1
	}

	w.open("emit")
	w.elem("CNPJ", taxid.Digits(is.TaxID))
	w.elem("xNome", is.LegalName)
	w.opt("xFant", is.TradeName)
	writeAddress(w, "enderEmit", &is.Address)
	if ie := taxid.Digits(is.StateRegistration); ie != "" {
		w.elem("IE", ie)
	} else {
		w.elem("IE", ExemptRegistration)
	}
	w.elem("CRT", strconv.Itoa(crt))
	w.close("emit")
}

func (s *Serializer) writeDest(w *writer, cp *model.Counterparty, env nfe.Environment) {
	name := cp.Name
	if env != nfe.Production {
		name = StagingRecipientName
	}

	w.open("dest")
	id := taxid.Digits(cp.TaxID)
	if kind, _ := taxid.Detect(id); kind == taxid.Individual {
		w.elem("CPF", id)
	} else {
		w.elem("CNPJ", id)
	}
	w.elem("xNome", name)
	writeAddress(w, "enderDest", &cp.Address)

	// 1: contribuinte ICMS, 9: nao contribuinte
	if ie := taxid.Digits(cp.StateRegistration); ie != "" {
		w.elem("indIEDest", "1")
		w.elem("IE", ie)
	} else {
		w.elem("indIEDest", "9")
	}
	w.opt("email", cp.Email)
	w.close("dest")
}

func writeAddress(w *writer, tag string, a *model.Address) {
	w.open(tag)
	w.elem("xLgr", a.Street)
	w.elem("nro", a.Number)
	w.opt("xCpl", a.Complement)
	w.elem("xBairro", a.District)
	w.elem("cMun", municipality(a))
	w.elem("xMun", a.Municipality)
	w.elem("UF", strings.ToUpper(a.UF))
	w.elem("CEP", taxid.Digits(a.ZIP))
	w.elem("cPais", "1058")
	w.elem("xPais", "BRASIL")
	w.opt("fone", taxid.Digits(a.Phone))
	w.close(tag)
}

func municipality(a *model.Address) string {
	if code := taxid.Digits(a.MunicipalityCode); code != "" {
		return code
	}
	code, ok := nfe.MunicipalityCode(a.UF)
	if !ok {
		logger.WithField("uf", a.UF).Warn("municipality not resolved, default capital used")
	}
	return code
}

func (s *Serializer) writeItem(w *writer, n int, it *model.LineItem) {
	ncm := taxid.Digits(it.NCM)
	if ncm == "" {
		ncm = DefaultNCM
	}

	w.open("det", "nItem", strconv.Itoa(n))
	w.open("prod")
	w.elem("cProd", it.Code)
	w.elem("cEAN", NoGTIN)
	w.elem("xProd", it.Description)
	w.elem("NCM", ncm)
	w.elem("CFOP", it.CFOP)
	w.elem("uCom", it.Unit)
	w.elem("qCom", model.FormatQuantity(it.Quantity))
	w.elem("vUnCom", model.FormatUnitPrice(it.UnitPrice))
	w.elem("vProd", model.FormatCurrency(it.Total))
	w.elem("cEANTrib", NoGTIN)
	w.elem("uTrib", it.Unit)
	w.elem("qTrib", model.FormatQuantity(it.Quantity))
	w.elem("vUnTrib", model.FormatUnitPrice(it.UnitPrice))
	w.elem("indTot", "1")
	w.close("prod")

	// placeholder taxation: Simples Nacional without credit, PIS/COFINS not taxed
	w.open("imposto")
	w.open("ICMS")
	w.open("ICMSSN102")
	w.elem("orig", "0")
	w.elem("CSOSN", "102")
	w.close("ICMSSN102")
	w.close("ICMS")
	w.open("PIS")
	w.open("PISNT")
	w.elem("CST", "07")
	w.close("PISNT")
	w.close("PIS")
	w.open("COFINS")
	w.open("COFINSNT")
	w.elem("CST", "07")
	w.close("COFINSNT")
	w.close("COFINS")
	w.close("imposto")

	w.close("det")
}

func (s *Serializer) writeTotal(w *writer, in *model.DocumentInput) {
	zero := model.FormatCurrency(decimal.Zero)

	w.open("total")
	w.open("ICMSTot")
	w.elem("vBC", zero)
	w.elem("vICMS", zero)
	w.elem("vICMSDeson", zero)
	w.elem("vFCP", zero)
	w.elem("vBCST", zero)
	w.elem("vST", zero)
	w.elem("vFCPST", zero)
	w.elem("vFCPSTRet", zero)
	w.elem("vProd", model.FormatCurrency(in.ItemsTotal()))
	w.elem("vFrete", model.FormatCurrency(model.OrZero(in.Header.Freight)))
	w.elem("vSeg", model.FormatCurrency(model.OrZero(in.Header.Insurance)))
	w.elem("vDesc", zero)
	w.elem("vII", zero)
	w.elem("vIPI", zero)
	w.elem("vIPIDevol", zero)
	w.elem("vPIS", zero)
	w.elem("vCOFINS", zero)
	w.elem("vOutro", zero)
	w.elem("vNF", model.FormatCurrency(in.GrandTotal()))
	w.close("ICMSTot")
	w.close("total")
}

func (s *Serializer) writeTransp(w *writer, h *model.Header) {
	mode := FreightNotSpecified
	if h.FreightMode != nil {
		mode = *h.FreightMode
	}

	w.open("transp")
	w.elem("modFrete", strconv.Itoa(mode))
	if h.Volumes > 0 || h.GrossWeight != nil || h.NetWeight != nil {
		w.open("vol")
		if h.Volumes > 0 {
			w.elem("qVol", strconv.Itoa(h.Volumes))
		}
		if h.NetWeight != nil {
			w.elem("pesoL", h.NetWeight.StringFixed(3))
		}
		if h.GrossWeight != nil {
			w.elem("pesoB", h.GrossWeight.StringFixed(3))
		}
		w.close("vol")
	}
	w.close("transp")
}
