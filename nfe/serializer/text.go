package serializer

import (
	"strconv"
	"unicode/utf8"

	"github.com/alapierre/go-nfe-client/nfe/model"
)

type textField struct {
	name  string
	value string
}

func addressFields(prefix string, a *model.Address) []textField {
	return []textField{
		{prefix + ".street", a.Street},
		{prefix + ".number", a.Number},
		{prefix + ".complement", a.Complement},
		{prefix + ".district", a.District},
		{prefix + ".municipalityCode", a.MunicipalityCode},
		{prefix + ".municipality", a.Municipality},
		{prefix + ".uf", a.UF},
		{prefix + ".zip", a.ZIP},
		{prefix + ".phone", a.Phone},
	}
}

// textFields lists every free-text value that ends up in a text node.
func textFields(in *model.DocumentInput) []textField {
	fields := []textField{
		{"header.nature", in.Header.Nature},
		{"header.additionalInfo", in.Header.AdditionalInfo},
		{"header.nonce", in.Header.Nonce},
		{"issuer.legalName", in.Issuer.LegalName},
		{"issuer.tradeName", in.Issuer.TradeName},
		{"issuer.stateRegistration", in.Issuer.StateRegistration},
		{"counterparty.name", in.Counterparty.Name},
		{"counterparty.stateRegistration", in.Counterparty.StateRegistration},
		{"counterparty.email", in.Counterparty.Email},
	}
	fields = append(fields, addressFields("issuer.address", &in.Issuer.Address)...)
	fields = append(fields, addressFields("counterparty.address", &in.Counterparty.Address)...)
	for i, it := range in.Items {
		p := "items[" + strconv.Itoa(i) + "]"
		fields = append(fields,
			textField{p + ".code", it.Code},
			textField{p + ".description", it.Description},
			textField{p + ".ncm", it.NCM},
			textField{p + ".cfop", it.CFOP},
			textField{p + ".unit", it.Unit},
		)
	}
	return fields
}

// checkText rejects values that cannot appear in a well-formed XML 1.0
// text node: invalid UTF-8 and characters outside the Char production.
func checkText(in *model.DocumentInput) error {
	for _, f := range textFields(in) {
		if !utf8.ValidString(f.value) {
			return model.NewFieldError(f.name, nil, "is not valid UTF-8")
		}
		for _, r := range f.value {
			if !isXMLChar(r) {
				return model.NewFieldError(f.name, nil, "contains character "+strconv.QuoteRune(r)+" not allowed in XML")
			}
		}
	}
	return nil
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= utf8.MaxRune:
		return true
	}
	return false
}
