// Package model holds the business input of a fiscal document and the
// decimal helpers used to render its amounts.
package model

import (
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/shopspring/decimal"
)

type Address struct {
	Street           string `yaml:"street"`
	Number           string `yaml:"number"`
	Complement       string `yaml:"complement,omitempty"`
	District         string `yaml:"district"`
	MunicipalityCode string `yaml:"municipalityCode,omitempty"`
	Municipality     string `yaml:"municipality"`
	UF               string `yaml:"uf"`
	ZIP              string `yaml:"zip"`
	Phone            string `yaml:"phone,omitempty"`
}

type Issuer struct {
	TaxID             string  `yaml:"taxId"`
	LegalName         string  `yaml:"legalName"`
	TradeName         string  `yaml:"tradeName,omitempty"`
	Address           Address `yaml:"address"`
	StateRegistration string  `yaml:"stateRegistration,omitempty"`
	// TaxRegime is the CRT code, 1 (Simples Nacional) when zero.
	TaxRegime int `yaml:"taxRegime,omitempty"`
}

type Counterparty struct {
	TaxID             string  `yaml:"taxId"`
	Name              string  `yaml:"name"`
	Address           Address `yaml:"address"`
	StateRegistration string  `yaml:"stateRegistration,omitempty"`
	Email             string  `yaml:"email,omitempty"`
}

type LineItem struct {
	Code        string          `yaml:"code"`
	Description string          `yaml:"description"`
	NCM         string          `yaml:"ncm,omitempty"`
	CFOP        string          `yaml:"cfop"`
	Unit        string          `yaml:"unit"`
	Quantity    decimal.Decimal `yaml:"quantity"`
	UnitPrice   decimal.Decimal `yaml:"unitPrice"`
	Total       decimal.Decimal `yaml:"total"`
}

// Header carries the identification of the document. Freight, Insurance and
// the transport figures are optional.
type Header struct {
	Number       int             `yaml:"number"`
	Series       int             `yaml:"series"`
	IssuedAt     time.Time       `yaml:"issuedAt"`
	Nature       string          `yaml:"nature"`
	Total        decimal.Decimal `yaml:"total"`
	Environment  nfe.Environment `yaml:"environment"`
	EmissionType int             `yaml:"emissionType,omitempty"`

	Freight     *decimal.Decimal `yaml:"freight,omitempty"`
	Insurance   *decimal.Decimal `yaml:"insurance,omitempty"`
	FreightMode *int             `yaml:"freightMode,omitempty"`
	GrossWeight *decimal.Decimal `yaml:"grossWeight,omitempty"`
	NetWeight   *decimal.Decimal `yaml:"netWeight,omitempty"`
	Volumes     int              `yaml:"volumes,omitempty"`

	AdditionalInfo string `yaml:"additionalInfo,omitempty"`

	// Nonce fixes cNF; empty means random.
	Nonce string `yaml:"nonce,omitempty"`
}

type DocumentInput struct {
	Header       Header       `yaml:"header"`
	Issuer       Issuer       `yaml:"issuer"`
	Counterparty Counterparty `yaml:"counterparty"`
	Items        []LineItem   `yaml:"items"`
}

// Document is a serialized record together with the access key embedded in it.
type Document struct {
	AccessKey string
	XML       string
}
