// Package fixture provides sample documents shared by tests.
package fixture

import (
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/model"
	"github.com/shopspring/decimal"
)

const (
	IssuerCNPJ = "11222333000181"
	BuyerCPF   = "52998224725"
	Nonce      = "12345678"

	// AccessKey of Input.
	AccessKey = "35240311222333000181550010000001231123456788"
)

var IssuedAt = time.Date(2024, 3, 15, 10, 30, 0, 0, time.FixedZone("BRT", -3*60*60))

// Input returns a single item document: 1 x 100.00, CFOP 5102.
func Input() *model.DocumentInput {
	return &model.DocumentInput{
		Header: model.Header{
			Number:      123,
			Series:      1,
			IssuedAt:    IssuedAt,
			Nature:      "Venda de mercadoria",
			Total:       decimal.NewFromInt(100),
			Environment: nfe.Staging,
			Nonce:       Nonce,
		},
		Issuer: model.Issuer{
			TaxID:     "11.222.333/0001-81",
			LegalName: "Comercio Exemplo Ltda",
			TradeName: "Exemplo",
			Address: model.Address{
				Street:       "Rua das Flores",
				Number:       "100",
				District:     "Centro",
				Municipality: "Sao Paulo",
				UF:           "SP",
				ZIP:          "01001-000",
			},
			StateRegistration: "110.042.490.114",
		},
		Counterparty: model.Counterparty{
			TaxID: "529.982.247-25",
			Name:  "Joao da Silva",
			Address: model.Address{
				Street:           "Av. Atlantica",
				Number:           "1500",
				District:         "Copacabana",
				MunicipalityCode: "3304557",
				Municipality:     "Rio de Janeiro",
				UF:               "RJ",
				ZIP:              "22021-001",
			},
		},
		Items: []model.LineItem{
			{
				Code:        "P001",
				Description: "Caneta azul",
				CFOP:        "5102",
				Unit:        "UN",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   decimal.NewFromInt(100),
				Total:       decimal.NewFromInt(100),
			},
		},
	}
}

// Credential is a non empty credential accepted by the placeholder signer.
func Credential() (material, passphrase string) {
	return "certificate-material", "secret"
}
