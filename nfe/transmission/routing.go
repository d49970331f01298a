package transmission

import (
	"strings"

	"github.com/alapierre/go-nfe-client/nfe"
)

// Routing resolves the authority endpoint of a region in an environment.
type Routing interface {
	Endpoint(env nfe.Environment, region string) (string, bool)
}

type authorizer struct {
	production string
	staging    string
}

// Authorization service of each authorizer. States without their own
// infrastructure use a virtual one (SVRS, SVAN).
var authorizers = map[string]authorizer{
	"AM": {
		production: "https://nfe.sefaz.am.gov.br/services2/services/NfeAutorizacao4",
		staging:    "https://homnfe.sefaz.am.gov.br/services2/services/NfeAutorizacao4",
	},
	"BA": {
		production: "https://nfe.sefaz.ba.gov.br/webservices/NFeAutorizacao4/NFeAutorizacao4.asmx",
		staging:    "https://hnfe.sefaz.ba.gov.br/webservices/NFeAutorizacao4/NFeAutorizacao4.asmx",
	},
	"GO": {
		production: "https://nfe.sefaz.go.gov.br/nfe/services/NFeAutorizacao4",
		staging:    "https://homolog.sefaz.go.gov.br/nfe/services/NFeAutorizacao4",
	},
	"MG": {
		production: "https://nfe.fazenda.mg.gov.br/nfe2/services/NFeAutorizacao4",
		staging:    "https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeAutorizacao4",
	},
	"MS": {
		production: "https://nfe.sefaz.ms.gov.br/ws/NFeAutorizacao4",
		staging:    "https://hom.nfe.sefaz.ms.gov.br/ws/NFeAutorizacao4",
	},
	"MT": {
		production: "https://nfe.sefaz.mt.gov.br/nfews/v2/services/NfeAutorizacao4",
		staging:    "https://homologacao.sefaz.mt.gov.br/nfews/v2/services/NfeAutorizacao4",
	},
	"PE": {
		production: "https://nfe.sefaz.pe.gov.br/nfe-service/services/NFeAutorizacao4",
		staging:    "https://nfehomolog.sefaz.pe.gov.br/nfe-service/services/NFeAutorizacao4",
	},
	"PR": {
		production: "https://nfe.sefa.pr.gov.br/nfe/NFeAutorizacao4",
		staging:    "https://homologacao.nfe.sefa.pr.gov.br/nfe/NFeAutorizacao4",
	},
	"RS": {
		production: "https://nfe.sefazrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		staging:    "https://nfe-homologacao.sefazrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
	},
	"SP": {
		production: "https://nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx",
		staging:    "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx",
	},
	"SVAN": {
		production: "https://www.sefazvirtual.fazenda.gov.br/NFeAutorizacao4/NFeAutorizacao4.asmx",
		staging:    "https://hom.sefazvirtual.fazenda.gov.br/NFeAutorizacao4/NFeAutorizacao4.asmx",
	},
	"SVRS": {
		production: "https://nfe.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		staging:    "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
	},
}

// regionAuthorizer assigns every state to its authorizer.
var regionAuthorizer = map[string]string{
	"AC": "SVRS", "AL": "SVRS", "AP": "SVRS", "AM": "AM", "BA": "BA",
	"CE": "SVRS", "DF": "SVRS", "ES": "SVRS", "GO": "GO", "MA": "SVAN",
	"MT": "MT", "MS": "MS", "MG": "MG", "PA": "SVRS", "PB": "SVRS",
	"PR": "PR", "PE": "PE", "PI": "SVRS", "RJ": "SVRS", "RN": "SVRS",
	"RS": "RS", "RO": "SVRS", "RR": "SVRS", "SC": "SVRS", "SP": "SP",
	"SE": "SVRS", "TO": "SVRS",
}

// StaticRouting is a read-only table per environment keyed by state code.
type StaticRouting struct {
	tables map[nfe.Environment]map[string]string
}

// NewStaticRouting copies the given tables.
func NewStaticRouting(production, staging map[string]string) *StaticRouting {
	return &StaticRouting{tables: map[nfe.Environment]map[string]string{
		nfe.Production: normalizeTable(production),
		nfe.Staging:    normalizeTable(staging),
	}}
}

var defaultRouting = buildDefaultRouting()

// DefaultRouting has one entry per state in both environments.
func DefaultRouting() *StaticRouting {
	return defaultRouting
}

func buildDefaultRouting() *StaticRouting {
	production := make(map[string]string, len(regionAuthorizer))
	staging := make(map[string]string, len(regionAuthorizer))
	for uf, name := range regionAuthorizer {
		a := authorizers[name]
		production[uf] = a.production
		staging[uf] = a.staging
	}
	return NewStaticRouting(production, staging)
}

func (r *StaticRouting) Endpoint(env nfe.Environment, region string) (string, bool) {
	url, ok := r.tables[env][strings.ToUpper(strings.TrimSpace(region))]
	return url, ok && url != ""
}

// Table returns a copy of the environment's table.
func (r *StaticRouting) Table(env nfe.Environment) map[string]string {
	return normalizeTable(r.tables[env])
}

func normalizeTable(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// FixedRouting sends every known state to one base URL, as BaseURL/nfe/<uf>.
// It serves the local simulator and test doubles.
type FixedRouting struct {
	BaseURL string
}

func (r FixedRouting) Endpoint(_ nfe.Environment, region string) (string, bool) {
	reg, ok := nfe.LookupRegion(region)
	if !ok || r.BaseURL == "" {
		return "", false
	}
	return strings.TrimRight(r.BaseURL, "/") + "/nfe/" + strings.ToLower(reg.UF), true
}
