package nfe

import (
	"sort"
	"strings"
)

// DefaultRegion is returned by the lookups below when the requested state is unknown.
const DefaultRegion = "SP"

// Region describes one federative unit: its IBGE numeric prefix (cUF) and the
// municipality code of its capital, used when an address carries no cMun.
type Region struct {
	UF          string
	Code        string
	Name        string
	Capital     string
	CapitalCode string
}

var regions = map[string]Region{
	"AC": {UF: "AC", Code: "12", Name: "Acre", Capital: "Rio Branco", CapitalCode: "1200401"},
	"AL": {UF: "AL", Code: "27", Name: "Alagoas", Capital: "Maceio", CapitalCode: "2704302"},
	"AP": {UF: "AP", Code: "16", Name: "Amapa", Capital: "Macapa", CapitalCode: "1600303"},
	"AM": {UF: "AM", Code: "13", Name: "Amazonas", Capital: "Manaus", CapitalCode: "1302603"},
	"BA": {UF: "BA", Code: "29", Name: "Bahia", Capital: "Salvador", CapitalCode: "2927408"},
	"CE": {UF: "CE", Code: "23", Name: "Ceara", Capital: "Fortaleza", CapitalCode: "2304400"},
	"DF": {UF: "DF", Code: "53", Name: "Distrito Federal", Capital: "Brasilia", CapitalCode: "5300108"},
	"ES": {UF: "ES", Code: "32", Name: "Espirito Santo", Capital: "Vitoria", CapitalCode: "3205309"},
	"GO": {UF: "GO", Code: "52", Name: "Goias", Capital: "Goiania", CapitalCode: "5208707"},
	"MA": {UF: "MA", Code: "21", Name: "Maranhao", Capital: "Sao Luis", CapitalCode: "2111300"},
	"MT": {UF: "MT", Code: "51", Name: "Mato Grosso", Capital: "Cuiaba", CapitalCode: "5103403"},
	"MS": {UF: "MS", Code: "50", Name: "Mato Grosso do Sul", Capital: "Campo Grande", CapitalCode: "5002704"},
	"MG": {UF: "MG", Code: "31", Name: "Minas Gerais", Capital: "Belo Horizonte", CapitalCode: "3106200"},
	"PA": {UF: "PA", Code: "15", Name: "Para", Capital: "Belem", CapitalCode: "1501402"},
	"PB": {UF: "PB", Code: "25", Name: "Paraiba", Capital: "Joao Pessoa", CapitalCode: "2507507"},
	"PR": {UF: "PR", Code: "41", Name: "Parana", Capital: "Curitiba", CapitalCode: "4106902"},
	"PE": {UF: "PE", Code: "26", Name: "Pernambuco", Capital: "Recife", CapitalCode: "2611606"},
	"PI": {UF: "PI", Code: "22", Name: "Piaui", Capital: "Teresina", CapitalCode: "2211001"},
	"RJ": {UF: "RJ", Code: "33", Name: "Rio de Janeiro", Capital: "Rio de Janeiro", CapitalCode: "3304557"},
	"RN": {UF: "RN", Code: "24", Name: "Rio Grande do Norte", Capital: "Natal", CapitalCode: "2408102"},
	"RS": {UF: "RS", Code: "43", Name: "Rio Grande do Sul", Capital: "Porto Alegre", CapitalCode: "4314902"},
	"RO": {UF: "RO", Code: "11", Name: "Rondonia", Capital: "Porto Velho", CapitalCode: "1100205"},
	"RR": {UF: "RR", Code: "14", Name: "Roraima", Capital: "Boa Vista", CapitalCode: "1400100"},
	"SC": {UF: "SC", Code: "42", Name: "Santa Catarina", Capital: "Florianopolis", CapitalCode: "4205407"},
	"SP": {UF: "SP", Code: "35", Name: "Sao Paulo", Capital: "Sao Paulo", CapitalCode: "3550308"},
	"SE": {UF: "SE", Code: "28", Name: "Sergipe", Capital: "Aracaju", CapitalCode: "2800308"},
	"TO": {UF: "TO", Code: "17", Name: "Tocantins", Capital: "Palmas", CapitalCode: "1721000"},
}

// LookupRegion returns the region for a two letter state code.
func LookupRegion(uf string) (Region, bool) {
	r, ok := regions[strings.ToUpper(strings.TrimSpace(uf))]
	return r, ok
}

// RegionCode maps a state code to its numeric cUF. Unknown states fall back to
// DefaultRegion and report ok=false; the fallback is a data-quality problem
// the caller is expected to surface.
func RegionCode(uf string) (code string, ok bool) {
	if r, found := LookupRegion(uf); found {
		return r.Code, true
	}
	logger.WithField("uf", uf).Warnf("unknown region, falling back to %s", DefaultRegion)
	return regions[DefaultRegion].Code, false
}

// MunicipalityCode returns the IBGE code of the state capital, with the same
// fallback rule as RegionCode.
func MunicipalityCode(uf string) (code string, ok bool) {
	if r, found := LookupRegion(uf); found {
		return r.CapitalCode, true
	}
	logger.WithField("uf", uf).Warnf("unknown region, using capital of %s", DefaultRegion)
	return regions[DefaultRegion].CapitalCode, false
}

// RegionByCode is the reverse lookup used when parsing access keys.
func RegionByCode(code string) (Region, bool) {
	for _, r := range regions {
		if r.Code == code {
			return r, true
		}
	}
	return Region{}, false
}

// Regions returns all state codes in alphabetical order.
func Regions() []string {
	out := make([]string, 0, len(regions))
	for uf := range regions {
		out = append(out, uf)
	}
	sort.Strings(out)
	return out
}
