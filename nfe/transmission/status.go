package transmission

import (
	"sort"
	"strings"
)

// State of one transmission call. PENDING is the state before any check;
// ROUTING_ERROR, CREDENTIAL_ERROR and INPUT_ERROR end a call before the
// network; SENT is reported when the authority accepted the request but has
// not decided yet.
type State string

const (
	StatePending         State = "PENDING"
	StateRoutingError    State = "ROUTING_ERROR"
	StateCredentialError State = "CREDENTIAL_ERROR"
	StateInputError      State = "INPUT_ERROR"
	StateSent            State = "SENT"
	StateAuthorized      State = "AUTHORIZED"
	StateRejected        State = "REJECTED"
	StateTransientError  State = "TRANSIENT_ERROR"
)

// Terminal reports whether retrying the same call cannot change the outcome.
func (s State) Terminal() bool {
	return s != StateTransientError && s != StatePending && s != StateSent
}

// Class groups authority status codes by how a caller reacts to them.
type Class int

const (
	ClassRejection Class = iota
	ClassSuccess
	ClassPending
	ClassTransient
)

const (
	CodeAuthorized      = "100"
	CodeLotReceived     = "103"
	CodeLotProcessed    = "104"
	CodeLotProcessing   = "105"
	CodeEventRegistered = "135"
	CodeAuthorizedLate  = "150"
	CodeAlreadyVoided   = "206"
	CodeNotFound        = "217"
	CodeUnclassified    = "999"
)

type Status struct {
	Code    string
	Message string
	Class   Class
}

// statuses is the normalized taxonomy. Anything outside it is reported as 999.
var statuses = map[string]Status{
	"100": {"100", "Autorizado o uso da NF-e", ClassSuccess},
	"103": {"103", "Lote recebido com sucesso", ClassPending},
	"104": {"104", "Lote processado", ClassPending},
	"105": {"105", "Lote em processamento", ClassPending},
	"108": {"108", "Servico paralisado momentaneamente", ClassTransient},
	"109": {"109", "Servico paralisado sem previsao", ClassTransient},
	"135": {"135", "Evento registrado e vinculado a NF-e", ClassSuccess},
	"150": {"150", "Autorizado o uso da NF-e, autorizacao fora de prazo", ClassSuccess},
	"204": {"204", "Rejeicao: Duplicidade de NF-e", ClassRejection},
	"206": {"206", "Rejeicao: NF-e ja esta inutilizada na base de dados da SEFAZ", ClassRejection},
	"215": {"215", "Rejeicao: Falha no schema XML", ClassRejection},
	"217": {"217", "Rejeicao: NF-e nao consta na base de dados da SEFAZ", ClassRejection},
	"218": {"218", "Rejeicao: NF-e ja esta cancelada na base de dados da SEFAZ", ClassRejection},
	"220": {"220", "Rejeicao: Prazo de cancelamento superior ao previsto na legislacao", ClassRejection},
	"236": {"236", "Rejeicao: Chave de Acesso com digito verificador invalido", ClassRejection},
	"252": {"252", "Rejeicao: Ambiente informado diverge do ambiente de recebimento", ClassRejection},
	"280": {"280", "Rejeicao: Certificado transmissor invalido", ClassRejection},
	"297": {"297", "Rejeicao: Assinatura difere do calculado", ClassRejection},
	"539": {"539", "Rejeicao: Duplicidade de NF-e com diferenca na Chave de Acesso", ClassRejection},
	"540": {"540", "Rejeicao: CNPJ do emitente difere do CNPJ da Chave de Acesso", ClassRejection},
	"999": {"999", "Rejeicao: Erro nao catalogado", ClassTransient},
}

// Normalize maps a remote code onto the taxonomy. Unknown or malformed codes
// become 999.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if _, ok := statuses[code]; ok {
		return code
	}
	return CodeUnclassified
}

// Lookup returns the taxonomy entry of a normalized code.
func Lookup(code string) Status {
	return statuses[Normalize(code)]
}

// Describe returns the human readable message of a code.
func Describe(code string) string {
	return Lookup(code).Message
}

// IsSuccess is true only for 100, 135 and 150.
func IsSuccess(code string) bool {
	return Lookup(code).Class == ClassSuccess
}

// Classify maps a code to the state a call ends in.
func Classify(code string) State {
	switch Lookup(code).Class {
	case ClassSuccess:
		return StateAuthorized
	case ClassPending:
		return StateSent
	case ClassTransient:
		return StateTransientError
	default:
		return StateRejected
	}
}

// Codes returns every known status ordered by code.
func Codes() []Status {
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
