// Package validator is the pre-transmission sanity gate: it checks that every
// mandatory field of the record is present. It does not parse the grammar.
package validator

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe.validator")

var ErrMissingFields = errors.New("mandatory fields missing")

// MandatoryFields for layout 4.00: header, processing metadata and the
// markers of an attached signature.
var MandatoryFields = []string{
	"infNFe",
	"cUF", "cNF", "natOp", "mod", "serie", "nNF", "dhEmi", "tpNF", "tpAmb",
	"tpEmis", "cDV", "procEmi", "verProc",
	"emit", "dest", "det", "total", "vNF", "transp", "pag",
	"Signature", "SignatureValue", "DigestValue",
}

type Result struct {
	Valid   bool
	Missing []string
}

// Err is nil for a valid result, otherwise it wraps ErrMissingFields with
// the whole list.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return errors.Wrapf(ErrMissingFields, "%s", strings.Join(r.Missing, ", "))
}

type Validator struct {
	fields []string
}

// New uses MandatoryFields unless fields are given.
func New(fields ...string) *Validator {
	if len(fields) == 0 {
		fields = MandatoryFields
	}
	return &Validator{fields: fields}
}

var defaultValidator = New()

func Validate(doc string) Result {
	return defaultValidator.Validate(doc)
}

// Validate reports every missing field, not only the first one.
func (v *Validator) Validate(doc string) Result {
	missing := make([]string, 0)
	for _, f := range v.fields {
		if !present(doc, f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		logger.WithField("missing", missing).Debug("structural validation failed")
	}
	return Result{Valid: len(missing) == 0, Missing: missing}
}

func present(doc, tag string) bool {
	open := "<" + tag
	for from := 0; ; {
		i := strings.Index(doc[from:], open)
		if i < 0 {
			return false
		}
		next := from + i + len(open)
		if next < len(doc) {
			switch doc[next] {
			case '>', ' ', '/', '\t', '\n', '\r':
				return true
			}
		}
		from = next
	}
}
