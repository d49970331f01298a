// Package batch wraps signed documents into an enviNFe lot for the
// authorization service and packs documents into ZIP archives for storage
// or hand-over to an accountant.
package batch

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/util"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe.batch")

const (
	// MaxLotSize is the number of documents the authorization service accepts in one lot.
	MaxLotSize = 50
	// LotIDLength is the width of idLote.
	LotIDLength = 15
)

var (
	ErrEmptyLot    = errors.New("lot has no documents")
	ErrLotTooLarge = errors.New("lot exceeds 50 documents")
	ErrBadLotID    = errors.New("lot id must have 1 to 15 digits")
)

// Lot is one enviNFe request. Sync asks the authority for an immediate answer
// (indSinc=1), which is only allowed for single-document lots.
type Lot struct {
	ID        string
	Sync      bool
	Documents []string
}

// NewLot builds a lot with a random id. A single document is sent
// synchronously.
func NewLot(docs ...string) (*Lot, error) {
	id, err := NewLotID()
	if err != nil {
		return nil, err
	}
	return &Lot{ID: id, Sync: len(docs) == 1, Documents: docs}, nil
}

// NewLotID returns a random 15 digit lot id.
func NewLotID() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(LotIDLength), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", errors.Wrap(err, "generate lot id")
	}
	s := n.String()
	return strings.Repeat("0", LotIDLength-len(s)) + s, nil
}

var lotTemplate = `<enviNFe xmlns="{{ .Namespace }}" versao="{{ .Version }}">` +
	`<idLote>{{ .ID }}</idLote>` +
	`<indSinc>{{ if .Sync }}1{{ else }}0{{ end }}</indSinc>` +
	`{{ range .Documents }}{{ . }}{{ end }}` +
	`</enviNFe>`

// XML renders the lot. Documents are embedded as they are, without their XML
// declaration, so the signed bytes stay untouched.
func (l *Lot) XML() (string, error) {
	if err := l.check(); err != nil {
		return "", err
	}

	docs := make([]string, len(l.Documents))
	for i, d := range l.Documents {
		docs[i] = StripDeclaration(d)
	}

	out, err := util.MergeTemplate(&lotTemplate, map[string]any{
		"Namespace": nfe.Namespace,
		"Version":   nfe.LayoutVersion,
		"ID":        l.ID,
		"Sync":      l.Sync,
		"Documents": docs,
	})
	if err != nil {
		return "", errors.Wrap(err, "render lot")
	}

	logger.WithFields(logrus.Fields{
		"lot":       l.ID,
		"documents": len(docs),
	}).Debug("lot rendered")

	return string(out), nil
}

func (l *Lot) check() error {
	if len(l.Documents) == 0 {
		return ErrEmptyLot
	}
	if len(l.Documents) > MaxLotSize {
		return ErrLotTooLarge
	}
	if l.ID == "" || len(l.ID) > LotIDLength || strings.Trim(l.ID, "0123456789") != "" {
		return ErrBadLotID
	}
	if l.Sync && len(l.Documents) > 1 {
		return errors.New("synchronous lot must carry exactly one document")
	}
	return nil
}

// StripDeclaration removes a leading <?xml ...?> declaration.
func StripDeclaration(doc string) string {
	s := strings.TrimLeft(doc, " \t\r\n\ufeff")
	if !strings.HasPrefix(s, "<?xml") {
		return doc
	}
	end := strings.Index(s, "?>")
	if end < 0 {
		return doc
	}
	return strings.TrimLeft(s[end+2:], " \t\r\n")
}
