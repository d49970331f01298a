package util

import (
	"bytes"
	"encoding/base64"
	"strings"
	"sync"
	"text/template"

	"github.com/go-faster/errors"
)

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXML replaces the five reserved markup characters with named entities.
func EscapeXML(s string) string {
	return xmlReplacer.Replace(s)
}

var funcMap = template.FuncMap{
	"base64": func(b []byte) string { return base64.StdEncoding.EncodeToString(b) },
	"xml":    EscapeXML,
}

// parsed templates keyed by their text
var templates sync.Map

func parse(text string) (*template.Template, error) {
	if t, ok := templates.Load(text); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("xml").Funcs(funcMap).Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "parse template")
	}
	actual, _ := templates.LoadOrStore(text, t)
	return actual.(*template.Template), nil
}

// MergeTemplate renders the template text behind tpl with model. Values are
// not escaped unless the template pipes them through xml.
func MergeTemplate(tpl *string, model any) ([]byte, error) {
	t, err := parse(*tpl)
	if err != nil {
		return nil, err
	}

	var output bytes.Buffer
	if err := t.Execute(&output, model); err != nil {
		return nil, errors.Wrap(err, "execute template")
	}
	return output.Bytes(), nil
}
