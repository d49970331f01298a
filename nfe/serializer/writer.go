package serializer

import (
	"strings"

	"github.com/alapierre/go-nfe-client/nfe/util"
)

// writer emits compact markup with every text node escaped. Attribute values
// are escaped the same way.
type writer struct {
	b strings.Builder
}

func (w *writer) open(tag string, attrs ...string) {
	w.b.WriteByte('<')
	w.b.WriteString(tag)
	for i := 0; i+1 < len(attrs); i += 2 {
		w.b.WriteByte(' ')
		w.b.WriteString(attrs[i])
		w.b.WriteString(`="`)
		w.b.WriteString(util.EscapeXML(attrs[i+1]))
		w.b.WriteByte('"')
	}
	w.b.WriteByte('>')
}

func (w *writer) close(tag string) {
	w.b.WriteString("</")
	w.b.WriteString(tag)
	w.b.WriteByte('>')
}

func (w *writer) elem(tag, value string) {
	w.open(tag)
	w.b.WriteString(util.EscapeXML(value))
	w.close(tag)
}

// opt writes the element only for a non empty value.
func (w *writer) opt(tag, value string) {
	if value != "" {
		w.elem(tag, value)
	}
}

func (w *writer) String() string {
	return w.b.String()
}
