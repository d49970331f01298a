package validator_test

import (
	"strings"
	"testing"

	"github.com/alapierre/go-nfe-client/nfe/internal/fixture"
	"github.com/alapierre/go-nfe-client/nfe/serializer"
	"github.com/alapierre/go-nfe-client/nfe/signature"
	"github.com/alapierre/go-nfe-client/nfe/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedDocument(t *testing.T) (unsigned, signed string) {
	t.Helper()
	doc, err := serializer.Serialize(fixture.Input())
	require.NoError(t, err)
	m, p := fixture.Credential()
	s, err := signature.NewService().Sign(doc.XML, signature.Credential{Material: m, Passphrase: p})
	require.NoError(t, err)
	return doc.XML, s
}

func TestValidate_SignedDocumentPasses(t *testing.T) {
	_, signed := signedDocument(t)

	res := validator.Validate(signed)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Missing)
	assert.NoError(t, res.Err())
}

func TestValidate_UnsignedListsSignatureMarkers(t *testing.T) {
	unsigned, _ := signedDocument(t)

	res := validator.Validate(unsigned)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"Signature", "SignatureValue", "DigestValue"}, res.Missing)
	assert.ErrorIs(t, res.Err(), validator.ErrMissingFields)
	assert.Contains(t, res.Err().Error(), "SignatureValue")
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	_, signed := signedDocument(t)
	broken := strings.Replace(signed, "<natOp>", "<xnatOp>", 1)
	broken = strings.Replace(broken, "</natOp>", "</xnatOp>", 1)
	broken = strings.Replace(broken, "<vNF>", "<vNFx>", 1)

	res := validator.Validate(broken)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"natOp", "vNF"}, res.Missing)
}

func TestValidate_PrefixIsNotPresence(t *testing.T) {
	// <detPag> must not satisfy <det>, <infNFeSupl> must not satisfy <infNFe>
	res := validator.New("det", "infNFe").Validate("<pag><detPag/></pag><infNFeSupl/>")
	assert.Equal(t, []string{"det", "infNFe"}, res.Missing)

	res = validator.New("det").Validate(`<det nItem="1"></det>`)
	assert.True(t, res.Valid)
}

func TestValidate_Empty(t *testing.T) {
	res := validator.Validate("")
	assert.False(t, res.Valid)
	assert.Len(t, res.Missing, len(validator.MandatoryFields))
}
