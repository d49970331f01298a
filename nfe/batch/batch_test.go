package batch

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alapierre/go-nfe-client/nfe/model"
	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe1" versao="4.00"></infNFe></NFe>`

func TestLot_XML(t *testing.T) {
	lot := &Lot{ID: "000000000000042", Sync: true, Documents: []string{`<?xml version="1.0" encoding="UTF-8"?>` + "\n" + doc}}

	out, err := lot.XML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `<enviNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><idLote>000000000000042</idLote><indSinc>1</indSinc><NFe`))
	assert.NotContains(t, out, "<?xml")
	assert.Contains(t, out, doc)

	d := etree.NewDocument()
	require.NoError(t, d.ReadFromString(out))
	assert.Len(t, d.FindElements("//NFe"), 1)
}

func TestLot_Async(t *testing.T) {
	lot, err := NewLot(doc, doc, doc)
	require.NoError(t, err)
	assert.False(t, lot.Sync)
	assert.Len(t, lot.ID, LotIDLength)

	out, err := lot.XML()
	require.NoError(t, err)
	assert.Contains(t, out, "<indSinc>0</indSinc>")
	assert.Equal(t, 3, strings.Count(out, "<NFe "))
}

func TestLot_Checks(t *testing.T) {
	_, err := (&Lot{ID: "1"}).XML()
	assert.ErrorIs(t, err, ErrEmptyLot)

	docs := make([]string, MaxLotSize+1)
	for i := range docs {
		docs[i] = doc
	}
	_, err = (&Lot{ID: "1", Documents: docs}).XML()
	assert.ErrorIs(t, err, ErrLotTooLarge)

	_, err = (&Lot{ID: "12a", Documents: []string{doc}}).XML()
	assert.ErrorIs(t, err, ErrBadLotID)

	_, err = (&Lot{ID: "1", Sync: true, Documents: []string{doc, doc}}).XML()
	assert.Error(t, err)
}

func TestNewLotID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := NewLotID()
		require.NoError(t, err)
		require.Len(t, id, LotIDLength)
		assert.Empty(t, strings.Trim(id, "0123456789"))
		seen[id] = true
	}
	assert.Greater(t, len(seen), 90)
}

func TestStripDeclaration(t *testing.T) {
	assert.Equal(t, doc, StripDeclaration(doc))
	assert.Equal(t, doc, StripDeclaration(`<?xml version="1.0"?>`+doc))
	assert.Equal(t, doc, StripDeclaration("\ufeff<?xml version=\"1.0\"?>\r\n"+doc))
}

type sliceSource struct {
	items []*Item
	idx   int
}

func (s *sliceSource) Next() (*Item, error) {
	if s.idx >= len(s.items) {
		return nil, io.EOF
	}
	s.idx++
	return s.items[s.idx-1], nil
}

func TestWriteArchive(t *testing.T) {
	src := &sliceSource{}
	for i := 0; i < 5; i++ {
		src.items = append(src.items, &Item{ID: fmt.Sprint(i), XML: []byte(fmt.Sprintf("<NFe n=\"%d\"/>", i))})
	}

	var buf bytes.Buffer
	entries, err := WriteArchive(&buf, src)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "000001_nfe.xml", entries[0].FileName)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 5)

	for i, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		require.NoError(t, err)

		sum := sha256.Sum256(b)
		assert.Equal(t, entries[i].FileName, f.Name)
		assert.Equal(t, sum[:], entries[i].SHA256)
	}
}

func TestWriteArchive_Errors(t *testing.T) {
	_, err := WriteArchive(io.Discard, &sliceSource{})
	assert.Error(t, err)

	_, err = WriteArchive(io.Discard, &sliceSource{items: []*Item{{ID: "empty"}}})
	assert.Error(t, err)
}

func TestArchive_Documents(t *testing.T) {
	dir := t.TempDir()
	docs := []*model.Document{
		{AccessKey: "35240311222333000181550010000001231123456788", XML: doc},
		{AccessKey: "35240311222333000181550010000001241123456780", XML: doc},
	}

	res, err := Archive(Config{OutputDir: dir}, NewDocumentSource(docs...))
	require.NoError(t, err)

	b, err := os.ReadFile(res.ZipPath)
	require.NoError(t, err)
	sum := sha256.Sum256(b)
	assert.Equal(t, sum[:], res.ZipSHA256)
	assert.Equal(t, int64(len(b)), res.ZipSize)
	assert.Equal(t, dir, filepath.Dir(res.ZipPath))
	assert.Equal(t, docs[1].AccessKey+"-nfe.xml", res.Entries[1].FileName)
}

func TestArchive_FileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.xml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	res, err := Archive(Config{OutputDir: dir}, NewFileSource([]string{path}))
	require.NoError(t, err)
	assert.Equal(t, "a.xml", res.Entries[0].FileName)

	_, err = Archive(Config{OutputDir: dir}, NewFileSource([]string{filepath.Join(dir, "missing.xml")}))
	assert.Error(t, err)

	matches, _ := filepath.Glob(filepath.Join(dir, "nfe-archive-*.zip"))
	assert.Len(t, matches, 1, "failed archive is removed")
}
