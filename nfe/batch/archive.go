package batch

import (
	"archive/zip"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alapierre/go-nfe-client/nfe/model"
)

// Config of an archive written to disk.
type Config struct {
	// OutputDir for the ZIP file. Empty means os.TempDir().
	OutputDir string

	// FilePattern for os.CreateTemp. Empty means "nfe-archive-*.zip".
	FilePattern string
}

// Result describes a written archive.
type Result struct {
	ZipPath   string
	ZipSize   int64
	ZipSHA256 []byte
	Entries   []Entry
}

// Entry binds a document to its file name inside the ZIP and the SHA-256 of
// its bytes.
type Entry struct {
	ID       string
	FileName string
	SHA256   []byte
}

// Item is a single document to be archived. It is not modified after
// construction.
type Item struct {
	ID       string
	FileName string
	XML      []byte

	sha256 []byte
}

func NewItem(id, fileName string, xml []byte) *Item {
	sum := sha256.Sum256(xml)
	return &Item{ID: id, FileName: fileName, XML: xml, sha256: sum[:]}
}

// SHA256 of XML, computed on first use when the item was built as a literal.
func (i *Item) SHA256() []byte {
	if i.sha256 == nil {
		sum := sha256.Sum256(i.XML)
		i.sha256 = sum[:]
	}
	return i.sha256
}

// Source is an iterator of documents; Next returns io.EOF when exhausted.
type Source interface {
	Next() (*Item, error)
}

type fileSource struct {
	paths []string
	idx   int
}

func NewFileSource(paths []string) Source {
	return &fileSource{paths: paths}
}

func (s *fileSource) Next() (*Item, error) {
	if s.idx >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.idx]
	s.idx++

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %q: %w", path, err)
	}
	return NewItem(path, filepath.Base(path), b), nil
}

type documentSource struct {
	docs []*model.Document
	idx  int
}

// NewDocumentSource archives serialized documents as "<access key>-nfe.xml".
func NewDocumentSource(docs ...*model.Document) Source {
	return &documentSource{docs: docs}
}

func (s *documentSource) Next() (*Item, error) {
	if s.idx >= len(s.docs) {
		return nil, io.EOF
	}
	d := s.docs[s.idx]
	s.idx++
	return NewItem(d.AccessKey, d.AccessKey+"-nfe.xml", []byte(d.XML)), nil
}

// WriteArchive streams every item of src into a ZIP written to w.
func WriteArchive(w io.Writer, src Source) ([]Entry, error) {
	zw := zip.NewWriter(w)

	var entries []Entry
	for index := 0; ; index++ {
		item, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("document source error: %w", err)
		}
		if len(item.XML) == 0 {
			_ = zw.Close()
			return nil, fmt.Errorf("document %d (%s) is empty", index, item.ID)
		}

		name := item.FileName
		if name == "" {
			name = fmt.Sprintf("%06d_nfe.xml", index+1)
		}

		fw, err := zw.Create(name)
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("create zip entry for %q: %w", name, err)
		}
		if _, err := fw.Write(item.XML); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("write zip entry for %q: %w", name, err)
		}

		entries = append(entries, Entry{ID: item.ID, FileName: name, SHA256: item.SHA256()})
	}

	if len(entries) == 0 {
		_ = zw.Close()
		return nil, fmt.Errorf("no documents produced by source")
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	return entries, nil
}

// Archive writes src into a new ZIP file under cfg.OutputDir. The file is
// removed when anything fails.
func Archive(cfg Config, src Source) (res *Result, err error) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	if cfg.FilePattern == "" {
		cfg.FilePattern = "nfe-archive-*.zip"
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	f, err := os.CreateTemp(cfg.OutputDir, cfg.FilePattern)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	logger.WithField("zip_path", f.Name()).Debug("created archive file")

	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	sum := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(f, sum)}

	entries, err := WriteArchive(cw, src)
	if err != nil {
		return nil, err
	}
	if err = f.Sync(); err != nil {
		return nil, fmt.Errorf("sync archive file: %w", err)
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("close archive file: %w", err)
	}

	return &Result{
		ZipPath:   f.Name(),
		ZipSize:   cw.n,
		ZipSHA256: sum.Sum(nil),
		Entries:   entries,
	}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
