package cmd

import (
	"os"
	"path/filepath"

	"github.com/alapierre/go-nfe-client/nfe/batch"
	"github.com/alapierre/go-nfe-client/nfe/model"
	"github.com/alapierre/go-nfe-client/nfe/pipeline"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	emitOutDir      string
	emitArchive     bool
	emitConcurrency int
	emitCheckTotals bool
)

var emitCmd = &cobra.Command{
	Use:   "emit <input.yaml>...",
	Short: "Serialize, sign, validate and transmit documents",
	Long: `Emit runs every input document through the pipeline: serialize, sign,
validate, transmit. A failing stage stops that document only. Several inputs
are emitted concurrently and reported in input order.`,
	Example: `  nfe-client emit invoice.yaml
  nfe-client emit --out signed/ --archive a.yaml b.yaml c.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmit,
}

func init() {
	rootCmd.AddCommand(emitCmd)

	emitCmd.Flags().StringVarP(&emitOutDir, "out", "o", "", "Directory for the signed XML files")
	emitCmd.Flags().BoolVar(&emitArchive, "archive", false, "Also pack the signed files into a ZIP in --out")
	emitCmd.Flags().IntVar(&emitConcurrency, "concurrency", pipeline.DefaultConcurrency, "Documents emitted at the same time")
	emitCmd.Flags().BoolVar(&emitCheckTotals, "check-totals", false, "Reject documents whose totals do not add up")
}

func readInput(path string) (*model.DocumentInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read input")
	}
	var in model.DocumentInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &in, nil
}

func runEmit(cmd *cobra.Command, args []string) error {
	inputs := make([]*model.DocumentInput, 0, len(args))
	for _, path := range args {
		in, err := readInput(path)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	defer c.close()

	o := c.orchestrator
	if emitCheckTotals {
		o = pipeline.New(c.cfg.Service(c.audit),
			pipeline.WithSigner(c.cfg.Signature()),
			pipeline.WithRetryPolicy(c.cfg.RetryPolicy()),
			pipeline.WithTotalsCheck(model.DefaultTolerance),
		)
	}

	printVerbose("emitting %d document(s) to %s (%s)\n", len(inputs), c.cfg.Region, c.cfg.Environment)
	items := o.EmitBatch(cmd.Context(), inputs, c.call, emitConcurrency)

	if emitOutDir != "" {
		if err := saveSigned(items); err != nil {
			return err
		}
	}

	failed := 0
	err = writeJSON(cmd.OutOrStdout(), func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i, it := range items {
				if it.Err != nil {
					failed++
				}
				encodeItem(e, args[i], it)
			}
		})
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return errors.Errorf("%d of %d document(s) not authorized", failed, len(items))
	}
	return nil
}

func saveSigned(items []pipeline.BatchItem) error {
	if err := os.MkdirAll(emitOutDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	var docs []*model.Document
	for _, it := range items {
		if it.Outcome == nil || it.Outcome.SignedXML == "" {
			continue
		}
		doc := &model.Document{AccessKey: it.Outcome.Document.AccessKey, XML: it.Outcome.SignedXML}
		docs = append(docs, doc)
		path := filepath.Join(emitOutDir, doc.AccessKey+"-nfe.xml")
		if err := os.WriteFile(path, []byte(doc.XML), 0o644); err != nil {
			return errors.Wrap(err, "write signed document")
		}
	}

	if !emitArchive || len(docs) == 0 {
		return nil
	}
	res, err := batch.Archive(batch.Config{OutputDir: emitOutDir}, batch.NewDocumentSource(docs...))
	if err != nil {
		return err
	}
	printVerbose("archive %s (%d bytes, sha256 %x)\n", res.ZipPath, res.ZipSize, res.ZipSHA256)
	return nil
}
