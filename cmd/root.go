package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/config"
	"github.com/alapierre/go-nfe-client/nfe/pipeline"
	"github.com/alapierre/go-nfe-client/nfe/transmission"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "nfe-client",
	Short: "Issue, query and cancel NF-e documents",
	Long: `nfe-client serializes, signs, validates and transmits NF-e documents
to the regional authorization services, and keeps an audit trail of every call.

Configuration is read from --config (YAML) and the NFE_* environment variables.

Examples:
  # Check an access key
  nfe-client key validate 35240311222333000181550010000001231123456788

  # Emit a document against the built-in simulated authority
  nfe-client emit invoice.yaml

  # Run the authority simulator and point the client at it
  nfe-client sim --addr :8080 &
  NFE_AUTHORITY_MODE=http NFE_AUTHORITY_URL=http://localhost:8080 nfe-client emit invoice.yaml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("NFE_CONFIG"), "YAML configuration file (env: NFE_CONFIG)")
}

// client is everything a transmitting command needs.
type client struct {
	cfg          *config.Config
	call         transmission.Config
	audit        *audit.Logger
	orchestrator *pipeline.Orchestrator
	close        func()
}

func newClient(ctx context.Context) (*client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	call, err := cfg.Transmission()
	if err != nil {
		return nil, err
	}
	store, closeStore, err := cfg.OpenAuditStore(ctx)
	if err != nil {
		return nil, err
	}

	auditLogger := audit.NewLogger(store)
	o := pipeline.New(cfg.Service(auditLogger),
		pipeline.WithSigner(cfg.Signature()),
		pipeline.WithRetryPolicy(cfg.RetryPolicy()),
	)
	return &client{cfg: cfg, call: call, audit: auditLogger, orchestrator: o, close: closeStore}, nil
}

func printVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
