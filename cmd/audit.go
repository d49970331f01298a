package cmd

import (
	"time"

	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/config"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/spf13/cobra"
)

var (
	auditOperation string
	auditStatus    string
	auditFrom      string
	auditTo        string
	auditPage      int
	auditPageSize  int
	auditDays      int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail of authority calls",
	Long: `Inspect the audit trail. The memory driver forgets everything when the
process ends, so these commands are useful with NFE_AUDIT_DRIVER=sqlite or postgres.`,
}

var auditListCmd = &cobra.Command{
	Use:   "list <issuer>",
	Short: "List audit records of an issuer, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := auditFilter()
		if err != nil {
			return err
		}
		return withAudit(cmd, func(l *audit.Logger) error {
			page, err := l.Query(cmd.Context(), args[0], f, auditPage, auditPageSize)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), func(e *jx.Encoder) { encodePage(e, page) })
		})
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats <issuer>",
	Short: "Summarize the audit records of an issuer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAudit(cmd, func(l *audit.Logger) error {
			st, err := l.Stats(cmd.Context(), args[0], auditDays)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), func(e *jx.Encoder) { encodeStats(e, args[0], auditDays, st) })
		})
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditStatsCmd)

	f := auditListCmd.Flags()
	f.StringVar(&auditOperation, "op", "", "Only this operation (submit, query, cancel)")
	f.StringVar(&auditStatus, "status", "", "Only this status code")
	f.StringVar(&auditFrom, "from", "", "Only records at or after this RFC 3339 time")
	f.StringVar(&auditTo, "to", "", "Only records at or before this RFC 3339 time")
	f.IntVar(&auditPage, "page", 1, "Page number")
	f.IntVar(&auditPageSize, "size", 20, "Records per page (max 100)")

	auditStatsCmd.Flags().IntVar(&auditDays, "days", 30, "Window in days")
}

func auditFilter() (audit.Filter, error) {
	var f audit.Filter
	if auditOperation != "" {
		op, err := audit.ParseOperation(auditOperation)
		if err != nil {
			return f, err
		}
		f.Operation = op
	}
	f.Status = auditStatus

	for _, t := range []struct {
		flag string
		dst  *time.Time
	}{{auditFrom, &f.From}, {auditTo, &f.To}} {
		if t.flag == "" {
			continue
		}
		v, err := time.Parse(time.RFC3339, t.flag)
		if err != nil {
			return f, errors.Wrapf(err, "invalid time %q", t.flag)
		}
		*t.dst = v
	}
	return f, nil
}

func withAudit(cmd *cobra.Command, fn func(l *audit.Logger) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, closeStore, err := cfg.OpenAuditStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(audit.NewLogger(store))
}
