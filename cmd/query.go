package cmd

import (
	"github.com/go-faster/jx"
	"github.com/spf13/cobra"
)

var cancelProtocol string

var queryCmd = &cobra.Command{
	Use:   "query <key>",
	Short: "Ask the authority for the status of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer c.close()

		res, err := c.orchestrator.Query(cmd.Context(), args[0], c.call)
		if werr := writeJSON(cmd.OutOrStdout(), func(e *jx.Encoder) { encodeResult(e, res) }); werr != nil {
			return werr
		}
		return err
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <key> <justification>",
	Short: "Register a cancellation event for an authorized document",
	Example: `  nfe-client cancel 35240311222333000181550010000001231123456788 "Erro na emissao do documento" \
      --protocol 135240000000001`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer c.close()

		call := c.call
		call.Protocol = cancelProtocol
		res, err := c.orchestrator.Cancel(cmd.Context(), args[0], args[1], call)
		if werr := writeJSON(cmd.OutOrStdout(), func(e *jx.Encoder) { encodeResult(e, res) }); werr != nil {
			return werr
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(queryCmd, cancelCmd)
	cancelCmd.Flags().StringVar(&cancelProtocol, "protocol", "", "Authorization protocol (nProt) of the document")
}
