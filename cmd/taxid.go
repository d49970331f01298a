package cmd

import (
	"fmt"

	"github.com/alapierre/go-nfe-client/nfe/taxid"
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

var taxidCmd = &cobra.Command{
	Use:   "taxid",
	Short: "Validate and format CPF / CNPJ numbers",
}

var taxidValidateCmd = &cobra.Command{
	Use:   "validate <cpf|cnpj>",
	Short: "Check the two check digits of a CPF or CNPJ",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := taxid.Detect(args[0])
		if !ok {
			return errors.Errorf("%q is neither a CPF nor a CNPJ", args[0])
		}
		if !taxid.Validate(args[0], kind) {
			return errors.Errorf("invalid %s", kind)
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "valid %s\n", kind)
		return err
	},
}

var taxidFormatCmd = &cobra.Command{
	Use:   "format <cpf|cnpj>",
	Short: "Print a CPF or CNPJ with its punctuation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := taxid.Detect(args[0])
		if !ok {
			return errors.Errorf("%q is neither a CPF nor a CNPJ", args[0])
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), taxid.Format(args[0], kind))
		return err
	},
}

func init() {
	rootCmd.AddCommand(taxidCmd)
	taxidCmd.AddCommand(taxidValidateCmd, taxidFormatCmd)
}
