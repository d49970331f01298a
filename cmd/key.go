package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/accesskey"
	"github.com/alapierre/go-nfe-client/nfe/qr"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/spf13/cobra"
)

var (
	keyUF       string
	keyIssuer   string
	keySeries   int
	keyNumber   int
	keyDate     string
	keyEmission int
	keyNonce    string
	qrOut       string
	qrEnv       string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Generate, check and render access keys",
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compute a new access key",
	Example: `  nfe-client key generate --uf SP --issuer 11222333000181 --series 1 --number 123 --date 2024-03-15
  nfe-client key generate --uf SP --issuer 11222333000181 --number 123 --nonce 12345678`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		region, ok := nfe.RegionCode(keyUF)
		if !ok {
			return errors.Errorf("unknown state %q", keyUF)
		}
		issued := time.Now()
		if keyDate != "" {
			var err error
			if issued, err = time.Parse(time.DateOnly, keyDate); err != nil {
				return errors.Wrap(err, "invalid --date")
			}
		}
		key, err := accesskey.Compute(accesskey.Fields{
			Region:       region,
			IssuedAt:     issued,
			IssuerID:     keyIssuer,
			Series:       keySeries,
			Number:       keyNumber,
			EmissionType: keyEmission,
			Nonce:        keyNonce,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
		return err
	},
}

var keyValidateCmd = &cobra.Command{
	Use:   "validate <key>",
	Short: "Check length, digits and check digit of a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := accesskey.Check(args[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "valid")
		return err
	},
}

var keyFormatCmd = &cobra.Command{
	Use:   "format <key>",
	Short: "Print a key in groups of four digits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), accesskey.Format(args[0]))
		return err
	},
}

var keyParseCmd = &cobra.Command{
	Use:   "parse <key>",
	Short: "Split a key into its fields (JSON)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parts, err := accesskey.Parse(args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), func(e *jx.Encoder) { encodeParts(e, args[0], parts) })
	},
}

var keyQRCmd = &cobra.Command{
	Use:   "qr <key>",
	Short: "Write the consultation link of a key as a PNG QR code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var env nfe.Environment
		if err := env.UnmarshalText([]byte(qrEnv)); err != nil {
			return err
		}
		link, err := qr.ConsultationURL(env, args[0])
		if err != nil {
			return err
		}
		data, err := qr.PNG(link)
		if err != nil {
			return errors.Wrap(err, "render QR code")
		}

		out := qrOut
		if out == "" {
			out = args[0] + ".png"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return errors.Wrap(err, "write PNG")
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", link, out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenerateCmd, keyValidateCmd, keyFormatCmd, keyParseCmd, keyQRCmd)

	f := keyGenerateCmd.Flags()
	f.StringVar(&keyUF, "uf", nfe.DefaultRegion, "Issuer state")
	f.StringVar(&keyIssuer, "issuer", "", "Issuer CNPJ or CPF")
	f.IntVar(&keySeries, "series", 1, "Document series (0-999)")
	f.IntVar(&keyNumber, "number", 0, "Document number (1-999999999)")
	f.StringVar(&keyDate, "date", "", "Issue date YYYY-MM-DD (default today)")
	f.IntVar(&keyEmission, "emission", accesskey.EmissionNormal, "Emission type (tpEmis)")
	f.StringVar(&keyNonce, "nonce", "", "8 digit nonce (default random)")
	_ = keyGenerateCmd.MarkFlagRequired("issuer")
	_ = keyGenerateCmd.MarkFlagRequired("number")

	keyQRCmd.Flags().StringVarP(&qrOut, "out", "o", "", "PNG file (default <key>.png)")
	keyQRCmd.Flags().StringVar(&qrEnv, "env", "staging", "Environment of the consultation portal")
}
