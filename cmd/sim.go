package cmd

import (
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/simulator"
	"github.com/spf13/cobra"
)

var (
	simAddr string
	simEnv  string
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run the authority simulator",
	Long: `Run an HTTP server that answers the authorization, status query and
event services for every state at POST /nfe/<uf>. It remembers what it
authorized until it stops. Metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var env nfe.Environment
		if err := env.UnmarshalText([]byte(simEnv)); err != nil {
			return err
		}
		s := simulator.NewServer(&simulator.Config{
			Address:      simAddr,
			Environment:  env,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			Debug:        verbose,
		})
		return s.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().StringVar(&simAddr, "addr", ":8080", "Listen address")
	simCmd.Flags().StringVar(&simEnv, "env", "staging", "Environment the simulator answers for")
}
