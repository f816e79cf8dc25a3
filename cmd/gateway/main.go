package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env é opcional; variáveis já exportadas têm precedência.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "gateway",
		Short:         "IAM API gateway",
		Long:          "Routes, authenticates, rate-limits and circuit-breaks requests to the IAM services.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "gateway.yaml", "path to the YAML config file (optional)")

	root.AddCommand(
		newServeCmd(opts),
		newRoutesCmd(opts),
		newHealthCmd(),
	)
	return root
}
