package main

import (
	"fmt"
	"strings"

	"iam-gateway/config"
	"iam-gateway/gateway"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRoutesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the compiled route table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			routes, err := cfg.GatewayRoutes()
			if err != nil {
				return err
			}
			if _, err := gateway.NewRouteTable(routes); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRoutes(routes))
			return nil
		},
	}
}

func renderRoutes(routes []gateway.Route) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Pattern", "Upstream", "Auth", "Exclusions", "Policy", "Key", "Breaker"})
	for _, rt := range routes {
		authLabel := "public"
		if rt.RequiresAuth {
			authLabel = "jwt"
		}
		t.AppendRow(table.Row{
			rt.ID,
			rt.Pattern,
			rt.Upstream,
			authLabel,
			strings.Join(rt.Exclusions, ", "),
			orDash(rt.RateLimitPolicy),
			orDash(string(rt.KeyStrategy)),
			orDash(rt.Breaker),
		})
	}
	return t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
