package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"iam-gateway/server"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running gateway's aggregated health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			view, status, err := fetchHealth(ctx, addr)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHealth(view))
			if status != http.StatusOK {
				return fmt.Errorf("gateway reported %s", view.OverallStatus)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "gateway base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func fetchHealth(ctx context.Context, addr string) (server.HealthView, int, error) {
	var out server.HealthView

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/gateway/health", nil)
	if err != nil {
		return out, 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, 0, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Data server.HealthView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return out, resp.StatusCode, fmt.Errorf("decode health response: %w", err)
	}
	return env.Data, resp.StatusCode, nil
}

func renderHealth(v server.HealthView) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Service", "Status", "Latency", "Error"})
	for _, r := range v.Records {
		t.AppendRow(table.Row{r.Service, string(r.Status), r.Latency.Round(time.Millisecond).String(), r.Error})
	}
	t.AppendFooter(table.Row{"overall", string(v.OverallStatus), fmt.Sprintf("%d/%d up", v.HealthyServices, v.TotalServices), ""})
	return t.Render()
}
