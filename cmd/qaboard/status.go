package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and server status",
	Long:  "Display the current configuration and check whether the server answers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := loadClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Configuration:")
		fmt.Fprintf(out, "  Base URL:    %s\n", client.BaseURL())
		fmt.Fprintf(out, "  Realtime:    %s\n", client.WSURL())
		fmt.Fprintf(out, "  Page size:   %d\n", pageSize(cfg, 0))
		fmt.Fprintf(out, "  Reconnect:   %s\n", valueOrDefault(cfg.Default.ReconnectDelay, "3s (default)"))
		if cfg.Auth.Token != "" {
			fmt.Fprintf(out, "  Token:       %s\n", maskToken(cfg.Auth.Token))
		} else {
			fmt.Fprintln(out, "  Token:       (not set)")
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Live status:")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		page, err := client.FetchPage(ctx, pageSize(cfg, 0), nil)
		if err != nil {
			fmt.Fprintf(out, "  API:         unreachable (%v)\n", err)
			return nil
		}
		more := "no"
		if page.HasMore {
			more = "yes"
		}
		fmt.Fprintf(out, "  API:         reachable\n")
		fmt.Fprintf(out, "  First page:  %d questions, more: %s\n", len(page.Questions), more)
		return nil
	},
}
