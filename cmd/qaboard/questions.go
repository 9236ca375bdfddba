package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	qaboard "github.com/qaboard/qaboard/sdk/golang"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	// list
	listLimit int
	listAll   bool
	listJSON  bool

	// ask
	askJSON bool

	// answer
	answerJSON bool

	// mark
	markJSON bool
)

// ============================================================================
// list
// ============================================================================

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List questions in feed order",
	Long:  "List questions, escalated first, then pending, then answered; newest first within each status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := loadClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		feed := client.NewFeed(&qaboard.FeedOptions{PageSize: pageSize(cfg, listLimit)})
		if err := feed.FetchFirstPage(ctx); err != nil {
			return err
		}
		for listAll && feed.HasMore() {
			before := feed.Len()
			if err := feed.LoadMore(ctx); err != nil {
				return err
			}
			if feed.Len() == before && feed.HasMore() {
				logger.Warn("server returned an empty page; stopping", "cursor", feed.Cursor())
				break
			}
		}

		items := feed.Items()
		out := cmd.OutOrStdout()
		if listJSON {
			return printJSON(cmd, items)
		}
		renderQuestions(out, items)
		if feed.HasMore() {
			fmt.Fprintln(out, "(more questions available; use --all)")
		}
		return nil
	},
}

// ============================================================================
// ask
// ============================================================================

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Submit a new question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := loadClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		q, err := client.SubmitQuestion(ctx, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if askJSON {
			return printJSON(cmd, q)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Submitted question #%d (%s)\n", q.ID, q.Status)
		return nil
	},
}

// ============================================================================
// answer
// ============================================================================

var answerCmd = &cobra.Command{
	Use:   "answer <question-id> <answer...>",
	Short: "Answer a question",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, _, err := loadClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		q, err := client.AnswerQuestion(ctx, id, strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if answerJSON {
			return printJSON(cmd, q)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Answered question #%d (%s)\n", q.ID, q.Status)
		return nil
	},
}

// ============================================================================
// mark
// ============================================================================

var markCmd = &cobra.Command{
	Use:   "mark <question-id> <status>",
	Short: "Change the status of a question (admin)",
	Long:  "Set a question's status to escalated, pending or answered. Requires an admin token (see 'qaboard login').",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		status, err := parseStatus(args[1])
		if err != nil {
			return err
		}
		client, cfg, err := loadClient()
		if err != nil {
			return err
		}
		if cfg.Auth.Token == "" {
			return fmt.Errorf("no admin token; run 'qaboard login <token>' first")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		q, err := client.UpdateStatus(ctx, id, status)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if markJSON {
			return printJSON(cmd, q)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Question #%d is now %s\n", q.ID, q.Status)
		return nil
	},
}

// ============================================================================
// Helpers
// ============================================================================

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid question id %q", s)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// ============================================================================
// Registration
// ============================================================================

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Questions per page (default from config)")
	listCmd.Flags().BoolVar(&listAll, "all", false, "Keep loading pages until the server has no more")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output JSON")

	askCmd.Flags().BoolVar(&askJSON, "json", false, "Output JSON")
	answerCmd.Flags().BoolVar(&answerJSON, "json", false, "Output JSON")
	markCmd.Flags().BoolVar(&markJSON, "json", false, "Output JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(markCmd)
}
