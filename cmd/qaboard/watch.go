package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	qaboard "github.com/qaboard/qaboard/sdk/golang"
)

var watchLimit int

func init() {
	watchCmd.Flags().IntVarP(&watchLimit, "limit", "n", 0, "Questions in the initial page (default from config)")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the question feed live",
	Long:  "Print the first page of questions, then every change pushed by the server until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := loadClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		feed := client.NewFeed(&qaboard.FeedOptions{PageSize: pageSize(cfg, watchLimit)})
		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = feed.FetchFirstPage(fetchCtx)
		cancel()
		if err != nil {
			return err
		}

		return watchFeed(ctx, cmd, client.Realtime(), feed)
	},
}

// watchFeed prints the window, then changes and connection transitions until
// ctx is done.
func watchFeed(ctx context.Context, cmd *cobra.Command, hub *qaboard.Hub, feed *qaboard.Feed) error {
	out := cmd.OutOrStdout()
	var mu sync.Mutex

	renderQuestions(out, feed.Items())

	feed.On(qaboard.EventChanged, func(_ string, payload any) {
		ch, ok := payload.(qaboard.Change)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		renderChange(out, ch)
	})
	hub.Connection().OnStateChange(func(s qaboard.RealtimeState) {
		mu.Lock()
		defer mu.Unlock()
		renderState(out, s)
	})

	detach := feed.Attach(hub)
	defer detach()

	<-ctx.Done()
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out, "Stopped.")
	return nil
}
