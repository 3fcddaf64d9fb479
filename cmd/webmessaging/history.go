package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/codefionn/webmessaging/internal/conversation"
	"github.com/codefionn/webmessaging/internal/event"
	"github.com/codefionn/webmessaging/internal/state"
	"github.com/spf13/cobra"
)

var historyPages int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the conversation history of the stored session",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyPages, "pages", 1, "Number of pages to load (0 loads everything)")
	historyCmd.Flags().DurationVar(&connectTimeout, "timeout", 30*time.Second, "Time to wait for the session to be configured")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client, closeClient, err := newClient()
	if err != nil {
		return err
	}
	defer closeClient()

	out := cmd.OutOrStdout()
	ready := make(chan state.ConnectionState, 1)
	start := make(chan struct{}, 1)
	client.OnState(func(s state.ConnectionState) {
		switch s.(type) {
		case state.Configured, state.ReadOnly, state.Error:
			select {
			case ready <- s:
			default:
			}
		}
	})
	client.OnMessageEvent(func(ev conversation.Event) {
		h, ok := ev.(conversation.HistoryFetched)
		if !ok || !h.StartOfConversation {
			return
		}
		select {
		case start <- struct{}{}:
		default:
		}
	})
	client.OnEvent(func(ev event.Event) {
		if e, ok := ev.(event.Error); ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "! %s: %s\n", e.Code, e.Message)
		}
	})

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	select {
	case s := <-ready:
		if e, ok := s.(state.Error); ok {
			return fmt.Errorf("session failed: %s", e)
		}
	case <-time.After(connectTimeout):
		return fmt.Errorf("session not configured after %s", connectTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

loop:
	for page := 0; historyPages == 0 || page < historyPages; page++ {
		fetchCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := client.FetchNextPage(fetchCtx)
		cancel()
		if err != nil {
			return err
		}
		select {
		case <-start:
			break loop
		default:
		}
	}

	for _, m := range client.Conversation() {
		fmt.Fprintln(out, formatMessage(m))
	}
	return client.Disconnect()
}
