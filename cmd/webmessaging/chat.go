package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/codefionn/webmessaging/internal/conversation"
	"github.com/codefionn/webmessaging/internal/event"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/messaging"
	"github.com/codefionn/webmessaging/internal/state"
	"github.com/spf13/cobra"
)

var (
	authenticated  bool
	connectTimeout time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the deployment from the terminal",
	Long: `Starts a session and reads messages from stdin. Lines starting with a
slash are commands:

  /attach FILE   upload a file, sent with the next message
  /detach ID     remove an attachment that was not sent yet
  /history       load the previous page of the conversation
  /typing        tell the agent you are typing
  /ping          send a health check
  /newchat       start a new chat after the conversation was disconnected
  /clear         clear the conversation
  /quit          disconnect and exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&authenticated, "authenticated", false, "Connect the authenticated session stored in the vault")
	chatCmd.Flags().DurationVar(&connectTimeout, "timeout", 30*time.Second, "Time to wait for the session to be configured")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, closeClient, err := newClient()
	if err != nil {
		return err
	}
	defer closeClient()

	out := cmd.OutOrStdout()
	ready := make(chan state.ConnectionState, 1)
	client.OnState(func(s state.ConnectionState) {
		switch s.(type) {
		case state.Configured, state.ReadOnly, state.Error, state.Closed:
			select {
			case ready <- s:
			default:
			}
		}
		fmt.Fprintf(out, "* %s\n", s)
	})
	client.OnMessageEvent(func(ev conversation.Event) { printMessageEvent(out, ev) })
	client.OnEvent(func(ev event.Event) { printEvent(out, ev) })

	if authenticated {
		err = client.ConnectAuthenticatedSession(ctx)
	} else {
		err = client.Connect(ctx)
	}
	if err != nil {
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
		return nil
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return client.Disconnect()
		case line, ok := <-lines:
			if !ok {
				return client.Disconnect()
			}
			quit, err := handleLine(ctx, client, out, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if quit {
				return client.Disconnect()
			}
		}
	}
}

// handleLine runs one REPL input. It reports whether the user asked to quit.
func handleLine(ctx context.Context, client *messaging.Client, out io.Writer, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, client.SendMessage(line, nil)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/attach":
		if arg == "" {
			return false, errors.New("usage: /attach FILE")
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return false, err
		}
		id, err := client.Attach(data, filepath.Base(arg), func(p float64) {
			logger.Debug("upload %s: %.0f%%", arg, p)
		})
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "* attachment %s\n", id)
		return false, nil
	case "/detach":
		if arg == "" {
			return false, errors.New("usage: /detach ID")
		}
		return false, client.Detach(arg)
	case "/history":
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return false, client.FetchNextPage(ctx)
	case "/typing":
		return false, client.IndicateTyping()
	case "/ping":
		return false, client.SendHealthCheck()
	case "/newchat":
		return false, client.StartNewChat()
	case "/clear":
		return false, client.ClearConversation()
	}
	return false, fmt.Errorf("unknown command %s", name)
}

func printMessageEvent(out io.Writer, ev conversation.Event) {
	switch e := ev.(type) {
	case conversation.MessageInserted:
		if e.Message.Direction == conversation.Outbound {
			fmt.Fprintf(out, "%s\n", formatMessage(e.Message))
		}
	case conversation.MessageUpdated:
		if s, ok := e.Message.State.(conversation.Error); ok {
			fmt.Fprintf(out, "! message not delivered: %s\n", s.Message)
		}
	case conversation.AttachmentUpdated:
		fmt.Fprintf(out, "* %s %s\n", e.Attachment.FileName, e.Attachment.State)
	case conversation.HistoryFetched:
		if len(e.Messages) == 0 {
			fmt.Fprintln(out, "* no older messages")
		}
		for _, m := range e.Messages {
			fmt.Fprintf(out, "%s\n", formatMessage(m))
		}
		if e.StartOfConversation {
			fmt.Fprintln(out, "* start of conversation")
		}
	}
}

func formatMessage(m conversation.Message) string {
	who := "you"
	if m.Direction == conversation.Outbound {
		who = "agent"
		if m.From.Name != "" {
			who = m.From.Name
		}
	}
	text := m.Text.UnwrapOr("")
	for _, a := range m.Attachments {
		text += fmt.Sprintf(" [%s %s]", a.FileName, a.DownloadURL())
	}
	for _, qr := range m.QuickReplies {
		text += fmt.Sprintf(" (%s)", qr.Text)
	}
	return fmt.Sprintf("%s> %s", who, strings.TrimSpace(text))
}

func printEvent(out io.Writer, ev event.Event) {
	switch e := ev.(type) {
	case event.AgentTyping:
		fmt.Fprintln(out, "* agent is typing")
	case event.Error:
		fmt.Fprintf(out, "! %s: %s\n", e.Code, e.Message)
	default:
		fmt.Fprintf(out, "* %s\n", ev)
	}
}
