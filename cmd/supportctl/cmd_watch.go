package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fiscaldesk/support-platform/internal/chatclient"
	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

var (
	participantID   string
	participantName string
)

var watchCmd = &cobra.Command{
	Use:   "watch <conversation-id>",
	Short: "Follow a conversation and send stdin lines as messages",
	Long: `Follow a conversation until it ends.

Each line typed on stdin is sent as a message. Type /human to ask for a
specialist and /quit to leave without closing the conversation.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var handoffCmd = &cobra.Command{
	Use:   "handoff <conversation-id>",
	Short: "Request a human specialist for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := chatclient.NewHTTPClient(apiURL, apiToken, timeout)
		conv, err := client.RequestHuman(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "conversation %s is now %s\n", conv.ID, conv.Status)
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&participantID, "participant-id", "", "Participant ID stamped on sent messages")
	watchCmd.Flags().StringVar(&participantName, "name", "", "Display name stamped on sent messages")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if apiToken == "" {
		return errors.New("--token or SUPPORT_TOKEN is required")
	}
	conversationID := args[0]
	out := cmd.OutOrStdout()

	log := logger.NewNop()
	if verbose {
		var err error
		if log, err = logger.NewDevelopment("debug"); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := chatclient.NewHTTPClient(apiURL, apiToken, timeout)
	session := chatclient.NewSession(client, conversationID, participantID, participantName,
		chatclient.PollerConfig{Interval: interval, Timeout: timeout},
		chatclient.Callbacks{
			OnMessages: func(msgs []model.Message) {
				for _, m := range msgs {
					fmt.Fprintf(out, "[%d] %s: %s\n", m.Sequence, senderLabel(&m), m.Content)
				}
			},
			OnStatus: func(status model.ConversationStatus) {
				fmt.Fprintf(out, "-- status: %s\n", status)
			},
			OnSpecialistOnline: func() {
				fmt.Fprintln(out, "-- a specialist joined the conversation")
			},
			OnEnded: func() {
				fmt.Fprintln(out, "-- conversation ended")
			},
			OnError: func(err error) {
				fmt.Fprintf(os.Stderr, "-- refresh failed: %v\n", err)
			},
		}, log)

	session.Open(ctx)
	defer session.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ended := make(chan struct{})
	go func() {
		session.Wait(ctx)
		close(ended)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(ctx, session, strings.TrimSpace(line)); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(os.Stderr, "-- %v\n", err)
			}
		}
	}
}

var errQuit = errors.New("quit")

func handleLine(ctx context.Context, session *chatclient.Session, line string) error {
	switch line {
	case "":
		return nil
	case "/quit":
		return errQuit
	case "/human":
		status, err := session.RequestHuman(ctx)
		if err != nil {
			return fmt.Errorf("handoff failed: %w", err)
		}
		if status == model.StatusWaitingHuman {
			return nil
		}
		return fmt.Errorf("conversation is %s", status)
	}

	session.SetDraft(line)
	if _, err := session.Send(ctx); err != nil {
		return fmt.Errorf("send failed, draft kept: %w", err)
	}
	session.MarkRead()
	return nil
}

func senderLabel(m *model.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return string(m.SenderType)
}
